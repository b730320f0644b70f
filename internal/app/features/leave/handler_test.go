package leave_test

import (
	"testing"

	"github.com/dalemusser/organizer/internal/app/features/leave"
	contextstore "github.com/dalemusser/organizer/internal/app/store/contexts"
	memberstore "github.com/dalemusser/organizer/internal/app/store/members"
	personstore "github.com/dalemusser/organizer/internal/app/store/persons"
	"github.com/dalemusser/organizer/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newHandler(db *mongo.Database) *leave.Handler {
	return leave.NewHandler(memberstore.New(db), personstore.New(db), contextstore.New(db), zap.NewNop())
}

func TestServeLeave_DeactivatesAndRedirects(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	p := fx.CreatePerson(ctx, "a@example.org", "Alice")
	c := fx.CreateContext(ctx, "Garden", "garden")
	m := fx.Join(ctx, p.ID, c.ID)
	if _, err := db.Collection("persons").UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{"context_id": c.ID}}); err != nil {
		t.Fatalf("set current context: %v", err)
	}

	h := newHandler(db)
	req := testutil.WithChiURLParam(testutil.NewRequest("GET", "/leave/"+m.LeaveSlug, nil), "slug", m.LeaveSlug)
	rec := testutil.NewRecorder()
	h.ServeLeave(rec, req)

	rec.AssertRedirect(t, "/group/garden")

	got, err := memberstore.New(db).Get(ctx, p.ID, c.ID)
	if err != nil || got == nil {
		t.Fatalf("Get member: %v, %v", got, err)
	}
	if got.Active {
		t.Error("member still active after leave")
	}
	person, err := personstore.New(db).GetByID(ctx, p.ID)
	if err != nil || person == nil {
		t.Fatalf("GetByID person: %v, %v", person, err)
	}
	if person.ContextID != nil {
		t.Errorf("current context: got %d, want cleared", *person.ContextID)
	}

	// The slug only works while the membership is active.
	rec = testutil.NewRecorder()
	h.ServeLeave(rec, testutil.WithChiURLParam(testutil.NewRequest("GET", "/leave/"+m.LeaveSlug, nil), "slug", m.LeaveSlug))
	rec.AssertStatus(t, 404)
}

func TestServeLeave_UnknownSlug(t *testing.T) {
	db := testutil.SetupTestDB(t)

	rec := testutil.NewRecorder()
	req := testutil.WithChiURLParam(testutil.NewRequest("GET", "/leave/nope", nil), "slug", "nope")
	newHandler(db).ServeLeave(rec, req)

	rec.AssertStatus(t, 404)
}
