package inboundstore_test

import (
	"testing"

	inboundstore "github.com/dalemusser/organizer/internal/app/store/emailrx"
	"github.com/dalemusser/organizer/internal/domain/models"
	"github.com/dalemusser/organizer/internal/testutil"
)

func TestSave_Upserts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	store := inboundstore.New(db)

	rec := models.InboundRecord{ID: "m1", MessageID: models.NoID, PersonID: 2, Status: models.InboundFailed, Payload: "{}"}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.Status = models.InboundCreated
	rec.MessageID = 101
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	got, err := store.GetByID(ctx, "m1")
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v, %v", got, err)
	}
	if got.Status != models.InboundCreated || got.MessageID != 101 {
		t.Errorf("GetByID: got %+v", got)
	}
	n, _ := db.Collection("email_rx").CountDocuments(ctx, map[string]any{})
	if n != 1 {
		t.Errorf("records: got %d, want 1", n)
	}

	if err := store.Save(ctx, models.InboundRecord{}); err == nil {
		t.Error("record without id accepted")
	}
}
