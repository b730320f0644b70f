package facetstore_test

import (
	"testing"
	"time"

	facetstore "github.com/dalemusser/organizer/internal/app/store/facets"
	"github.com/dalemusser/organizer/internal/app/system/indexes"
	"github.com/dalemusser/organizer/internal/domain/models"
	"github.com/dalemusser/organizer/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func setup(t *testing.T) (*mongo.Database, *facetstore.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	return db, facetstore.New(db)
}

func TestEmailPreference_SingleValued(t *testing.T) {
	db, store := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.SetEmailPreference(ctx, 10, models.EmailDigest); err != nil {
		t.Fatalf("SetEmailPreference: %v", err)
	}
	if err := store.SetEmailPreference(ctx, 10, models.EmailNone); err != nil {
		t.Fatalf("SetEmailPreference: %v", err)
	}
	if err := store.SetEmailPreference(ctx, 10, "sometimes"); err == nil {
		t.Error("invalid preference accepted")
	}

	n, err := db.Collection("facets").CountDocuments(ctx, bson.M{"target_id": int64(10), "facet_type": "email"})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 1 {
		t.Errorf("rows: got %d, want 1", n)
	}

	prefs, err := store.EmailPreferences(ctx, []int64{10, 11})
	if err != nil {
		t.Fatalf("EmailPreferences: %v", err)
	}
	if prefs[10] != models.EmailNone {
		t.Errorf("member 10: got %q, want none", prefs[10])
	}
	if _, ok := prefs[11]; ok {
		t.Error("member 11 has no row but appears in result")
	}
}

func TestWatermark_CorruptValue(t *testing.T) {
	_, store := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.SetSingle(ctx, 1, models.TargetPerson, models.WatermarkFacet(5), "not-a-number"); err != nil {
		t.Fatalf("SetSingle: %v", err)
	}
	if _, ok, err := store.Watermark(ctx, 1, 5); err == nil {
		t.Errorf("Watermark on corrupt value: ok=%v, want error", ok)
	}
}

func TestWatermark_CompareAndSet(t *testing.T) {
	_, store := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, ok, err := store.Watermark(ctx, 1, 5); err != nil || ok {
		t.Fatalf("Watermark before set: ok=%v err=%v", ok, err)
	}

	moved, err := store.AdvanceWatermark(ctx, 1, 5, nil, 7)
	if err != nil || !moved {
		t.Fatalf("first advance: moved=%v err=%v", moved, err)
	}
	// A second writer that also saw no cursor loses.
	moved, err = store.AdvanceWatermark(ctx, 1, 5, nil, 8)
	if err != nil || moved {
		t.Fatalf("racing first advance: moved=%v err=%v", moved, err)
	}

	wm, ok, err := store.Watermark(ctx, 1, 5)
	if err != nil || !ok || wm.MessageID != 7 {
		t.Fatalf("Watermark: got %+v ok=%v err=%v, want 7", wm, ok, err)
	}

	// Never moves backwards.
	moved, err = store.AdvanceWatermark(ctx, 1, 5, &wm, 6)
	if err != nil || moved {
		t.Errorf("backwards advance: moved=%v err=%v", moved, err)
	}
	// Stale prev loses.
	stale := models.DigestWatermark{ContextID: 5, MessageID: 3}
	moved, err = store.AdvanceWatermark(ctx, 1, 5, &stale, 20)
	if err != nil || moved {
		t.Errorf("stale advance: moved=%v err=%v", moved, err)
	}

	moved, err = store.AdvanceWatermark(ctx, 1, 5, &wm, 12)
	if err != nil || !moved {
		t.Fatalf("advance: moved=%v err=%v", moved, err)
	}
	wm, _, _ = store.Watermark(ctx, 1, 5)
	if wm.MessageID != 12 {
		t.Errorf("Watermark: got %d, want 12", wm.MessageID)
	}

	// Cursors are per context.
	if _, ok, _ := store.Watermark(ctx, 1, 6); ok {
		t.Error("context 6 has a cursor")
	}
}

func TestRevisions_AppendAndLoad(t *testing.T) {
	_, store := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, c := range []string{"first", "second", "third"} {
		if err := store.AppendRevision(ctx, 42, models.Revision{Content: c, Timestamp: t0.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("AppendRevision(%q): %v", c, err)
		}
	}

	set, err := store.Load(ctx, 42, models.TargetMessage)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	revs := set.Revisions()
	if len(revs) != 3 {
		t.Fatalf("revisions: got %d, want 3", len(revs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if revs[i].Content != want {
			t.Errorf("revision %d: got %q, want %q", i, revs[i].Content, want)
		}
	}
	if !revs[2].Timestamp.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("revision timestamp: got %v", revs[2].Timestamp)
	}

	n, err := store.DeleteTarget(ctx, 42, models.TargetMessage)
	if err != nil {
		t.Fatalf("DeleteTarget: %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteTarget: got %d, want 3", n)
	}
}

func TestModeMismatch(t *testing.T) {
	_, store := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.SetSingle(ctx, 1, models.TargetMessage, models.RevisionFacet, "x"); err == nil {
		t.Error("SetSingle on append-only kind: want error")
	}
	if err := store.Append(ctx, 1, models.TargetMember, models.EmailFacet, "x", time.Now()); err == nil {
		t.Error("Append on single-valued kind: want error")
	}
}
