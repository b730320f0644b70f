package contextstore_test

import (
	"errors"
	"testing"

	contextstore "github.com/dalemusser/organizer/internal/app/store/contexts"
	"github.com/dalemusser/organizer/internal/app/system/indexes"
	"github.com/dalemusser/organizer/internal/testutil"
)

func TestCreate_Nesting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	store := contextstore.New(db)

	parent, err := store.Create(ctx, "Neighbors", " Neighbors ", nil)
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}
	if parent.Slug != "neighbors" {
		t.Errorf("parent slug: got %q", parent.Slug)
	}

	child, err := store.Create(ctx, "Garden", "garden", &parent.ID)
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}
	if child.Slug != "neighbors/garden" {
		t.Errorf("child slug: got %q, want %q", child.Slug, "neighbors/garden")
	}

	if _, err := store.Create(ctx, "Beds", "beds", &child.ID); err == nil {
		t.Error("grandchild created; want error")
	}
	missing := int64(999)
	if _, err := store.Create(ctx, "Orphan", "orphan", &missing); err == nil {
		t.Error("child of missing parent created; want error")
	}

	got, err := store.GetBySlug(ctx, "Neighbors/Garden")
	if err != nil || got == nil {
		t.Fatalf("GetBySlug: %v, %v", got, err)
	}
	if got.ID != child.ID {
		t.Errorf("GetBySlug: got id %d, want %d", got.ID, child.ID)
	}
}

func TestCreate_DuplicateSlug(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	store := contextstore.New(db)

	if _, err := store.Create(ctx, "Garden", "garden", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, "Garden 2", "garden", nil); !errors.Is(err, contextstore.ErrDuplicateSlug) {
		t.Errorf("duplicate: got %v, want ErrDuplicateSlug", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	store := contextstore.New(db)

	tests := []struct{ name, slug string }{
		{"", "x"},
		{"X", "  "},
	}
	for _, tt := range tests {
		if _, err := store.Create(ctx, tt.name, tt.slug, nil); err == nil {
			t.Errorf("Create(%q, %q): want error", tt.name, tt.slug)
		}
	}
}
