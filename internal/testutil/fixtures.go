package testutil

import (
	"context"
	"testing"

	contextstore "github.com/dalemusser/organizer/internal/app/store/contexts"
	facetstore "github.com/dalemusser/organizer/internal/app/store/facets"
	memberstore "github.com/dalemusser/organizer/internal/app/store/members"
	personstore "github.com/dalemusser/organizer/internal/app/store/persons"
	"github.com/dalemusser/organizer/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures creates test data through the real stores.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreatePerson creates a person with the given email and name.
func (f *Fixtures) CreatePerson(ctx context.Context, email, name string) models.Person {
	f.t.Helper()
	p, err := personstore.New(f.db).Create(ctx, email, name)
	if err != nil {
		f.t.Fatalf("CreatePerson(%q): %v", email, err)
	}
	return p
}

// CreateContext creates a top-level context.
func (f *Fixtures) CreateContext(ctx context.Context, name, slug string) models.Context {
	f.t.Helper()
	c, err := contextstore.New(f.db).Create(ctx, name, slug, nil)
	if err != nil {
		f.t.Fatalf("CreateContext(%q): %v", slug, err)
	}
	return c
}

// Join makes the person an active member of the context.
func (f *Fixtures) Join(ctx context.Context, personID, contextID int64) models.Member {
	f.t.Helper()
	m, err := memberstore.New(f.db).Join(ctx, personID, contextID, nil)
	if err != nil {
		f.t.Fatalf("Join(%d, %d): %v", personID, contextID, err)
	}
	return m
}

// SetPreference stores a member's email preference.
func (f *Fixtures) SetPreference(ctx context.Context, memberID int64, pref models.EmailPreference) {
	f.t.Helper()
	if err := facetstore.New(f.db).SetEmailPreference(ctx, memberID, pref); err != nil {
		f.t.Fatalf("SetPreference(%d, %q): %v", memberID, pref, err)
	}
}
