// internal/app/store/persons/personstore.go
package personstore

import (
	"context"
	"errors"
	"time"

	counterstore "github.com/dalemusser/organizer/internal/app/store/counters"
	"github.com/dalemusser/organizer/internal/app/system/normalize"
	"github.com/dalemusser/organizer/internal/app/system/slugs"
	"github.com/dalemusser/organizer/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	slugLength   = 6
	slugAttempts = 3
)

var errEmptyEmail = errors.New("email is required")

// ErrDuplicateEmail is returned when a person with the email already exists.
var ErrDuplicateEmail = errors.New("a person with this email already exists")

type Store struct {
	c   *mongo.Collection
	seq *counterstore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("persons"),
		seq: counterstore.New(db),
	}
}

// Create inserts a person with a normalized email and a random slug.
func (s *Store) Create(ctx context.Context, email, name string) (models.Person, error) {
	email = normalize.Email(email)
	if email == "" {
		return models.Person{}, errEmptyEmail
	}
	id, err := s.seq.Next(ctx, counterstore.Persons)
	if err != nil {
		return models.Person{}, err
	}

	now := time.Now().UTC()
	name = normalize.Name(name)
	p := models.Person{
		ID:        id,
		Email:     email,
		Name:      name,
		NameCI:    text.Fold(name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// A dup can come from the email or, rarely, from a slug collision.
	for i := 0; i < slugAttempts; i++ {
		p.Slug = slugs.Random(slugLength, true)
		_, err = s.c.InsertOne(ctx, p)
		if err == nil {
			return p, nil
		}
		if !wafflemongo.IsDup(err) {
			return models.Person{}, err
		}
		existing, lookupErr := s.GetByEmail(ctx, email)
		if lookupErr != nil {
			return models.Person{}, lookupErr
		}
		if existing != nil {
			return models.Person{}, ErrDuplicateEmail
		}
	}
	return models.Person{}, err
}

// GetByID returns the person, or nil if none exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.Person, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail looks a person up by normalized email, or returns nil.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.Person, error) {
	return s.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.Person, error) {
	var p models.Person
	err := s.c.FindOne(ctx, filter).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ClearCurrentContextIf clears the current-context pointer only when it
// points at contextID.
func (s *Store) ClearCurrentContextIf(ctx context.Context, personID, contextID int64) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": personID, "context_id": contextID},
		bson.M{
			"$unset": bson.M{"context_id": ""},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
		},
	)
	return err
}
