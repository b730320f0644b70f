// internal/app/store/contexts/contextstore.go
package contextstore

import (
	"context"
	"errors"
	"strings"
	"time"

	counterstore "github.com/dalemusser/organizer/internal/app/store/counters"
	"github.com/dalemusser/organizer/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	errEmptyName     = errors.New("context name is required")
	errEmptySlug     = errors.New("context slug is required")
	errParentMissing = errors.New("parent context not found")
	errNestedParent  = errors.New("subgroups cannot have subgroups")
)

// ErrDuplicateSlug is returned when the composed slug is already taken.
var ErrDuplicateSlug = errors.New("a context with this slug already exists")

type Store struct {
	c   *mongo.Collection
	seq *counterstore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("contexts"),
		seq: counterstore.New(db),
	}
}

// Create inserts a context. When parentID is set, the stored slug is
// "parent-slug/slug"; only one level of nesting is allowed.
func (s *Store) Create(ctx context.Context, name, slug string, parentID *int64) (models.Context, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" {
		return models.Context{}, errEmptyName
	}
	if slug == "" {
		return models.Context{}, errEmptySlug
	}

	if parentID != nil {
		parent, err := s.GetByID(ctx, *parentID)
		if err != nil {
			return models.Context{}, err
		}
		if parent == nil {
			return models.Context{}, errParentMissing
		}
		if parent.ParentID != nil {
			return models.Context{}, errNestedParent
		}
		slug = parent.Slug + "/" + slug
	}

	id, err := s.seq.Next(ctx, counterstore.Contexts)
	if err != nil {
		return models.Context{}, err
	}
	c := models.Context{
		ID:        id,
		ParentID:  parentID,
		Name:      name,
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Context{}, ErrDuplicateSlug
		}
		return models.Context{}, err
	}
	return c, nil
}

// GetByID returns the context, or nil if none exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.Context, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetBySlug returns the context with the (composed) slug, or nil.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*models.Context, error) {
	return s.findOne(ctx, bson.M{"slug": strings.ToLower(slug)})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.Context, error) {
	var c models.Context
	err := s.c.FindOne(ctx, filter).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
