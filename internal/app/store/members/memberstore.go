// internal/app/store/members/memberstore.go
package memberstore

import (
	"context"
	"time"

	counterstore "github.com/dalemusser/organizer/internal/app/store/counters"
	"github.com/dalemusser/organizer/internal/app/system/slugs"
	"github.com/dalemusser/organizer/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c   *mongo.Collection
	seq *counterstore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("members"),
		seq: counterstore.New(db),
	}
}

// Join makes the person an active member of the context. An existing
// inactive membership is reactivated rather than duplicated; its slugs are
// kept.
func (s *Store) Join(ctx context.Context, personID, contextID int64, invitedBy *int64) (models.Member, error) {
	existing, err := s.Get(ctx, personID, contextID)
	if err != nil {
		return models.Member{}, err
	}
	if existing != nil {
		return s.reactivate(ctx, existing)
	}

	id, err := s.seq.Next(ctx, counterstore.Members)
	if err != nil {
		return models.Member{}, err
	}
	now := time.Now().UTC()
	m := models.Member{
		ID:         id,
		PersonID:   personID,
		ContextID:  contextID,
		Active:     true,
		LeaveSlug:  slugs.Token(),
		InviteSlug: slugs.Token(),
		InvitedBy:  invitedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if !wafflemongo.IsDup(err) {
			return models.Member{}, err
		}
		// Lost a race with a concurrent join; use the winner's row.
		existing, err = s.Get(ctx, personID, contextID)
		if err != nil {
			return models.Member{}, err
		}
		if existing == nil {
			return models.Member{}, mongo.ErrNoDocuments
		}
		return s.reactivate(ctx, existing)
	}
	return m, nil
}

func (s *Store) reactivate(ctx context.Context, m *models.Member) (models.Member, error) {
	if m.Active {
		return *m, nil
	}
	now := time.Now().UTC()
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{"active": true, "updated_at": now}},
	)
	if err != nil {
		return models.Member{}, err
	}
	m.Active = true
	m.UpdatedAt = now
	return *m, nil
}

// Get returns the membership for (person, context) whether active or not,
// or nil if none exists.
func (s *Store) Get(ctx context.Context, personID, contextID int64) (*models.Member, error) {
	return s.findOne(ctx, bson.M{"person_id": personID, "context_id": contextID})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.Member, error) {
	var m models.Member
	err := s.c.FindOne(ctx, filter).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LeaveBySlug deactivates the active membership identified by its leave
// slug and returns it as it was before the update. Returns nil when no
// active membership carries the slug.
func (s *Store) LeaveBySlug(ctx context.Context, slug string) (*models.Member, error) {
	var m models.Member
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"leave_slug": slug, "active": true},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Touch bumps updated_at on the membership after the person posts.
func (s *Store) Touch(ctx context.Context, personID, contextID int64) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"person_id": personID, "context_id": contextID},
		bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	return err
}
