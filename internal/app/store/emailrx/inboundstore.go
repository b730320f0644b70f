// internal/app/store/emailrx/inboundstore.go
package inboundstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/organizer/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errEmptyID = errors.New("inbound record id is required")

// Store keeps an audit row per inbound reply payload (collection email_rx).
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("email_rx")}
}

// Save stores the record, replacing an earlier one with the same id so a
// retried delivery overwrites a failed attempt. CreatedAt is set when zero.
func (s *Store) Save(ctx context.Context, rec models.InboundRecord) error {
	if rec.ID == "" {
		return errEmptyID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	return err
}

// GetByID returns the record, or nil.
func (s *Store) GetByID(ctx context.Context, id string) (*models.InboundRecord, error) {
	var rec models.InboundRecord
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
