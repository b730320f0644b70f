// internal/app/store/emailtx/ticketstore.go
package ticketstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/organizer/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var errEmptyID = errors.New("ticket id is required")

// Store records delivered notification emails (collection email_tx).
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("email_tx")}
}

// Insert records a ticket. CreatedAt is set when zero.
func (s *Store) Insert(ctx context.Context, t models.Ticket) error {
	if t.ID == "" {
		return errEmptyID
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, t)
	return err
}

// GetByID returns the ticket for a transport message id, or nil.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	var t models.Ticket
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
