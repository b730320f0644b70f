// internal/app/store/messages/messagestore.go
package messagestore

import (
	"context"
	"errors"
	"strings"
	"time"

	counterstore "github.com/dalemusser/organizer/internal/app/store/counters"
	facetstore "github.com/dalemusser/organizer/internal/app/store/facets"
	"github.com/dalemusser/organizer/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errEmptyContent = errors.New("message content is required")

var (
	// ErrNotFound is returned by edit and delete when the message is gone.
	ErrNotFound = errors.New("message not found")
	// ErrNotAuthor is returned when someone other than the author edits or
	// deletes a message.
	ErrNotAuthor = errors.New("only the author can change this message")
)

type Store struct {
	c      *mongo.Collection
	seq    *counterstore.Store
	facets *facetstore.Store
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:      db.Collection("messages"),
		seq:    counterstore.New(db),
		facets: facetstore.New(db),
	}
}

// Insert stores a new message and returns it with its assigned id.
func (s *Store) Insert(ctx context.Context, personID, contextID int64, inReplyTo *int64, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, errEmptyContent
	}
	id, err := s.seq.Next(ctx, counterstore.Messages)
	if err != nil {
		return models.Message{}, err
	}
	now := time.Now().UTC()
	m := models.Message{
		ID:        id,
		PersonID:  personID,
		ContextID: contextID,
		InReplyTo: inReplyTo,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// GetByID returns the message, or nil if none exists.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	var m models.Message
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByIDs returns id -> message for the ids that exist.
func (s *Store) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Message, error) {
	out := make(map[int64]models.Message)
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, cur.Err()
}

// ListUnseen returns messages in the context written by someone else,
// created after q.Since and past the cursor, oldest first, each joined with
// the author's display name.
func (s *Store) ListUnseen(ctx context.Context, q models.UnseenQuery) ([]models.DigestEntry, error) {
	match := bson.M{
		"context_id": q.ContextID,
		"person_id":  bson.M{"$ne": q.ExcludePersonID},
		"created_at": bson.M{"$gt": q.Since},
	}
	if q.AfterID != nil {
		match["_id"] = bson.M{"$gt": *q.AfterID}
	}

	pipe := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         "persons",
			"localField":   "person_id",
			"foreignField": "_id",
			"as":           "author",
		}}},
		bson.D{{Key: "$unwind", Value: "$author"}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"author_name": bson.M{"$cond": bson.A{
				bson.M{"$gt": bson.A{bson.M{"$strLenCP": bson.M{"$ifNull": bson.A{"$author.name", ""}}}, 0}},
				"$author.name",
				"$author.slug",
			}},
		}}},
		bson.D{{Key: "$project", Value: bson.M{"author": 0}}},
	}

	cur, err := s.c.Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.DigestEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateContent replaces a message's content after saving the previous
// content and timestamp as a revision facet.
func (s *Store) UpdateContent(ctx context.Context, id, authorID int64, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, errEmptyContent
	}
	m, err := s.authored(ctx, id, authorID)
	if err != nil {
		return models.Message{}, err
	}

	rev := models.Revision{Content: m.Content, Timestamp: m.UpdatedAt}
	if err := s.facets.AppendRevision(ctx, id, rev); err != nil {
		return models.Message{}, err
	}

	var updated models.Message
	err = s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"content": content, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return updated, nil
}

// Delete hard-deletes an author's message and its facets.
func (s *Store) Delete(ctx context.Context, id, authorID int64) error {
	if _, err := s.authored(ctx, id, authorID); err != nil {
		return err
	}
	if _, err := s.c.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return err
	}
	_, err := s.facets.DeleteTarget(ctx, id, models.TargetMessage)
	return err
}

func (s *Store) authored(ctx context.Context, id, authorID int64) (*models.Message, error) {
	m, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if m.PersonID != authorID {
		return nil, ErrNotAuthor
	}
	return m, nil
}
