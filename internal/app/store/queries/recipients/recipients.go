package recipients

import (
	"context"

	"github.com/dalemusser/organizer/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Query lists the people a new message in a context should reach.
type Query struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Query {
	return &Query{db: db}
}

// ActiveMembers returns every active member of contextID except
// excludePersonID, joined with its person and context. Members whose person
// or context row is missing are dropped.
func (q *Query) ActiveMembers(ctx context.Context, contextID, excludePersonID int64) ([]models.Recipient, error) {
	pipe := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"context_id": contextID,
			"active":     true,
			"person_id":  bson.M{"$ne": excludePersonID},
		}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         "persons",
			"localField":   "person_id",
			"foreignField": "_id",
			"as":           "person",
		}}},
		bson.D{{Key: "$unwind", Value: "$person"}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         "contexts",
			"localField":   "context_id",
			"foreignField": "_id",
			"as":           "context",
		}}},
		bson.D{{Key: "$unwind", Value: "$context"}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		bson.D{{Key: "$project", Value: bson.M{
			"_id":          0,
			"member_id":    "$_id",
			"leave_slug":   1,
			"invite_slug":  1,
			"person_id":    1,
			"email":        "$person.email",
			"name":         "$person.name",
			"context_name": "$context.name",
			"context_slug": "$context.slug",
		}}},
	}

	cur, err := q.db.Collection("members").Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Recipient
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
