package digestmembers

import (
	"context"

	"github.com/dalemusser/organizer/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Query finds memberships that receive batched digests.
type Query struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Query {
	return &Query{db: db}
}

// ListDigestEligible returns (person, context) for every active member whose
// email preference is digest, ordered by person then context.
func (q *Query) ListDigestEligible(ctx context.Context) ([]models.DigestMembership, error) {
	pipe := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"target_type": models.TargetMember,
			"facet_type":  models.EmailFacet.Type,
			"mode":        models.EmailFacet.Mode,
			"content":     string(models.EmailDigest),
		}}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         "members",
			"localField":   "target_id",
			"foreignField": "_id",
			"as":           "member",
		}}},
		bson.D{{Key: "$unwind", Value: "$member"}},
		bson.D{{Key: "$match", Value: bson.M{"member.active": true}}},
		bson.D{{Key: "$project", Value: bson.M{
			"_id":        0,
			"person_id":  "$member.person_id",
			"context_id": "$member.context_id",
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "person_id", Value: 1}, {Key: "context_id", Value: 1}}}},
	}

	cur, err := q.db.Collection("facets").Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.DigestMembership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
