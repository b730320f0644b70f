// internal/app/store/facets/facetstore.go
package facetstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dalemusser/organizer/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// appendAttempts bounds retries when two writers race for the same Seq.
const appendAttempts = 5

var (
	errWrongMode  = errors.New("facet kind has the wrong mode for this operation")
	errBadPref    = errors.New(`email preference must be "send", "digest" or "none"`)
	errAppendRace = errors.New("could not allocate facet sequence number")
)

// Store reads and writes the facets collection.
//
// Single-valued facets are stored as exactly one row per
// (target_id, target_type, facet_type); writing replaces it. Append-only
// facets get one row per write with an increasing seq.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("facets"), now: func() time.Time { return time.Now().UTC() }}
}

func keyFilter(targetID int64, tt models.TargetType, kind models.FacetKind) bson.M {
	return bson.M{
		"target_id":   targetID,
		"target_type": tt,
		"facet_type":  kind.Type,
		"mode":        kind.Mode,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Generic operations                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// Load returns every facet on a target reconstructed into a FacetSet.
func (s *Store) Load(ctx context.Context, targetID int64, tt models.TargetType) (models.FacetSet, error) {
	opts := options.Find().SetSort(bson.D{{Key: "facet_type", Value: 1}, {Key: "seq", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"target_id": targetID, "target_type": tt}, opts)
	if err != nil {
		return models.FacetSet{}, err
	}
	defer cur.Close(ctx)

	var rows []models.Facet
	if err := cur.All(ctx, &rows); err != nil {
		return models.FacetSet{}, err
	}
	return models.BuildFacetSet(rows), nil
}

// GetSingle returns the value of a single-valued facet.
// The bool is false when no row exists.
func (s *Store) GetSingle(ctx context.Context, targetID int64, tt models.TargetType, kind models.FacetKind) (string, bool, error) {
	if kind.Mode != models.SingleValued {
		return "", false, errWrongMode
	}
	var row models.Facet
	err := s.c.FindOne(ctx, keyFilter(targetID, tt, kind)).Decode(&row)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Content, true, nil
}

// GetSingleMany returns target_id -> value for every target that has the
// facet. Targets without a row are absent from the map.
func (s *Store) GetSingleMany(ctx context.Context, targetIDs []int64, tt models.TargetType, kind models.FacetKind) (map[int64]string, error) {
	out := make(map[int64]string)
	if len(targetIDs) == 0 {
		return out, nil
	}
	if kind.Mode != models.SingleValued {
		return nil, errWrongMode
	}

	cur, err := s.c.Find(ctx, bson.M{
		"target_id":   bson.M{"$in": targetIDs},
		"target_type": tt,
		"facet_type":  kind.Type,
		"mode":        kind.Mode,
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row models.Facet
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.TargetID] = row.Content
	}
	return out, cur.Err()
}

// SetSingle replaces a single-valued facet. The previous row, if any, is
// overwritten so no history accumulates.
func (s *Store) SetSingle(ctx context.Context, targetID int64, tt models.TargetType, kind models.FacetKind, value string) error {
	if kind.Mode != models.SingleValued {
		return errWrongMode
	}
	now := s.now()
	filter := keyFilter(targetID, tt, kind)
	update := bson.M{
		"$set": bson.M{
			"content":    value,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"target_id":   targetID,
			"target_type": tt,
			"facet_type":  kind.Type,
			"mode":        kind.Mode,
			"seq":         0,
			"created_at":  now,
		},
	}
	_, err := s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// CompareAndSetSingle writes value only if the facet still holds prev
// (or, when hasPrev is false, only if no row exists yet). It reports whether
// the write happened.
func (s *Store) CompareAndSetSingle(ctx context.Context, targetID int64, tt models.TargetType, kind models.FacetKind, prev string, hasPrev bool, value string) (bool, error) {
	if kind.Mode != models.SingleValued {
		return false, errWrongMode
	}
	now := s.now()

	if !hasPrev {
		_, err := s.c.InsertOne(ctx, models.Facet{
			TargetID:   targetID,
			TargetType: tt,
			FacetType:  kind.Type,
			Mode:       kind.Mode,
			Content:    value,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			if wafflemongo.IsDup(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	filter := keyFilter(targetID, tt, kind)
	filter["content"] = prev
	res, err := s.c.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"content": value, "updated_at": now}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// Append adds a row to an append-only facet. Seq is the number of rows that
// already exist.
func (s *Store) Append(ctx context.Context, targetID int64, tt models.TargetType, kind models.FacetKind, content string, ts time.Time) error {
	if kind.Mode != models.AppendOnly {
		return errWrongMode
	}
	for i := 0; i < appendAttempts; i++ {
		n, err := s.c.CountDocuments(ctx, keyFilter(targetID, tt, kind))
		if err != nil {
			return err
		}
		now := s.now()
		_, err = s.c.InsertOne(ctx, models.Facet{
			TargetID:   targetID,
			TargetType: tt,
			FacetType:  kind.Type,
			Mode:       kind.Mode,
			Seq:        int(n),
			Content:    content,
			Timestamp:  ts,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err == nil {
			return nil
		}
		if !wafflemongo.IsDup(err) {
			return err
		}
	}
	return errAppendRace
}

// DeleteTarget removes every facet on a target.
// Returns the number of documents deleted.
func (s *Store) DeleteTarget(ctx context.Context, targetID int64, tt models.TargetType) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"target_id": targetID, "target_type": tt})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Typed variants                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// EmailPreferences returns member_id -> preference for members that have an
// explicit row. Callers treat a missing entry as EmailSend.
func (s *Store) EmailPreferences(ctx context.Context, memberIDs []int64) (map[int64]models.EmailPreference, error) {
	raw, err := s.GetSingleMany(ctx, memberIDs, models.TargetMember, models.EmailFacet)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]models.EmailPreference, len(raw))
	for id, v := range raw {
		out[id] = models.EffectivePreference(v)
	}
	return out, nil
}

// SetEmailPreference stores a member's email preference.
func (s *Store) SetEmailPreference(ctx context.Context, memberID int64, pref models.EmailPreference) error {
	if _, ok := models.ParseEmailPreference(string(pref)); !ok {
		return errBadPref
	}
	return s.SetSingle(ctx, memberID, models.TargetMember, models.EmailFacet, string(pref))
}

// Watermark returns the digest cursor for (person, context). A stored value
// that is not a message id is an error, not an absent cursor.
func (s *Store) Watermark(ctx context.Context, personID, contextID int64) (models.DigestWatermark, bool, error) {
	v, ok, err := s.GetSingle(ctx, personID, models.TargetPerson, models.WatermarkFacet(contextID))
	if err != nil || !ok {
		return models.DigestWatermark{}, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return models.DigestWatermark{}, false, fmt.Errorf("digest watermark for person %d context %d: %w", personID, contextID, err)
	}
	return models.DigestWatermark{ContextID: contextID, MessageID: id}, true, nil
}

// AdvanceWatermark moves the digest cursor for (person, context) to next.
// prev is the cursor read earlier in the same batch (nil when none existed).
// The write is a compare-and-set on prev and never moves the cursor
// backwards; it reports whether the cursor moved.
func (s *Store) AdvanceWatermark(ctx context.Context, personID, contextID int64, prev *models.DigestWatermark, next int64) (bool, error) {
	kind := models.WatermarkFacet(contextID)
	val := strconv.FormatInt(next, 10)
	if prev == nil {
		return s.CompareAndSetSingle(ctx, personID, models.TargetPerson, kind, "", false, val)
	}
	if next <= prev.MessageID {
		return false, nil
	}
	return s.CompareAndSetSingle(ctx, personID, models.TargetPerson, kind,
		strconv.FormatInt(prev.MessageID, 10), true, val)
}

// AppendRevision records the prior content of an edited message.
func (s *Store) AppendRevision(ctx context.Context, messageID int64, rev models.Revision) error {
	return s.Append(ctx, messageID, models.TargetMessage, models.RevisionFacet, rev.Content, rev.Timestamp)
}
