// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
Errors are aggregated so every problem is reported and startup fails fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	steps := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"persons", ensurePersons},
		{"contexts", ensureContexts},
		{"members", ensureMembers},
		{"messages", ensureMessages},
		{"facets", ensureFacets},
		{"email_tx", ensureEmailTx},
		{"email_rx", ensureEmailRx},
	}

	var problems []string
	for _, s := range steps {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

func listExisting(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]existingIndex)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensureIndexSet makes coll carry every index in desired. An index with the
// same keys is reused when its uniqueness matches and its name matches (or no
// name is requested); otherwise it is dropped and recreated.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, desired []mongo.IndexModel) error {
	existing, err := listExisting(ctx, coll)
	if err != nil {
		// Collection may not exist yet; CreateOne will make it.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range desired {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", isUnique(unique)))

		if ex, ok := existing[sig]; ok {
			if isUnique(ex.Unique) == isUnique(unique) && (name == "" || ex.Name == name) {
				log.Debug("reusing existing index", zap.String("existing", ex.Name))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop mismatched index failed", zap.String("existing", ex.Name), zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if wafflemongo.IsDup(err) && isUnique(unique) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			log.Warn("index ensure failed", zap.Error(err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensurePersons(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("persons"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_persons_email"),
		},
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_persons_slug"),
		},
	})
}

func ensureContexts(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("contexts"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_contexts_slug"),
		},
		{
			Keys:    bson.D{{Key: "parent_id", Value: 1}},
			Options: options.Index().SetName("idx_contexts_parent"),
		},
	})
}

func ensureMembers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("members"), []mongo.IndexModel{
		// Exactly one membership per (person, context); leaving flips active.
		{
			Keys:    bson.D{{Key: "person_id", Value: 1}, {Key: "context_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_members_person_context"),
		},
		// Fan-out: active members of a context.
		{
			Keys:    bson.D{{Key: "context_id", Value: 1}, {Key: "active", Value: 1}},
			Options: options.Index().SetName("idx_members_context_active"),
		},
		{
			Keys:    bson.D{{Key: "leave_slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_members_leave_slug"),
		},
		{
			Keys:    bson.D{{Key: "invite_slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_members_invite_slug"),
		},
	})
}

func ensureMessages(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("messages"), []mongo.IndexModel{
		// Digest selection: one context, recent, ordered by creation.
		{
			Keys:    bson.D{{Key: "context_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_messages_context_created"),
		},
		{
			Keys:    bson.D{{Key: "in_reply_to", Value: 1}},
			Options: options.Index().SetName("idx_messages_in_reply_to"),
		},
	})
}

func ensureFacets(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("facets"), []mongo.IndexModel{
		// One row per single-valued key; one row per seq for append-only.
		{
			Keys: bson.D{
				{Key: "target_id", Value: 1},
				{Key: "target_type", Value: 1},
				{Key: "facet_type", Value: 1},
				{Key: "seq", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_facets_target_type_seq"),
		},
		// Digest eligibility: every member whose email facet is "digest".
		{
			Keys:    bson.D{{Key: "target_type", Value: 1}, {Key: "facet_type", Value: 1}, {Key: "content", Value: 1}},
			Options: options.Index().SetName("idx_facets_type_content"),
		},
	})
}

func ensureEmailTx(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("email_tx"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetName("idx_email_tx_message"),
		},
	})
}

func ensureEmailRx(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("email_rx"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_email_rx_status_created"),
		},
	})
}
