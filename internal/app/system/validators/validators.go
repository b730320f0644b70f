// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/organizer/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	// helper: ensure collection exists (with truthful logging) and then validator (if provided)
	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			// DocumentDB or other deployments may not support collMod/validators.
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("persons", personsSchema())
	ensure("contexts", contextsSchema())
	ensure("members", membersSchema())
	ensure("messages", messagesSchema())
	ensure("facets", facetsSchema())
	ensure("email_tx", ticketsSchema())
	ensure("email_rx", inboundSchema())

	// Id sequences; documents are {_id: name, seq: n}.
	ensure("counters", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

// Go int64 fields may be stored as int or long depending on magnitude.
var integer = bson.M{"bsonType": bson.A{"int", "long"}}

var optionalInteger = bson.M{"bsonType": bson.A{"int", "long", "null"}}

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func personsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "email", "slug"},
			"properties": bson.M{
				"_id":        integer,
				"email":      nonBlank,
				"slug":       nonBlank,
				"name":       bson.M{"bsonType": "string"},
				"name_ci":    bson.M{"bsonType": "string"},
				"context_id": optionalInteger,
			},
		},
	}
}

func contextsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "name", "slug"},
			"properties": bson.M{
				"_id":       integer,
				"parent_id": optionalInteger,
				"name":      nonBlank,
				"slug":      nonBlank,
			},
		},
	}
}

func membersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "person_id", "context_id", "active", "leave_slug", "invite_slug"},
			"properties": bson.M{
				"_id":         integer,
				"person_id":   integer,
				"context_id":  integer,
				"active":      bson.M{"bsonType": "bool"},
				"leave_slug":  nonBlank,
				"invite_slug": nonBlank,
				"invited_by":  optionalInteger,
			},
		},
	}
}

func messagesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "person_id", "context_id", "content", "created_at"},
			"properties": bson.M{
				"_id":         integer,
				"person_id":   integer,
				"context_id":  integer,
				"in_reply_to": optionalInteger,
				"content":     nonBlank,
				"created_at":  bson.M{"bsonType": "date"},
			},
		},
	}
}

func facetsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"target_id", "target_type", "facet_type", "mode", "seq", "content"},
			"properties": bson.M{
				"target_id":   integer,
				"target_type": bson.M{"enum": bson.A{string(models.TargetPerson), string(models.TargetMember), string(models.TargetMessage)}},
				"facet_type":  nonBlank,
				"mode":        bson.M{"enum": bson.A{string(models.SingleValued), string(models.AppendOnly)}},
				"seq":         integer,
				"content":     bson.M{"bsonType": "string"},
			},
		},
	}
}

func ticketsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "context_id", "message_id", "person_id"},
			"properties": bson.M{
				"_id":        nonBlank,
				"context_id": integer,
				"message_id": integer,
				"person_id":  integer,
			},
		},
	}
}

func inboundSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"_id", "message_id", "person_id", "status", "payload"},
			"properties": bson.M{
				"_id":        nonBlank,
				"message_id": integer,
				"person_id":  integer,
				"status": bson.M{"enum": bson.A{
					models.InboundCreated, models.InboundUncorrelated, models.InboundUnparsable, models.InboundFailed,
				}},
				"payload": bson.M{"bsonType": "string"},
			},
		},
	}
}
