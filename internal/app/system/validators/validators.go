// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	groupstore "github.com/dalemusser/whoseturn/internal/app/store/groups"
	"github.com/dalemusser/whoseturn/internal/app/store/turnlog"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates the collections (if missing) and tries to attach
// JSON-Schema validators. On servers that don't support collMod/validators
// (e.g. some DocumentDB versions), we log and skip gracefully.
//
// Collections must exist before the first transaction touches them, since
// MongoDB cannot create a collection inside a multi-document transaction on
// older servers.
func EnsureAll(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll, log); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema, log); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				log.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure(groupstore.Collection, groupsSchema())
	ensure(turnlog.Collection, turnLogSchema())

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, log *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		log.Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			log.Debug("collection exists", zap.String("collection", name))
			return false, nil
		}
		log.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	log.Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *zap.Logger) error {
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
	log.Info("validator ensured", zap.String("collection", name))
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

var (
	nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}
	integer  = bson.M{"bsonType": bson.A{"int", "long"}}
	uidSet   = bson.M{"bsonType": bson.A{"object", "null"}, "additionalProperties": bson.M{"bsonType": "bool"}}
)

func groupsSchema() bson.M {
	participant := bson.M{
		"bsonType": "object",
		"required": bson.A{"id", "role", "turn_count"},
		"properties": bson.M{
			"id":         nonBlank,
			"uid":        bson.M{"bsonType": bson.A{"string", "null"}},
			"nickname":   bson.M{"bsonType": "string"},
			"role":       bson.M{"enum": bson.A{string(models.RoleAdmin), string(models.RoleMember)}},
			"turn_count": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
		},
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "owner_uid", "participants", "turn_order", "revision"},
			"properties": bson.M{
				"name":             nonBlank,
				"name_ci":          nonBlank,
				"icon":             bson.M{"bsonType": "string"},
				"owner_uid":        nonBlank,
				"participants":     bson.M{"bsonType": bson.A{"array", "null"}, "items": participant},
				"turn_order":       bson.M{"bsonType": bson.A{"array", "null"}, "items": nonBlank},
				"participant_uids": uidSet,
				"admin_uids":       uidSet,
				"revision":         integer,
				"created_at":       bson.M{"bsonType": "date"},
				"updated_at":       bson.M{"bsonType": "date"},
			},
		},
	}
}

func turnLogSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"gid", "type", "completed_at", "actor_uid"},
			"properties": bson.M{
				"gid": nonBlank,
				"type": bson.M{"enum": bson.A{
					string(models.LogTurnCompleted),
					string(models.LogTurnSkipped),
					string(models.LogCountsReset),
					string(models.LogTurnUndone),
				}},
				"completed_at":     bson.M{"bsonType": "date"},
				"actor_uid":        nonBlank,
				"actor_name":       bson.M{"bsonType": "string"},
				"participant_id":   bson.M{"bsonType": "string"},
				"participant_name": bson.M{"bsonType": "string"},
				"undone_entry_id":  bson.M{"bsonType": "string"},
				"is_undone":        bson.M{"bsonType": "bool"},
				"participant_uids": uidSet,
				"admin_uids":       uidSet,
			},
		},
	}
}
