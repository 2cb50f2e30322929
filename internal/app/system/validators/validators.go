package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/assistanthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		zap.L().Warn("listCollections failed; falling back to create-and-handle-race", zap.Error(err))
	}
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}

	ensure := func(coll string, schema bson.M) {
		if err := ensureCollection(ctx, db, coll, have[coll]); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isUnsupported(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("organizations", orgsSchema())
	ensure("organization_roles", orgRolesSchema())
	ensure("assistants", assistantsSchema())
	ensure("assistant_publications", publicationsSchema())
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, exists bool) error {
	if exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func commandMatches(err error, codes []int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		for _, c := range codes {
			if ce.Code == c {
				return true
			}
		}
	}
	s := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool {
	return commandMatches(err, []int32{48}, "already exists", "namespace exists")
}

// isUnsupported covers "no such command" (59) and "not implemented" (115).
func isUnsupported(err error) bool {
	return commandMatches(err, []int32{59, 115}, "no such command", "not implemented", "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func nonBlank() bson.M {
	return bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}
}

func orgsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"slug", "name", "status", "is_system", "config"},
			"properties": bson.M{
				"slug":      bson.M{"bsonType": "string", "pattern": "^[a-z0-9][a-z0-9-]{0,62}[a-z0-9]$"},
				"name":      nonBlank(),
				"is_system": bson.M{"bsonType": "bool"},
				"status":    bson.M{"enum": bson.A{"active", "suspended", "trial"}},
				"config": bson.M{
					"bsonType": "object",
					"properties": bson.M{
						"features": bson.M{
							"bsonType": "object",
							"properties": bson.M{
								"signup_enabled": bson.M{"bsonType": "bool"},
								"signup_key":     bson.M{"bsonType": "string"},
							},
						},
					},
				},
			},
		},
	}
}

func orgRolesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"organization_id", "user_id", "role"},
			"properties": bson.M{
				"organization_id": bson.M{"bsonType": "objectId"},
				"user_id":         nonBlank(),
				"role":            bson.M{"enum": bson.A{models.OrgRoleOwner, models.OrgRoleAdmin, models.OrgRoleMember}},
			},
		},
	}
}

func assistantsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"organization_id", "name", "owner", "status"},
			"properties": bson.M{
				"organization_id": bson.M{"bsonType": "objectId"},
				"name":            nonBlank(),
				"owner":           nonBlank(),
				"status":          bson.M{"enum": bson.A{"active", "deleted"}},
				"deleted_at":      bson.M{"bsonType": "date"},
			},
		},
	}
}

func publicationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_id"},
			"properties": bson.M{
				"group_id":    bson.M{"bsonType": "string"},
				"routing_key": bson.M{"bsonType": bson.A{"string", "null"}},
			},
		},
	}
}
