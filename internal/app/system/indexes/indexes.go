// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureOrganizations(ctx, db); err != nil {
		problems = append(problems, "organizations: "+err.Error())
	}
	if err := ensureOrganizationRoles(ctx, db); err != nil {
		problems = append(problems, "organization_roles: "+err.Error())
	}
	if err := ensureAssistants(ctx, db); err != nil {
		problems = append(problems, "assistants: "+err.Error())
	}
	if err := ensurePublications(ctx, db); err != nil {
		problems = append(problems, "assistant_publications: "+err.Error())
	}
	if err := ensureAuditEvents(ctx, db); err != nil {
		problems = append(problems, "audit_events: "+err.Error())
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
	Name    string   `bson:"name"`
	Key     bson.D   `bson:"key"`
	Unique  *bool    `bson:"unique,omitempty"`
	Partial bson.Raw `bson:"partialFilterExpression,omitempty"`
}

// desiredIndex is the comparable shape of a mongo.IndexModel.
type desiredIndex struct {
	model   mongo.IndexModel
	name    string
	unique  bool
	keys    string
	partial string
}

func describe(m mongo.IndexModel) desiredIndex {
	d := desiredIndex{model: m, keys: keySig(m.Keys.(bson.D))}
	if m.Options != nil {
		if m.Options.Name != nil {
			d.name = *m.Options.Name
		}
		d.unique = m.Options.Unique != nil && *m.Options.Unique
		d.partial = filterSig(m.Options.PartialFilterExpression)
	}
	return d
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

// filterSig renders a partial filter expression as canonical extended JSON.
func filterSig(v interface{}) string {
	if v == nil {
		return ""
	}
	if raw, ok := v.(bson.Raw); ok && len(raw) == 0 {
		return ""
	}
	b, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func (d desiredIndex) sameOptions(ex existingIndex) bool {
	exUnique := ex.Unique != nil && *ex.Unique
	return d.unique == exUnique && d.partial == filterSig(ex.Partial)
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB sometimes returns IndexOptionsConflict when an index with the
// same keys already exists under a different name (or options differ).
func isOptionsConflictErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "IndexOptionsConflict")
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{} // sig -> index
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

func createErr(coll *mongo.Collection, d desiredIndex, err error) string {
	if isDuplicateKeyErr(err) && d.unique {
		helper := ""
		if coll.Name() == "assistants" {
			helper = "; duplicate active assistants exist. Example finder:\n" +
				`db.assistants.aggregate([{ $match: { status: "active" } }, { $group: { _id: { o: "$organization_id", n: "$name", w: "$owner_ci" }, n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`
		}
		return fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)%s", coll.Name(), d.name, helper)
	}
	return fmt.Sprintf("%s(%s): %v", coll.Name(), d.name, err)
}

// recreate drops the index named old and creates d in its place.
func recreate(ctx context.Context, coll *mongo.Collection, old string, d desiredIndex) error {
	if _, err := coll.Indexes().DropOne(ctx, old); err != nil {
		zap.L().Warn("drop existing index failed",
			zap.String("collection", coll.Name()),
			zap.String("name", old),
			zap.Error(err))
		return fmt.Errorf("%s(%s): drop failed: %v", coll.Name(), d.name, err)
	}
	if _, err := coll.Indexes().CreateOne(ctx, d.model); err != nil {
		return errors.New(createErr(coll, d, err))
	}
	return nil
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		d := describe(m)
		start := time.Now()
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", d.name),
			zap.String("keys", d.keys),
			zap.Bool("unique", d.unique))
		if d.partial != "" {
			log = log.With(zap.String("partial", d.partial))
		}
		log.Info("ensuring index")

		existing := listExisting(ctx, coll)

		if ex, ok := existing[d.keys]; ok {
			switch {
			case d.sameOptions(ex) && (d.name == "" || ex.Name == d.name):
				log.Info("reusing existing index", zap.String("took", time.Since(start).String()))
			case d.sameOptions(ex):
				// Same definition under another name: align the name.
				if err := recreate(ctx, coll, ex.Name, d); err != nil {
					errs = append(errs, err.Error())
					continue
				}
				log.Info("index renamed", zap.String("from", ex.Name), zap.String("took", time.Since(start).String()))
			default:
				// Options changed (unique or partial filter). Drop & recreate.
				if err := recreate(ctx, coll, ex.Name, d); err != nil {
					errs = append(errs, err.Error())
					continue
				}
				log.Info("index dropped and recreated", zap.String("took", time.Since(start).String()))
			}
			continue
		}

		created, err := coll.Indexes().CreateOne(ctx, m)
		if err == nil {
			log.Info("index ensured",
				zap.String("created_name", created),
				zap.String("took", time.Since(start).String()))
			continue
		}

		if isOptionsConflictErr(err) {
			// Rare: the index appeared between List and CreateOne.
			if ex, ok := listExisting(ctx, coll)[d.keys]; ok {
				if d.sameOptions(ex) {
					log.Info("reusing existing index (post-conflict)", zap.String("took", time.Since(start).String()))
					continue
				}
				if rerr := recreate(ctx, coll, ex.Name, d); rerr != nil {
					errs = append(errs, rerr.Error())
					continue
				}
				log.Info("index dropped and recreated (post-conflict)", zap.String("took", time.Since(start).String()))
				continue
			}
		}

		log.Warn("index ensure failed", zap.String("took", time.Since(start).String()), zap.Error(err))
		errs = append(errs, createErr(coll, d, err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureOrganizations(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("organizations")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_orgs_slug"),
		},
		// At most one system organization.
		{
			Keys: bson.D{{Key: "is_system", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_orgs_system").
				SetPartialFilterExpression(bson.M{"is_system": true}),
		},
		// Signup-key resolution. Not unique: uniqueness is checked on write
		// and resolution picks the oldest match.
		{
			Keys:    bson.D{{Key: "config.features.signup_key", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_orgs_signupkey__id"),
		},
		// Filter by status, then name_ci sort
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_orgs_status_nameci__id"),
		},
	})
}

func ensureOrganizationRoles(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("organization_roles")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_orgroles_org_user"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_orgroles_user_created"),
		},
		{
			Keys:    bson.D{{Key: "email_ci", Value: 1}, {Key: "organization_id", Value: 1}},
			Options: options.Index().SetName("idx_orgroles_emailci_org"),
		},
	})
}

func ensureAssistants(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("assistants")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// One active assistant per (org, name, owner). Deleted ones keep their
		// name so they stay out of the constraint.
		{
			Keys: bson.D{
				{Key: "organization_id", Value: 1},
				{Key: "name", Value: 1},
				{Key: "owner_ci", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_assistants_org_name_ownerci_active").
				SetPartialFilterExpression(bson.M{"status": "active"}),
		},
		// Owner listings, newest first.
		{
			Keys:    bson.D{{Key: "owner_ci", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_assistants_ownerci_created__id"),
		},
		{
			Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_assistants_org_status"),
		},
	})
}

func ensurePublications(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("assistant_publications")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Routing keys are unique among published assistants; unpublished
		// records hold null and are not constrained.
		{
			Keys: bson.D{{Key: "routing_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_publications_routingkey").
				SetPartialFilterExpression(bson.M{"routing_key": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}},
			Options: options.Index().SetName("idx_publications_group"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("audit_events")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_ts"),
		},
		{
			Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_org_ts"),
		},
		{
			Keys:    bson.D{{Key: "assistant_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_assistant_ts"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_type_ts"),
		},
	})
}
