// internal/app/store/organizations/organizationstore.go
package organizationstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/assistanthub/internal/app/system/orgconfig"
	"github.com/dalemusser/assistanthub/internal/app/system/status"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var (
	ErrDuplicateSlug = errors.New("an organization with this slug already exists")
	ErrNoSystemOrg   = errors.New("system organization has not been created")
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("organizations")}
}

// Create inserts a tenant organization. When cfg is nil the config is seeded
// from the system organization (see orgconfig.SeedTenant).
func (s *Store) Create(ctx context.Context, slug, name string, cfg *models.OrgConfig) (models.Organization, error) {
	var conf models.OrgConfig
	if cfg != nil {
		c, err := orgconfig.Clone(*cfg)
		if err != nil {
			return models.Organization{}, err
		}
		conf = c
	} else {
		sys, err := s.GetSystem(ctx)
		if err != nil {
			return models.Organization{}, err
		}
		c, err := orgconfig.SeedTenant(sys.Config)
		if err != nil {
			return models.Organization{}, err
		}
		conf = c
	}

	now := time.Now().UTC()
	org := models.Organization{
		ID:        primitive.NewObjectID(),
		Slug:      slug,
		Name:      name,
		NameCI:    text.Fold(name),
		Status:    status.Active,
		Config:    conf,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.c.InsertOne(ctx, org); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Organization{}, ErrDuplicateSlug
		}
		return models.Organization{}, err
	}
	return org, nil
}

// EnsureSystem returns the system organization, creating it with cfg when
// absent. created reports whether this call inserted it.
func (s *Store) EnsureSystem(ctx context.Context, slug, name string, cfg models.OrgConfig) (org models.Organization, created bool, err error) {
	org, err = s.GetSystem(ctx)
	if err == nil {
		return org, false, nil
	}
	if !errors.Is(err, ErrNoSystemOrg) {
		return models.Organization{}, false, err
	}

	now := time.Now().UTC()
	org = models.Organization{
		ID:        primitive.NewObjectID(),
		Slug:      slug,
		Name:      name,
		NameCI:    text.Fold(name),
		IsSystem:  true,
		Status:    status.Active,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.c.InsertOne(ctx, org); err != nil {
		if wafflemongo.IsDup(err) {
			// Another instance won the race, or the slug is taken by a tenant.
			if existing, gerr := s.GetSystem(ctx); gerr == nil {
				return existing, false, nil
			}
			return models.Organization{}, false, ErrDuplicateSlug
		}
		return models.Organization{}, false, err
	}
	return org, true, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error) {
	var org models.Organization
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&org); err != nil {
		return models.Organization{}, err
	}
	return org, nil
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (models.Organization, error) {
	var org models.Organization
	if err := s.c.FindOne(ctx, bson.M{"slug": slug}).Decode(&org); err != nil {
		return models.Organization{}, err
	}
	return org, nil
}

// GetSystem returns the system organization or ErrNoSystemOrg.
func (s *Store) GetSystem(ctx context.Context) (models.Organization, error) {
	var org models.Organization
	err := s.c.FindOne(ctx, bson.M{"is_system": true}).Decode(&org)
	if err == mongo.ErrNoDocuments {
		return models.Organization{}, ErrNoSystemOrg
	}
	if err != nil {
		return models.Organization{}, err
	}
	return org, nil
}

// ResolveBySignupKey finds the active organization whose signup is enabled
// and whose key matches exactly (case-sensitive). Uniqueness of keys is only
// checked on write, so if duplicates exist the oldest organization wins.
func (s *Store) ResolveBySignupKey(ctx context.Context, key string) (models.Organization, bool, error) {
	if key == "" {
		return models.Organization{}, false, nil
	}
	filter := bson.M{
		"status":                         status.Active,
		"config.features.signup_enabled": true,
		"config.features.signup_key":     key,
	}
	var org models.Organization
	err := s.c.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})).Decode(&org)
	if err == mongo.ErrNoDocuments {
		return models.Organization{}, false, nil
	}
	if err != nil {
		return models.Organization{}, false, err
	}
	return org, true, nil
}

// SignupKeyInUse reports whether another organization already uses key.
func (s *Store) SignupKeyInUse(ctx context.Context, key string, excludeID primitive.ObjectID) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"config.features.signup_key": key,
		"_id":                        bson.M{"$ne": excludeID},
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateSignup sets the signup switch and key of one organization.
func (s *Store) UpdateSignup(ctx context.Context, id primitive.ObjectID, enabled bool, key string) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"config.features.signup_enabled": enabled,
		"config.features.signup_key":     key,
		"updated_at":                     time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpdateConfig replaces the whole config document.
func (s *Store) UpdateConfig(ctx context.Context, id primitive.ObjectID, cfg models.OrgConfig) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"config":     cfg,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpdateStatus changes a tenant's status. The system organization always stays active.
func (s *Store) UpdateStatus(ctx context.Context, id primitive.ObjectID, st string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "is_system": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"status": st, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// List returns organizations sorted by name. An empty status lists all.
func (s *Store) List(ctx context.Context, st string) ([]models.Organization, error) {
	filter := bson.M{}
	if st != "" {
		filter["status"] = st
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var orgs []models.Organization
	if err := cur.All(ctx, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}
