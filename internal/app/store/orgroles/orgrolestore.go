// internal/app/store/orgroles/orgrolestore.go
package orgrolestore

import (
	"context"
	"time"

	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("organization_roles")}
}

// Set creates or replaces the role of userID in orgID.
func (s *Store) Set(ctx context.Context, orgID primitive.ObjectID, userID, email, role string) (models.OrganizationRole, error) {
	now := time.Now().UTC()
	filter := bson.M{"organization_id": orgID, "user_id": userID}
	update := bson.M{
		"$set": bson.M{
			"email":      email,
			"email_ci":   text.Fold(email),
			"role":       role,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.OrganizationRole
	if err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return models.OrganizationRole{}, err
	}
	return out, nil
}

// Get returns the explicit role record of userID in orgID.
func (s *Store) Get(ctx context.Context, orgID primitive.ObjectID, userID string) (models.OrganizationRole, bool, error) {
	return s.findOne(ctx, bson.M{"organization_id": orgID, "user_id": userID})
}

// GetByEmail looks the record up by email (case-insensitive).
func (s *Store) GetByEmail(ctx context.Context, orgID primitive.ObjectID, email string) (models.OrganizationRole, bool, error) {
	return s.findOne(ctx, bson.M{"organization_id": orgID, "email_ci": text.Fold(email)})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.OrganizationRole, bool, error) {
	var r models.OrganizationRole
	err := s.c.FindOne(ctx, filter).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return models.OrganizationRole{}, false, nil
	}
	if err != nil {
		return models.OrganizationRole{}, false, err
	}
	return r, true, nil
}

// RoleFor returns the effective role; a user without a record is a member.
func (s *Store) RoleFor(ctx context.Context, orgID primitive.ObjectID, userID string) (string, error) {
	r, found, err := s.Get(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	if !found {
		return models.OrgRoleMember, nil
	}
	return r.Role, nil
}

// ListForUser returns every role record of userID, oldest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]models.OrganizationRole, error) {
	return s.find(ctx, bson.M{"user_id": userID})
}

// ListForOrg returns every explicit role in orgID, oldest first.
func (s *Store) ListForOrg(ctx context.Context, orgID primitive.ObjectID) ([]models.OrganizationRole, error) {
	return s.find(ctx, bson.M{"organization_id": orgID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.OrganizationRole, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.OrganizationRole
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove deletes the explicit role, reverting the user to member.
func (s *Store) Remove(ctx context.Context, orgID primitive.ObjectID, userID string) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"organization_id": orgID, "user_id": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
