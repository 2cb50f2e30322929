// internal/app/store/publications/publicationstore.go
package publicationstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/assistanthub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrRoutingKeyTaken is returned when a routing key is already published by a
// different assistant.
var ErrRoutingKeyTaken = errors.New("routing key is already used by another assistant")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("assistant_publications")}
}

// Upsert writes the publication record of p.AssistantID, creating it when
// absent. A record holding the same key is left with that key, so repeating
// the call is a no-op apart from updated_at. Any legacy key field is dropped.
func (s *Store) Upsert(ctx context.Context, p models.Publication) (models.Publication, error) {
	// The "null" placeholder of older writers is stored as a real null.
	if p.RoutingKey != nil && (*p.RoutingKey == "" || *p.RoutingKey == "null") {
		p.RoutingKey = nil
	}
	if p.RoutingKey != nil {
		taken, err := s.keyTakenByOther(ctx, *p.RoutingKey, p.AssistantID)
		if err != nil {
			return models.Publication{}, err
		}
		if taken {
			return models.Publication{}, ErrRoutingKeyTaken
		}
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"organization_id": p.OrganizationID,
			"assistant_name":  p.AssistantName,
			"owner":           p.Owner,
			"group_id":        p.GroupID,
			"group_name":      p.GroupName,
			"routing_key":     p.RoutingKey,
			"updated_at":      now,
		},
		"$setOnInsert": bson.M{"created_at": now},
		"$unset":       bson.M{"oauth_consumer_name": ""},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.Publication
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": p.AssistantID}, update, opts).Decode(&out)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return models.Publication{}, ErrRoutingKeyTaken
		}
		return models.Publication{}, err
	}
	return out, nil
}

// keyTakenByOther checks both the current and the legacy key field; only the
// current field is covered by the unique index.
func (s *Store) keyTakenByOther(ctx context.Context, key string, assistantID primitive.ObjectID) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"_id": bson.M{"$ne": assistantID},
		"$or": bson.A{
			bson.M{"routing_key": key},
			bson.M{"routing_key": nil, "oauth_consumer_name": key},
		},
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearRoutingKey unpublishes the assistant while keeping its group mapping,
// so it can be published again. found is false when there is no record.
func (s *Store) ClearRoutingKey(ctx context.Context, assistantID primitive.ObjectID) (found bool, err error) {
	res, err := s.c.UpdateByID(ctx, assistantID, bson.M{
		"$set":   bson.M{"routing_key": nil, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"oauth_consumer_name": ""},
	})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// Delete removes the record of assistantID.
func (s *Store) Delete(ctx context.Context, assistantID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": assistantID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// GetByAssistant returns the record of assistantID.
func (s *Store) GetByAssistant(ctx context.Context, assistantID primitive.ObjectID) (models.Publication, bool, error) {
	return s.findOne(ctx, bson.M{"_id": assistantID})
}

// GetByRoutingKey finds the published record for key, including records that
// still carry the key under its legacy field name.
func (s *Store) GetByRoutingKey(ctx context.Context, key string) (models.Publication, bool, error) {
	if key == "" || key == "null" {
		return models.Publication{}, false, nil
	}
	return s.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"routing_key": key},
		bson.M{"routing_key": nil, "oauth_consumer_name": key},
	}})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Publication, bool, error) {
	var p models.Publication
	err := s.c.FindOne(ctx, filter).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return models.Publication{}, false, nil
	}
	if err != nil {
		return models.Publication{}, false, err
	}
	return p, true, nil
}
