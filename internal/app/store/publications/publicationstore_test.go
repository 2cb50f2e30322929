package publicationstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	publicationstore "github.com/dalemusser/assistanthub/internal/app/store/publications"
	"github.com/dalemusser/assistanthub/internal/app/system/indexes"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/assistanthub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func setup(t *testing.T) (*publicationstore.Store, *mongo.Database, context.Context) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	return publicationstore.New(db), db, ctx
}

func pub(id primitive.ObjectID, key *string) models.Publication {
	return models.Publication{
		AssistantID:    id,
		OrganizationID: primitive.NewObjectID(),
		AssistantName:  "Tutor",
		Owner:          "a@x.com",
		GroupID:        "grp-1",
		GroupName:      "assistant_" + id.Hex(),
		RoutingKey:     key,
	}
}

func strPtr(s string) *string { return &s }

func TestStore_Upsert_Idempotent(t *testing.T) {
	store, db, ctx := setup(t)
	id := primitive.NewObjectID()

	first, err := store.Upsert(ctx, pub(id, strPtr("Tutor")))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !first.IsPublished() {
		t.Error("expected record to be published")
	}

	second, err := store.Upsert(ctx, pub(id, strPtr("Tutor")))
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("created_at should not change on repeat publish")
	}

	n, err := db.Collection("assistant_publications").CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected a single record, got %d", n)
	}
}

func TestStore_Upsert_RoutingKeyTaken(t *testing.T) {
	store, _, ctx := setup(t)

	if _, err := store.Upsert(ctx, pub(primitive.NewObjectID(), strPtr("Tutor"))); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	_, err := store.Upsert(ctx, pub(primitive.NewObjectID(), strPtr("Tutor")))
	if !errors.Is(err, publicationstore.ErrRoutingKeyTaken) {
		t.Errorf("expected ErrRoutingKeyTaken, got %v", err)
	}
}

func TestStore_NullKeysAreUnconstrained(t *testing.T) {
	store, _, ctx := setup(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Upsert(ctx, pub(primitive.NewObjectID(), nil)); err != nil {
			t.Fatalf("Upsert %d with nil key failed: %v", i, err)
		}
	}
}

func TestStore_ClearRoutingKey(t *testing.T) {
	store, _, ctx := setup(t)
	id := primitive.NewObjectID()

	if _, err := store.Upsert(ctx, pub(id, strPtr("Tutor"))); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	found, err := store.ClearRoutingKey(ctx, id)
	if err != nil {
		t.Fatalf("ClearRoutingKey failed: %v", err)
	}
	if !found {
		t.Fatal("expected record to be found")
	}

	got, found, err := store.GetByAssistant(ctx, id)
	if err != nil || !found {
		t.Fatalf("GetByAssistant: found=%v err=%v", found, err)
	}
	if got.IsPublished() {
		t.Error("expected record to be unpublished")
	}
	if got.GroupID != "grp-1" {
		t.Error("group mapping should survive unpublish")
	}

	// The key is free again for another assistant.
	if _, err := store.Upsert(ctx, pub(primitive.NewObjectID(), strPtr("Tutor"))); err != nil {
		t.Errorf("expected key to be reusable, got %v", err)
	}

	found, err = store.ClearRoutingKey(ctx, primitive.NewObjectID())
	if err != nil {
		t.Fatalf("ClearRoutingKey failed: %v", err)
	}
	if found {
		t.Error("expected missing record to report not found")
	}
}

func TestStore_LegacyKey(t *testing.T) {
	store, db, ctx := setup(t)
	id := primitive.NewObjectID()
	now := time.Now().UTC()

	_, err := db.Collection("assistant_publications").InsertOne(ctx, bson.M{
		"_id":                 id,
		"organization_id":     primitive.NewObjectID(),
		"assistant_name":      "Legacy",
		"owner":               "old@x.com",
		"group_id":            "grp-legacy",
		"group_name":          "assistant_" + id.Hex(),
		"routing_key":         nil,
		"oauth_consumer_name": "Legacy",
		"created_at":          now,
		"updated_at":          now,
	})
	if err != nil {
		t.Fatalf("InsertOne failed: %v", err)
	}

	got, found, err := store.GetByRoutingKey(ctx, "Legacy")
	if err != nil || !found {
		t.Fatalf("GetByRoutingKey: found=%v err=%v", found, err)
	}
	if got.AssistantID != id {
		t.Errorf("expected legacy record, got %s", got.AssistantID.Hex())
	}
	if !got.IsPublished() || *got.Key() != "Legacy" {
		t.Error("expected legacy key to be read through Key()")
	}

	// Another assistant cannot claim a key held under the legacy name.
	_, err = store.Upsert(ctx, pub(primitive.NewObjectID(), strPtr("Legacy")))
	if !errors.Is(err, publicationstore.ErrRoutingKeyTaken) {
		t.Errorf("expected ErrRoutingKeyTaken, got %v", err)
	}

	// Rewriting the record migrates the key.
	migrated, err := store.Upsert(ctx, pub(id, strPtr("Legacy")))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if migrated.LegacyKey != nil {
		t.Error("expected legacy field to be removed")
	}
	if migrated.RoutingKey == nil || *migrated.RoutingKey != "Legacy" {
		t.Error("expected key to move to routing_key")
	}
}

func TestStore_PlaceholderKey(t *testing.T) {
	store, _, ctx := setup(t)
	id := primitive.NewObjectID()

	got, err := store.Upsert(ctx, pub(id, strPtr("null")))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.IsPublished() {
		t.Error(`"null" must not count as published`)
	}
	if got.RoutingKey != nil {
		t.Error(`expected "null" to be stored as a real null`)
	}
	// A second placeholder does not collide with the first.
	if _, err := store.Upsert(ctx, pub(primitive.NewObjectID(), strPtr("null"))); err != nil {
		t.Errorf("second placeholder Upsert failed: %v", err)
	}
	if _, found, _ := store.GetByRoutingKey(ctx, "null"); found {
		t.Error(`"null" must never resolve a record`)
	}
}

func TestStore_Delete(t *testing.T) {
	store, _, ctx := setup(t)
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	if _, err := store.Upsert(ctx, pub(a, strPtr("A"))); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := store.Upsert(ctx, pub(b, nil)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	n, err := store.Delete(ctx, a)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Delete: got %d, want 1", n)
	}
	if _, found, _ := store.GetByAssistant(ctx, a); found {
		t.Error("expected record to be deleted")
	}
	if _, found, _ := store.GetByAssistant(ctx, b); !found {
		t.Error("Delete removed the wrong record")
	}
}
