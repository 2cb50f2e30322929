package assistantstore_test

import (
	"context"
	"errors"
	"testing"

	assistantstore "github.com/dalemusser/assistanthub/internal/app/store/assistants"
	publicationstore "github.com/dalemusser/assistanthub/internal/app/store/publications"
	"github.com/dalemusser/assistanthub/internal/app/system/indexes"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/assistanthub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type env struct {
	db    *mongo.Database
	store *assistantstore.Store
	pubs  *publicationstore.Store
	ctx   context.Context
	orgID primitive.ObjectID
}

func setup(t *testing.T) env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	return env{
		db:    db,
		store: assistantstore.New(db),
		pubs:  publicationstore.New(db),
		ctx:   ctx,
		orgID: primitive.NewObjectID(),
	}
}

func (e env) create(t *testing.T, name, owner string) models.Assistant {
	t.Helper()
	a, created, err := e.store.Create(e.ctx, models.Assistant{
		OrganizationID: e.orgID,
		Name:           name,
		Owner:          owner,
		Description:    "helps with homework",
		RAG:            models.RAGSettings{TopK: 4},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !created {
		t.Fatalf("expected %q to be created", name)
	}
	return a
}

func TestStore_Create_Duplicate(t *testing.T) {
	e := setup(t)
	a := e.create(t, "Tutor", "a@x.com")

	if a.Status != assistantstore.StatusActive {
		t.Errorf("Status: got %q, want %q", a.Status, assistantstore.StatusActive)
	}
	if a.OwnerCI != "a@x.com" {
		t.Errorf("OwnerCI: got %q", a.OwnerCI)
	}

	// Same org, name and owner (owner compared case-insensitively).
	_, created, err := e.store.Create(e.ctx, models.Assistant{
		OrganizationID: e.orgID,
		Name:           "Tutor",
		Owner:          "A@X.com",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created {
		t.Error("duplicate create must report created=false")
	}

	n, err := e.db.Collection("assistants").CountDocuments(e.ctx, bson.M{"name": "Tutor"})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected a single row, got %d", n)
	}
}

func TestStore_Create_SameNameDifferentOwnerOrOrg(t *testing.T) {
	e := setup(t)
	e.create(t, "Tutor", "a@x.com")
	e.create(t, "Tutor", "b@x.com")

	_, created, err := e.store.Create(e.ctx, models.Assistant{
		OrganizationID: primitive.NewObjectID(),
		Name:           "Tutor",
		Owner:          "a@x.com",
	})
	if err != nil || !created {
		t.Errorf("expected create in another org to succeed, created=%v err=%v", created, err)
	}
}

func TestStore_Create_UniqueIndexBacksPrecheck(t *testing.T) {
	e := setup(t)
	a := e.create(t, "Tutor", "a@x.com")

	// Bypass the read-then-write check; the partial unique index still holds.
	dup := a
	dup.ID = primitive.NewObjectID()
	_, err := e.db.Collection("assistants").InsertOne(e.ctx, dup)
	if err == nil {
		t.Fatal("expected duplicate key error from unique index")
	}
}

func TestStore_GetDerivesPublished(t *testing.T) {
	e := setup(t)
	a := e.create(t, "Tutor", "a@x.com")

	v, found, err := e.store.Get(e.ctx, a.ID)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if v.Published || v.RoutingKey != nil {
		t.Error("new assistant must not be published")
	}

	key := "Tutor"
	if _, err := e.pubs.Upsert(e.ctx, models.Publication{
		AssistantID: a.ID, OrganizationID: e.orgID, AssistantName: a.Name,
		Owner: a.Owner, GroupID: "g1", RoutingKey: &key,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	v, _, err = e.store.Get(e.ctx, a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !v.Published || v.RoutingKey == nil || *v.RoutingKey != "Tutor" || v.GroupID != "g1" {
		t.Errorf("unexpected view: published=%v key=%v group=%q", v.Published, v.RoutingKey, v.GroupID)
	}

	if _, err := e.pubs.ClearRoutingKey(e.ctx, a.ID); err != nil {
		t.Fatalf("ClearRoutingKey failed: %v", err)
	}
	v, _, _ = e.store.GetByName(e.ctx, e.orgID, "A@x.com", "Tutor")
	if v.Published {
		t.Error("expected published=false after clearing the routing key")
	}
}

func TestStore_List_PageAndTotal(t *testing.T) {
	e := setup(t)
	for _, name := range []string{"One", "Two", "Three"} {
		e.create(t, name, "a@x.com")
	}
	e.create(t, "Other", "b@x.com")

	page, err := e.store.List(e.ctx, "a@x.com", 2, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Total: got %d, want 3", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("Items: got %d, want 2", len(page.Items))
	}
	if page.Items[0].Name != "Three" {
		t.Errorf("expected newest first, got %q", page.Items[0].Name)
	}

	page, err = e.store.List(e.ctx, "a@x.com", 2, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Name != "One" {
		t.Errorf("second page: got %+v", page.Items)
	}

	empty, err := e.store.List(e.ctx, "nobody@x.com", 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if empty.Total != 0 || len(empty.Items) != 0 {
		t.Errorf("expected empty page, got %+v", empty)
	}
}

func TestStore_SoftDelete(t *testing.T) {
	e := setup(t)
	a := e.create(t, "Tutor", "a@x.com")

	found, err := e.store.SoftDelete(e.ctx, a.ID, "admin@x.com")
	if err != nil || !found {
		t.Fatalf("SoftDelete: found=%v err=%v", found, err)
	}

	v, found, err := e.store.Get(e.ctx, a.ID)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if v.Owner != models.DeletedOwner {
		t.Errorf("Owner: got %q, want sentinel %q", v.Owner, models.DeletedOwner)
	}
	if v.StoredOwner != "a@x.com" {
		t.Errorf("stored owner must be kept, got %q", v.StoredOwner)
	}
	if v.Name != "Tutor" {
		t.Errorf("name must be kept, got %q", v.Name)
	}

	// Deleted assistants drop out of the owner's list and free the name.
	page, _ := e.store.List(e.ctx, "a@x.com", 10, 0)
	if page.Total != 0 {
		t.Errorf("expected deleted assistant to be excluded, total=%d", page.Total)
	}
	e.create(t, "Tutor", "a@x.com")

	found, err = e.store.SoftDelete(e.ctx, a.ID, "admin@x.com")
	if err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if found {
		t.Error("second soft delete should find nothing active")
	}

	all, err := e.store.ListAll(e.ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListAll: got %d, want 2", len(all))
	}
}

func TestStore_Update(t *testing.T) {
	e := setup(t)
	a := e.create(t, "Tutor", "a@x.com")

	desc := "new description"
	got, err := e.store.Update(e.ctx, a.ID, assistantstore.Patch{
		Description: &desc,
		RAG:         &models.RAGSettings{Collections: []string{"c1"}, TopK: 8},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Description != desc || got.RAG.TopK != 8 {
		t.Errorf("unexpected update result: %+v", got)
	}
	if got.Name != "Tutor" {
		t.Error("name must not change")
	}

	if _, err := e.store.Update(e.ctx, primitive.NewObjectID(), assistantstore.Patch{Description: &desc}); err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments, got %v", err)
	}
}

func TestStore_HardDelete(t *testing.T) {
	e := setup(t)
	a := e.create(t, "Tutor", "a@x.com")
	key := "Tutor"
	if _, err := e.pubs.Upsert(e.ctx, models.Publication{AssistantID: a.ID, GroupID: "g1", RoutingKey: &key}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := e.store.HardDelete(e.ctx, a.ID, "b@x.com"); !errors.Is(err, assistantstore.ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := e.store.HardDelete(e.ctx, a.ID, "A@X.COM"); err != nil {
		t.Fatalf("HardDelete failed: %v", err)
	}

	if _, found, _ := e.store.GetRecord(e.ctx, a.ID); found {
		t.Error("expected assistant to be gone")
	}
	if _, found, _ := e.pubs.GetByAssistant(e.ctx, a.ID); found {
		t.Error("expected publication to be cascaded")
	}
	if err := e.store.HardDelete(e.ctx, a.ID, "a@x.com"); err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments, got %v", err)
	}
}
