package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/assistanthub/internal/app/system/orgconfig"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
// Calling it again on the same request adds to the existing parameters.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// TestBaseline is the system configuration fixtures seed organizations from.
func TestBaseline() orgconfig.Baseline {
	return orgconfig.Baseline{OpenAIAPIKey: "sk-test", OpenAIModel: "gpt-4o-mini"}
}

func (f *Fixtures) insertOrganization(ctx context.Context, slug string, isSystem bool) models.Organization {
	f.t.Helper()

	cfg := orgconfig.System(TestBaseline())
	if !isSystem {
		tenant, err := orgconfig.SeedTenant(cfg)
		if err != nil {
			f.t.Fatalf("failed to seed tenant config: %v", err)
		}
		cfg = tenant
	}

	now := time.Now().UTC()
	org := models.Organization{
		ID:        primitive.NewObjectID(),
		Slug:      slug,
		Name:      slug,
		NameCI:    text.Fold(slug),
		IsSystem:  isSystem,
		Status:    "active",
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("organizations").InsertOne(ctx, org); err != nil {
		f.t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

// CreateOrganization creates an active tenant organization with the given slug.
// Returns the created organization with its generated ID.
func (f *Fixtures) CreateOrganization(ctx context.Context, slug string) models.Organization {
	f.t.Helper()
	return f.insertOrganization(ctx, slug, false)
}

// CreateSystemOrganization creates the system organization.
func (f *Fixtures) CreateSystemOrganization(ctx context.Context) models.Organization {
	f.t.Helper()
	return f.insertOrganization(ctx, "system", true)
}

// SetRole records userID's role in orgID.
func (f *Fixtures) SetRole(ctx context.Context, orgID primitive.ObjectID, userID, email, role string) models.OrganizationRole {
	f.t.Helper()

	now := time.Now().UTC()
	r := models.OrganizationRole{
		ID:             primitive.NewObjectID(),
		OrganizationID: orgID,
		UserID:         userID,
		Email:          email,
		EmailCI:        text.Fold(email),
		Role:           role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("organization_roles").InsertOne(ctx, r); err != nil {
		f.t.Fatalf("failed to create test role: %v", err)
	}
	return r
}

// CreateAssistant creates an active, unpublished assistant.
func (f *Fixtures) CreateAssistant(ctx context.Context, orgID primitive.ObjectID, name, owner string) models.Assistant {
	f.t.Helper()

	now := time.Now().UTC()
	a := models.Assistant{
		ID:             primitive.NewObjectID(),
		OrganizationID: orgID,
		Name:           name,
		Owner:          owner,
		OwnerCI:        text.Fold(owner),
		Description:    "Test assistant",
		RAG:            models.RAGSettings{TopK: 4},
		Status:         "active",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("assistants").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to create test assistant: %v", err)
	}
	return a
}

// Publish writes a publication record for a as stored, bypassing the store's
// normalization so tests can seed legacy values such as the "null" key.
// An empty key stores null.
func (f *Fixtures) Publish(ctx context.Context, a models.Assistant, key string) {
	f.t.Helper()

	var routingKey any
	if key != "" {
		routingKey = key
	}
	now := time.Now().UTC()
	if _, err := f.db.Collection("assistant_publications").InsertOne(ctx, bson.M{
		"_id":             a.ID,
		"organization_id": a.OrganizationID,
		"assistant_name":  a.Name,
		"owner":           a.Owner,
		"group_id":        "grp-" + a.ID.Hex(),
		"group_name":      "assistant_" + a.ID.Hex(),
		"routing_key":     routingKey,
		"created_at":      now,
		"updated_at":      now,
	}); err != nil {
		f.t.Fatalf("failed to create test publication: %v", err)
	}
}
