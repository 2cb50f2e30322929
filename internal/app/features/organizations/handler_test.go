package organizations_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/assistanthub/internal/app/features/organizations"
	"github.com/dalemusser/assistanthub/internal/app/store/audit"
	organizationstore "github.com/dalemusser/assistanthub/internal/app/store/organizations"
	orgrolestore "github.com/dalemusser/assistanthub/internal/app/store/orgroles"
	"github.com/dalemusser/assistanthub/internal/app/system/authz"
	"github.com/dalemusser/assistanthub/internal/app/system/indexes"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/assistanthub/internal/platform/chatplatform"
	"github.com/dalemusser/assistanthub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fakeUsers map[string]chatplatform.User

func (f fakeUsers) FindUserByEmail(_ context.Context, email string) (chatplatform.User, bool, error) {
	u, ok := f[strings.ToLower(email)]
	return u, ok, nil
}

type env struct {
	db      *mongo.Database
	fx      *testutil.Fixtures
	h       *organizations.Handler
	sys     models.Organization
	sysAdm  models.Principal
	tenant  models.Organization
	tenAdm  models.Principal
	member  models.Principal
	visitor models.Principal
}

func setup(t *testing.T) (*env, context.Context) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	fx := testutil.NewFixtures(t, db)
	e := &env{db: db, fx: fx}
	e.sys = fx.CreateSystemOrganization(ctx)
	e.tenant = fx.CreateOrganization(ctx, "acme")

	e.sysAdm = testutil.AdminPrincipal()
	e.tenAdm = testutil.UserPrincipal("boss@acme.test")
	e.member = testutil.UserPrincipal("worker@acme.test")
	e.visitor = testutil.UserPrincipal("visitor@other.test")

	fx.SetRole(ctx, e.sys.ID, e.sysAdm.ID, e.sysAdm.Email, models.OrgRoleAdmin)
	fx.SetRole(ctx, e.tenant.ID, e.tenAdm.ID, e.tenAdm.Email, models.OrgRoleAdmin)
	fx.SetRole(ctx, e.tenant.ID, e.member.ID, e.member.Email, models.OrgRoleMember)
	// Visitor belongs to another tenant so it is not a system member either.
	other := fx.CreateOrganization(ctx, "other")
	fx.SetRole(ctx, other.ID, e.visitor.ID, e.visitor.Email, models.OrgRoleMember)

	users := fakeUsers{
		e.sysAdm.Email: {ID: e.sysAdm.ID, Email: e.sysAdm.Email, Role: "admin"},
		e.tenAdm.Email: {ID: e.tenAdm.ID, Email: e.tenAdm.Email, Role: "user"},
	}
	az := authz.NewResolver(organizationstore.New(db), orgrolestore.New(db), users, "root-id", zap.NewNop())
	e.h = organizations.NewHandler(db, az, nil, zap.NewNop())
	return e, ctx
}

func TestHandleCreate(t *testing.T) {
	e, ctx := setup(t)

	req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]string{
		"slug": "Globex", "name": "Globex Corp",
	}), e.sysAdm)
	rec := testutil.NewRecorder()
	e.h.HandleCreate(rec, req)
	rec.AssertStatus(t, http.StatusCreated)

	org, err := organizationstore.New(e.db).GetBySlug(ctx, "globex")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if org.Name != "Globex Corp" || org.IsSystem {
		t.Errorf("created org = %+v", org)
	}

	// Same slug again.
	req = testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]string{
		"slug": "globex", "name": "Globex Again",
	}), e.sysAdm)
	rec = testutil.NewRecorder()
	e.h.HandleCreate(rec, req)
	rec.AssertStatus(t, http.StatusConflict)
}

func TestHandleCreate_Access(t *testing.T) {
	e, _ := setup(t)

	body := map[string]string{"slug": "initech", "name": "Initech"}

	// A tenant admin is not a system admin.
	rec := testutil.NewRecorder()
	e.h.HandleCreate(rec, testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/", body), e.tenAdm))
	rec.AssertStatus(t, http.StatusForbidden)

	// The bootstrap superuser needs no role record.
	root := testutil.UserPrincipal("root@test.com")
	root.ID = "root-id"
	rec = testutil.NewRecorder()
	e.h.HandleCreate(rec, testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/", body), root))
	rec.AssertStatus(t, http.StatusCreated)
}

func TestHandleCreate_Validation(t *testing.T) {
	e, _ := setup(t)

	rec := testutil.NewRecorder()
	req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/", map[string]string{
		"slug": "-bad-", "name": "",
	}), e.sysAdm)
	e.h.HandleCreate(rec, req)
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "Organization name is required.")
}

func TestServeList(t *testing.T) {
	e, _ := setup(t)

	rec := testutil.NewRecorder()
	e.h.ServeList(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/", e.sysAdm))
	rec.AssertStatus(t, http.StatusOK)

	var out struct {
		Items []struct {
			Slug string `json:"slug"`
		} `json:"items"`
	}
	rec.DecodeJSON(t, &out)
	if len(out.Items) != 3 {
		t.Errorf("listed %d organizations, want 3", len(out.Items))
	}

	rec = testutil.NewRecorder()
	e.h.ServeList(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/?status=bogus", e.sysAdm))
	rec.AssertStatus(t, http.StatusBadRequest)

	rec = testutil.NewRecorder()
	e.h.ServeList(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/", e.member))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestServeView(t *testing.T) {
	e, ctx := setup(t)
	if err := organizationstore.New(e.db).UpdateSignup(ctx, e.tenant.ID, true, "acme-join-2024"); err != nil {
		t.Fatalf("UpdateSignup: %v", err)
	}

	view := func(p models.Principal) *testutil.ResponseRecorder {
		req := testutil.WithChiURLParam(testutil.NewAuthenticatedRequest(http.MethodGet, "/acme", p), "slug", "acme")
		rec := testutil.NewRecorder()
		e.h.ServeView(rec, req)
		return rec
	}

	rec := view(e.tenAdm)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "acme-join-2024")

	rec = view(e.member)
	rec.AssertStatus(t, http.StatusOK)
	if strings.Contains(rec.Body.String(), "acme-join-2024") {
		t.Error("members must not see the signup key")
	}

	view(e.visitor).AssertStatus(t, http.StatusNotFound)

	if strings.Contains(view(e.tenAdm).Body.String(), "sk-test") {
		t.Error("provider credentials leaked into the organization view")
	}
}

func TestHandleSignup(t *testing.T) {
	e, ctx := setup(t)

	put := func(p models.Principal, id string, body any) *testutil.ResponseRecorder {
		req := testutil.WithChiURLParam(testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPut, "/"+id+"/signup", body), p), "id", id)
		rec := testutil.NewRecorder()
		e.h.HandleSignup(rec, req)
		return rec
	}
	tid := e.tenant.ID.Hex()

	put(e.member, tid, map[string]any{"enabled": true, "key": "acme-join-2024"}).AssertStatus(t, http.StatusForbidden)
	put(e.tenAdm, tid, map[string]any{"enabled": true}).AssertStatus(t, http.StatusBadRequest)
	put(e.tenAdm, tid, map[string]any{"enabled": true, "key": "no"}).AssertStatus(t, http.StatusBadRequest)
	put(e.tenAdm, "zzz", map[string]any{"enabled": false}).AssertStatus(t, http.StatusBadRequest)
	put(e.tenAdm, tid, map[string]any{"enabled": true, "key": "acme-join-2024"}).AssertStatus(t, http.StatusOK)

	org, _, err := organizationstore.New(e.db).ResolveBySignupKey(ctx, "acme-join-2024")
	if err != nil || org.ID != e.tenant.ID {
		t.Fatalf("ResolveBySignupKey = %v, %v; want acme", org.ID, err)
	}

	// Another organization cannot take the same key.
	other, err := organizationstore.New(e.db).GetBySlug(ctx, "other")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	put(e.sysAdm, other.ID.Hex(), map[string]any{"enabled": true, "key": "acme-join-2024"}).AssertStatus(t, http.StatusConflict)
}

func TestServeSignup(t *testing.T) {
	e, ctx := setup(t)
	store := organizationstore.New(e.db)
	if err := store.UpdateSignup(ctx, e.tenant.ID, true, "acme-join-2024"); err != nil {
		t.Fatalf("UpdateSignup: %v", err)
	}

	get := func(key string) *testutil.ResponseRecorder {
		req := testutil.WithChiURLParam(testutil.NewRequest(http.MethodGet, "/"+key), "key", key)
		rec := testutil.NewRecorder()
		e.h.ServeSignup(rec, req)
		return rec
	}

	rec := get("acme-join-2024")
	rec.AssertStatus(t, http.StatusOK)
	var out struct {
		OrganizationID string `json:"organization_id"`
		Slug           string `json:"slug"`
	}
	rec.DecodeJSON(t, &out)
	if out.OrganizationID != e.tenant.ID.Hex() || out.Slug != "acme" {
		t.Errorf("signup resolved to %+v", out)
	}

	// Keys are case-sensitive.
	get("ACME-JOIN-2024").AssertStatus(t, http.StatusNotFound)

	if err := store.UpdateSignup(ctx, e.tenant.ID, false, "acme-join-2024"); err != nil {
		t.Fatalf("UpdateSignup: %v", err)
	}
	get("acme-join-2024").AssertStatus(t, http.StatusNotFound)
}

func TestRoles(t *testing.T) {
	e, ctx := setup(t)
	tid := e.tenant.ID.Hex()

	assign := func(p models.Principal, body any) *testutil.ResponseRecorder {
		req := testutil.WithChiURLParam(testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/"+tid+"/roles", body), p), "id", tid)
		rec := testutil.NewRecorder()
		e.h.HandleAssignRole(rec, req)
		return rec
	}

	body := map[string]string{"user_id": e.member.ID, "email": e.member.Email, "role": "Admin"}
	assign(e.member, body).AssertStatus(t, http.StatusForbidden)
	assign(e.tenAdm, map[string]string{"user_id": "u1", "email": "u1@acme.test", "role": "boss"}).AssertStatus(t, http.StatusBadRequest)
	assign(e.tenAdm, body).AssertStatus(t, http.StatusOK)

	role, err := orgrolestore.New(e.db).RoleFor(ctx, e.tenant.ID, e.member.ID)
	if err != nil {
		t.Fatalf("RoleFor: %v", err)
	}
	if role != models.OrgRoleAdmin {
		t.Errorf("role = %q, want admin", role)
	}

	req := testutil.WithChiURLParam(testutil.NewAuthenticatedRequest(http.MethodGet, "/"+tid+"/roles", e.tenAdm), "id", tid)
	rec := testutil.NewRecorder()
	e.h.ServeRoles(rec, req)
	rec.AssertStatus(t, http.StatusOK)
	var out struct {
		Items []models.OrganizationRole `json:"items"`
	}
	rec.DecodeJSON(t, &out)
	if len(out.Items) != 2 {
		t.Errorf("listed %d roles, want 2", len(out.Items))
	}
}

func TestServeEvents(t *testing.T) {
	e, ctx := setup(t)
	tid := e.tenant.ID.Hex()

	store := audit.New(e.db)
	assistantID := primitive.NewObjectID()
	for i, ev := range []audit.Event{
		{OrganizationID: &e.tenant.ID, Category: audit.CategoryAdmin, EventType: audit.EventOrgSignupUpdated, Actor: e.tenAdm.Email, Success: true},
		{OrganizationID: &e.tenant.ID, AssistantID: &assistantID, Category: audit.CategoryAssistant, EventType: audit.EventAssistantPublished, Actor: e.member.Email, Success: true},
		{OrganizationID: &e.tenant.ID, AssistantID: &assistantID, Category: audit.CategoryAssistant, EventType: audit.EventAssistantPublishFailed, FailureReason: "grant_access", IP: "10.0.0.1"},
		{OrganizationID: &e.sys.ID, Category: audit.CategoryAdmin, EventType: audit.EventOrgCreated, Success: true},
	} {
		ev.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		if err := store.Log(ctx, ev); err != nil {
			t.Fatalf("Log %d: %v", i, err)
		}
	}

	get := func(p models.Principal, target string) *testutil.ResponseRecorder {
		req := testutil.WithChiURLParam(testutil.NewAuthenticatedRequest(http.MethodGet, target, p), "id", tid)
		rec := testutil.NewRecorder()
		e.h.ServeEvents(rec, req)
		return rec
	}

	get(e.member, "/"+tid+"/events").AssertStatus(t, http.StatusForbidden)
	get(e.tenAdm, "/"+tid+"/events?category=bogus").AssertStatus(t, http.StatusBadRequest)

	rec := get(e.tenAdm, "/"+tid+"/events?limit=2")
	rec.AssertStatus(t, http.StatusOK)
	var out struct {
		Items []struct {
			EventType     string `json:"event_type"`
			AssistantID   string `json:"assistant_id"`
			FailureReason string `json:"failure_reason"`
		} `json:"items"`
		Total      int64 `json:"total"`
		NextOffset *int  `json:"next_offset"`
	}
	rec.DecodeJSON(t, &out)
	if out.Total != 3 || len(out.Items) != 2 {
		t.Fatalf("total=%d items=%d, want 3 and 2", out.Total, len(out.Items))
	}
	if out.Items[0].EventType != audit.EventAssistantPublishFailed || out.Items[0].AssistantID != assistantID.Hex() {
		t.Errorf("newest event = %+v", out.Items[0])
	}
	if out.NextOffset == nil || *out.NextOffset != 2 {
		t.Errorf("next_offset = %v, want 2", out.NextOffset)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.1") {
		t.Error("client IP leaked into the response")
	}

	rec = get(e.tenAdm, "/"+tid+"/events?category=admin")
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &out)
	if out.Total != 1 || out.Items[0].EventType != audit.EventOrgSignupUpdated {
		t.Errorf("admin category: %+v", out)
	}
}

func TestHandleConfig(t *testing.T) {
	e, ctx := setup(t)
	tid := e.tenant.ID.Hex()
	store := organizationstore.New(e.db)

	put := func(p models.Principal, body any) *testutil.ResponseRecorder {
		req := testutil.WithChiURLParam(testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPut, "/"+tid+"/config", body), p), "id", tid)
		rec := testutil.NewRecorder()
		e.h.HandleConfig(rec, req)
		return rec
	}

	if err := store.UpdateSignup(ctx, e.tenant.ID, true, "acme-join-2024"); err != nil {
		t.Fatalf("UpdateSignup: %v", err)
	}

	features := map[string]any{
		"features":           map[string]any{"rag_enabled": false},
		"assistant_defaults": map[string]any{"rag_top_k": 8},
	}
	put(e.member, features).AssertStatus(t, http.StatusForbidden)
	put(e.tenAdm, map[string]any{}).AssertStatus(t, http.StatusBadRequest)
	put(e.tenAdm, map[string]any{"assistant_defaults": map[string]any{"rag_top_k": 0}}).AssertStatus(t, http.StatusBadRequest)
	put(e.tenAdm, map[string]any{"providers": map[string]any{}}).AssertStatus(t, http.StatusBadRequest)
	put(e.tenAdm, features).AssertStatus(t, http.StatusOK)

	org, err := store.GetByID(ctx, e.tenant.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	cfg := org.Config
	if cfg.Features.RAGEnabled || cfg.AssistantDefaults.RAGTopK != 8 {
		t.Errorf("config not applied: %+v", cfg)
	}
	if !cfg.Features.SignupEnabled || cfg.Features.SignupKey != "acme-join-2024" {
		t.Errorf("signup settings changed: %+v", cfg.Features)
	}
	if cfg.Providers["openai"].APIKey != "sk-test" {
		t.Error("provider credentials lost")
	}
	before := cfg.Limits

	// Limits belong to system admins, and tenants keep a ceiling.
	limits := map[string]any{"limits": map[string]any{
		"tokens_per_month": 1000, "max_assistants": 3, "max_files_per_user": 5, "max_storage_mb": 50,
	}}
	put(e.tenAdm, limits).AssertStatus(t, http.StatusForbidden)
	put(e.sysAdm, map[string]any{"limits": map[string]any{
		"tokens_per_month": -1, "max_assistants": 3, "max_files_per_user": 5, "max_storage_mb": 50,
	}}).AssertStatus(t, http.StatusBadRequest)
	put(e.sysAdm, map[string]any{"limits": map[string]any{
		"tokens_per_month": -7, "max_assistants": 3, "max_files_per_user": 5, "max_storage_mb": 50,
	}}).AssertStatus(t, http.StatusBadRequest)

	org, _ = store.GetByID(ctx, e.tenant.ID)
	if org.Config.Limits != before {
		t.Errorf("rejected requests changed limits: %+v", org.Config.Limits)
	}

	put(e.sysAdm, limits).AssertStatus(t, http.StatusOK)
	org, _ = store.GetByID(ctx, e.tenant.ID)
	if org.Config.Limits.MaxAssistants != 3 || org.Config.Limits.TokensPerMonth != 1000 {
		t.Errorf("limits not applied: %+v", org.Config.Limits)
	}
}
