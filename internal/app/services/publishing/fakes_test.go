package publishing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	assistantstore "github.com/dalemusser/assistanthub/internal/app/store/assistants"
	"github.com/dalemusser/assistanthub/internal/app/store/audit"
	publicationstore "github.com/dalemusser/assistanthub/internal/app/store/publications"
	"github.com/dalemusser/assistanthub/internal/app/system/status"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/assistanthub/internal/platform/chatplatform"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

type fakeAssistants struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]models.Assistant
	order []primitive.ObjectID
	pubs  *fakePubs

	createCalls int
}

func newFakeAssistants(pubs *fakePubs) *fakeAssistants {
	return &fakeAssistants{items: map[primitive.ObjectID]models.Assistant{}, pubs: pubs}
}

func (f *fakeAssistants) Create(_ context.Context, a models.Assistant) (models.Assistant, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	for _, id := range f.order {
		ex := f.items[id]
		if ex.Status == status.Active && ex.OrganizationID == a.OrganizationID &&
			ex.Name == a.Name && strings.EqualFold(ex.Owner, a.Owner) {
			return ex, false, nil
		}
	}
	now := time.Now()
	a.ID = primitive.NewObjectID()
	a.OwnerCI = strings.ToLower(a.Owner)
	a.Status = status.Active
	a.CreatedAt, a.UpdatedAt = now, now
	f.items[a.ID] = a
	f.order = append(f.order, a.ID)
	return a, true, nil
}

func (f *fakeAssistants) GetRecord(_ context.Context, id primitive.ObjectID) (models.Assistant, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	return a, ok, nil
}

func (f *fakeAssistants) Get(ctx context.Context, id primitive.ObjectID) (models.AssistantView, bool, error) {
	a, ok, _ := f.GetRecord(ctx, id)
	if !ok {
		return models.AssistantView{}, false, nil
	}
	return f.view(a), true, nil
}

func (f *fakeAssistants) view(a models.Assistant) models.AssistantView {
	if p, ok := f.pubs.get(a.ID); ok {
		return models.NewAssistantView(a, &p)
	}
	return models.NewAssistantView(a, nil)
}

func (f *fakeAssistants) List(_ context.Context, owner string, limit, offset int) (assistantstore.Page, error) {
	f.mu.Lock()
	var matched []models.Assistant
	for i := len(f.order) - 1; i >= 0; i-- {
		a := f.items[f.order[i]]
		if a.Status == status.Active && strings.EqualFold(a.Owner, owner) {
			matched = append(matched, a)
		}
	}
	f.mu.Unlock()

	page := assistantstore.Page{Items: []models.AssistantView{}, Total: int64(len(matched))}
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		page.Items = append(page.Items, f.view(matched[i]))
	}
	return page, nil
}

func (f *fakeAssistants) Update(_ context.Context, id primitive.ObjectID, p assistantstore.Patch) (models.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.Status != status.Active {
		return models.Assistant{}, mongo.ErrNoDocuments
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Config != nil {
		a.Config = p.Config
	}
	if p.RAG != nil {
		a.RAG = *p.RAG
	}
	a.UpdatedAt = time.Now()
	f.items[id] = a
	return a, nil
}

func (f *fakeAssistants) SoftDelete(_ context.Context, id primitive.ObjectID, actor string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.Status != status.Active {
		return false, nil
	}
	now := time.Now()
	a.Status = status.Deleted
	a.DeletedAt = &now
	a.DeletedBy = actor
	f.items[id] = a
	return true, nil
}

func (f *fakeAssistants) HardDelete(_ context.Context, id primitive.ObjectID, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if !strings.EqualFold(a.Owner, owner) {
		return assistantstore.ErrNotOwner
	}
	delete(f.items, id)
	f.pubs.remove(id)
	return nil
}

func (f *fakeAssistants) CountActiveInOrg(_ context.Context, orgID primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.items {
		if a.OrganizationID == orgID && a.Status == status.Active {
			n++
		}
	}
	return n, nil
}

type fakePubs struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]models.Publication

	upsertCalls int
	upsertErr   error
}

func newFakePubs() *fakePubs {
	return &fakePubs{items: map[primitive.ObjectID]models.Publication{}}
}

func (f *fakePubs) get(id primitive.ObjectID) (models.Publication, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	return p, ok
}

func (f *fakePubs) remove(id primitive.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
}

func (f *fakePubs) Upsert(_ context.Context, p models.Publication) (models.Publication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return models.Publication{}, f.upsertErr
	}
	if p.RoutingKey != nil {
		for id, ex := range f.items {
			if id != p.AssistantID && ex.IsPublished() && *ex.Key() == *p.RoutingKey {
				return models.Publication{}, publicationstore.ErrRoutingKeyTaken
			}
		}
	}
	now := time.Now()
	if ex, ok := f.items[p.AssistantID]; ok {
		p.CreatedAt = ex.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	f.items[p.AssistantID] = p
	return p, nil
}

func (f *fakePubs) ClearRoutingKey(_ context.Context, id primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return false, nil
	}
	p.RoutingKey = nil
	p.LegacyKey = nil
	f.items[id] = p
	return true, nil
}

func (f *fakePubs) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return 0, nil
	}
	delete(f.items, id)
	return 1, nil
}

func (f *fakePubs) GetByAssistant(_ context.Context, id primitive.ObjectID) (models.Publication, bool, error) {
	p, ok := f.get(id)
	return p, ok, nil
}

func (f *fakePubs) GetByRoutingKey(_ context.Context, key string) (models.Publication, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.items {
		if p.IsPublished() && *p.Key() == key {
			return p, true, nil
		}
	}
	return models.Publication{}, false, nil
}

type fakeOrgs struct {
	items map[primitive.ObjectID]models.Organization
}

func (f *fakeOrgs) GetByID(_ context.Context, id primitive.ObjectID) (models.Organization, error) {
	o, ok := f.items[id]
	if !ok {
		return models.Organization{}, mongo.ErrNoDocuments
	}
	return o, nil
}

// ---------------------------------------------------------------------------
// Access control
// ---------------------------------------------------------------------------

type fakeAuthz struct {
	admins    map[string]bool
	orgAdmins map[string]bool
	members   map[primitive.ObjectID]map[string]bool
	home      primitive.ObjectID
}

func (f *fakeAuthz) IsAdmin(p models.Principal) bool { return f.admins[p.ID] }

func (f *fakeAuthz) IsMember(_ context.Context, p models.Principal, orgID primitive.ObjectID) (bool, error) {
	return f.members[orgID][p.ID], nil
}

func (f *fakeAuthz) IsOrgAdmin(_ context.Context, email string, _ primitive.ObjectID) (bool, error) {
	return f.orgAdmins[strings.ToLower(email)], nil
}

func (f *fakeAuthz) HomeOrganization(context.Context, string) (primitive.ObjectID, error) {
	return f.home, nil
}

func (f *fakeAuthz) CanModify(_ context.Context, p models.Principal, a models.Assistant) (bool, error) {
	return f.admins[p.ID] || f.orgAdmins[strings.ToLower(p.Email)] || strings.EqualFold(p.Email, a.Owner), nil
}

func (f *fakeAuthz) CanAccessForChat(_ context.Context, p models.Principal, a models.Assistant) (bool, error) {
	if a.IsDeleted() {
		return false, nil
	}
	if strings.EqualFold(p.Email, a.Owner) {
		return true, nil
	}
	return f.members[a.OrganizationID][p.ID], nil
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

type fakeEvents struct {
	items     []audit.Event
	lastLimit int64
}

func (f *fakeEvents) GetByAssistant(_ context.Context, _ primitive.ObjectID, limit int64) ([]audit.Event, error) {
	f.lastLimit = limit
	return f.items, nil
}

// ---------------------------------------------------------------------------
// Chat platform
// ---------------------------------------------------------------------------

type fakePlatform struct {
	mu     sync.Mutex
	nextID int
	groups map[string]*chatplatform.Group
	users  map[string]chatplatform.User // by lowercased email
	models map[string]chatplatform.Model
	grants map[string]map[string]string // model id -> group id -> permission

	// fail makes the named method return the error until cleared.
	fail map[string]error
	// removeFail makes RemoveMember fail for the given user ids.
	removeFail map[string]error
	calls      map[string]int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		groups:     map[string]*chatplatform.Group{},
		users:      map[string]chatplatform.User{},
		models:     map[string]chatplatform.Model{},
		grants:     map[string]map[string]string{},
		fail:       map[string]error{},
		removeFail: map[string]error{},
		calls:      map[string]int{},
	}
}

func (f *fakePlatform) addUser(id, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[strings.ToLower(email)] = chatplatform.User{ID: id, Email: email, Role: "user"}
}

func (f *fakePlatform) enter(method string) error {
	f.calls[method]++
	return f.fail[method]
}

func (f *fakePlatform) setFail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

func (f *fakePlatform) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakePlatform) group(id string) chatplatform.Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[id]; ok {
		return *g
	}
	return chatplatform.Group{}
}

func (f *fakePlatform) FindGroupByName(_ context.Context, name string) (chatplatform.Group, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FindGroupByName"); err != nil {
		return chatplatform.Group{}, false, err
	}
	ids := make([]string, 0, len(f.groups))
	for id := range f.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if f.groups[id].Name == name {
			return *f.groups[id], true, nil
		}
	}
	return chatplatform.Group{}, false, nil
}

func (f *fakePlatform) CreateGroup(_ context.Context, name, _, description string) (chatplatform.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateGroup"); err != nil {
		return chatplatform.Group{}, err
	}
	f.nextID++
	g := &chatplatform.Group{ID: fmt.Sprintf("grp-%d", f.nextID), Name: name, Description: description}
	f.groups[g.ID] = g
	return *g, nil
}

func (f *fakePlatform) AddMemberByEmail(_ context.Context, groupID, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddMemberByEmail"); err != nil {
		return false, err
	}
	u, ok := f.users[strings.ToLower(email)]
	if !ok {
		return false, &chatplatform.Error{Op: "add member", Status: 404, Err: chatplatform.ErrUserNotFound}
	}
	g, ok := f.groups[groupID]
	if !ok {
		return false, &chatplatform.Error{Op: "add member", Status: 404, Detail: "group not found"}
	}
	if g.HasMember(u.ID) {
		return false, nil
	}
	g.UserIDs = append(g.UserIDs, u.ID)
	return true, nil
}

func (f *fakePlatform) RemoveMember(_ context.Context, groupID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("RemoveMember"); err != nil {
		return false, err
	}
	if err := f.removeFail[userID]; err != nil {
		return false, err
	}
	g, ok := f.groups[groupID]
	if !ok || !g.HasMember(userID) {
		return false, nil
	}
	kept := g.UserIDs[:0]
	for _, id := range g.UserIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	g.UserIDs = kept
	return true, nil
}

func (f *fakePlatform) ListMembers(_ context.Context, groupID string) ([]chatplatform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListMembers"); err != nil {
		return nil, err
	}
	g, ok := f.groups[groupID]
	if !ok {
		return nil, &chatplatform.Error{Op: "list members", Status: 404}
	}
	var out []chatplatform.User
	for _, id := range g.UserIDs {
		for _, u := range f.users {
			if u.ID == id {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakePlatform) FindUserByEmail(_ context.Context, email string) (chatplatform.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FindUserByEmail"); err != nil {
		return chatplatform.User{}, false, err
	}
	u, ok := f.users[strings.ToLower(email)]
	return u, ok, nil
}

func (f *fakePlatform) CreateOrUpdateModel(_ context.Context, m chatplatform.Model) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateOrUpdateModel"); err != nil {
		return false, err
	}
	_, existed := f.models[m.ID]
	f.models[m.ID] = m
	return !existed, nil
}

func (f *fakePlatform) GrantGroupPermission(_ context.Context, modelID, groupID, permission string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GrantGroupPermission"); err != nil {
		return false, err
	}
	if _, ok := f.models[modelID]; !ok {
		return false, &chatplatform.Error{Op: "grant", Status: 404, Detail: "model not found"}
	}
	if f.grants[modelID] == nil {
		f.grants[modelID] = map[string]string{}
	}
	if f.grants[modelID][groupID] == permission {
		return false, nil
	}
	f.grants[modelID][groupID] = permission
	return true, nil
}

func (f *fakePlatform) grant(modelID, groupID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[modelID][groupID]
}

func (f *fakePlatform) model(id string) (chatplatform.Model, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[id]
	return m, ok
}
