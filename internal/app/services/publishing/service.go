// Package publishing keeps assistants, their publication records and the chat
// platform's groups, models and grants in step.
//
// Publishing is a sequence of idempotent steps. Nothing is rolled back when a
// step fails: the caller gets an *apperr.InconsistentStateError naming the
// failed step and a signed resume token that re-runs the remaining steps.
package publishing

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	assistantstore "github.com/dalemusser/assistanthub/internal/app/store/assistants"
	"github.com/dalemusser/assistanthub/internal/app/system/auditlog"
	"github.com/dalemusser/assistanthub/internal/app/system/metrics"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"github.com/dalemusser/assistanthub/internal/platform/chatplatform"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AssistantStore is the part of the assistant store the service needs.
type AssistantStore interface {
	Create(ctx context.Context, a models.Assistant) (models.Assistant, bool, error)
	GetRecord(ctx context.Context, id primitive.ObjectID) (models.Assistant, bool, error)
	Get(ctx context.Context, id primitive.ObjectID) (models.AssistantView, bool, error)
	List(ctx context.Context, owner string, limit, offset int) (assistantstore.Page, error)
	Update(ctx context.Context, id primitive.ObjectID, p assistantstore.Patch) (models.Assistant, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID, actor string) (bool, error)
	HardDelete(ctx context.Context, id primitive.ObjectID, owner string) error
	CountActiveInOrg(ctx context.Context, orgID primitive.ObjectID) (int64, error)
}

// PublicationStore is the part of the publication store the service needs.
type PublicationStore interface {
	Upsert(ctx context.Context, p models.Publication) (models.Publication, error)
	ClearRoutingKey(ctx context.Context, assistantID primitive.ObjectID) (bool, error)
	Delete(ctx context.Context, assistantID primitive.ObjectID) (int64, error)
	GetByAssistant(ctx context.Context, assistantID primitive.ObjectID) (models.Publication, bool, error)
	GetByRoutingKey(ctx context.Context, key string) (models.Publication, bool, error)
}

// OrgReader loads the organization an assistant is created in.
type OrgReader interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Organization, error)
}

// Authorizer answers the access questions the service asks.
type Authorizer interface {
	IsAdmin(p models.Principal) bool
	IsMember(ctx context.Context, p models.Principal, orgID primitive.ObjectID) (bool, error)
	IsOrgAdmin(ctx context.Context, email string, orgID primitive.ObjectID) (bool, error)
	HomeOrganization(ctx context.Context, userID string) (primitive.ObjectID, error)
	CanModify(ctx context.Context, p models.Principal, a models.Assistant) (bool, error)
	CanAccessForChat(ctx context.Context, p models.Principal, a models.Assistant) (bool, error)
}

// CreateSpec describes a new assistant. A zero OrganizationID means the
// actor's home organization.
type CreateSpec struct {
	OrganizationID primitive.ObjectID
	Name           string
	Description    string
	Config         map[string]any
	RAG            models.RAGSettings
}

// UpdateSpec holds the mutable fields of an assistant. Nil fields are kept.
type UpdateSpec struct {
	Description *string
	Config      map[string]any
	RAG         *models.RAGSettings
}

// DeleteResult reports what a delete did to the assistant's access group.
type DeleteResult struct {
	MembersRemoved int `json:"members_removed"`
	MemberFailures int `json:"member_failures"`
	// GroupFailures counts groups whose membership could not be read, so the
	// members it holds were left in place.
	GroupFailures int `json:"group_failures"`
}

// Service is the publication workflow.
type Service interface {
	CreateAndPublish(ctx context.Context, spec CreateSpec, actor models.Principal) (models.AssistantView, error)
	Publish(ctx context.Context, id primitive.ObjectID, actor models.Principal) (models.AssistantView, error)
	Resume(ctx context.Context, token string, actor models.Principal) (models.AssistantView, error)
	Update(ctx context.Context, id primitive.ObjectID, spec UpdateSpec, actor models.Principal) (models.AssistantView, error)
	Unpublish(ctx context.Context, id primitive.ObjectID, actor models.Principal) (models.AssistantView, error)
	RemovePublication(ctx context.Context, id primitive.ObjectID, actor models.Principal) error
	SoftDelete(ctx context.Context, id primitive.ObjectID, actor models.Principal) (DeleteResult, error)
	HardDelete(ctx context.Context, id primitive.ObjectID, actor models.Principal) (DeleteResult, error)
	GetWithPublicationStatus(ctx context.Context, id primitive.ObjectID) (models.AssistantView, error)
	Get(ctx context.Context, id primitive.ObjectID, actor models.Principal) (models.AssistantView, error)
	ListForOwner(ctx context.Context, actor models.Principal, limit, offset int) (assistantstore.Page, error)
	ResolveForChat(ctx context.Context, routingKey string, actor models.Principal) (models.AssistantView, error)
	History(ctx context.Context, id primitive.ObjectID, actor models.Principal, limit int) ([]HistoryEntry, error)
}

// Deps are the collaborators of the service. Audit, Events and Metrics may be nil.
type Deps struct {
	Assistants   AssistantStore
	Publications PublicationStore
	Orgs         OrgReader
	Authz        Authorizer
	Platform     chatplatform.Platform
	Audit        *auditlog.Logger
	Metrics      *metrics.Metrics
	Events       EventReader
}

// Config holds service settings.
type Config struct {
	// ResumeKey signs and encrypts resume tokens.
	ResumeKey string
	// ResumeTTL bounds how long a resume token stays valid.
	ResumeTTL time.Duration
}

const (
	DefaultResumeTTL = 24 * time.Hour
	minResumeKeyLen  = 32
)

// ErrWeakResumeKey is returned by New when the resume key is too short.
var ErrWeakResumeKey = errors.New("resume token key must be at least 32 characters")

type service struct {
	assistants AssistantStore
	pubs       PublicationStore
	orgs       OrgReader
	authz      Authorizer
	platform   chatplatform.Platform
	audit      *auditlog.Logger
	metrics    *metrics.Metrics
	events     EventReader
	codec      *securecookie.SecureCookie
	log        *zap.Logger
	newRunID   func() string
}

// New constructs the publication service.
func New(deps Deps, cfg Config, logger *zap.Logger) (Service, error) {
	if len(cfg.ResumeKey) < minResumeKeyLen {
		return nil, ErrWeakResumeKey
	}
	ttl := cfg.ResumeTTL
	if ttl <= 0 {
		ttl = DefaultResumeTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hashKey := sha256.Sum256([]byte("hash:" + cfg.ResumeKey))
	blockKey := sha256.Sum256([]byte("block:" + cfg.ResumeKey))
	codec := securecookie.New(hashKey[:], blockKey[:])
	codec.MaxAge(int(ttl / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &service{
		assistants: deps.Assistants,
		pubs:       deps.Publications,
		orgs:       deps.Orgs,
		authz:      deps.Authz,
		platform:   deps.Platform,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		events:     deps.Events,
		codec:      codec,
		log:        logger,
		newRunID:   func() string { return uuid.NewString() },
	}, nil
}
