// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryAuth      = "auth"
	CategoryAdmin     = "admin"
	CategoryAssistant = "assistant"
)

// Auth event types
const (
	EventTokenRejected = "token_rejected"
)

// Admin event types
const (
	EventOrgCreated       = "org_created"
	EventOrgSignupUpdated = "org_signup_updated"
	EventOrgRoleAssigned  = "org_role_assigned"
	EventOrgConfigUpdated = "org_config_updated"
)

// Assistant event types
const (
	EventAssistantCreated       = "assistant_created"
	EventAssistantPublished     = "assistant_published"
	EventAssistantPublishFailed = "assistant_publish_failed"
	EventAssistantUnpublished   = "assistant_unpublished"
	EventPublicationRemoved     = "publication_removed"
	EventAssistantDeleted       = "assistant_deleted"
	EventAssistantPurged        = "assistant_purged"
	EventGroupMemberRemoveFail  = "group_member_remove_failed"
	EventGroupCleanupFail       = "group_cleanup_failed"
)

// Event represents an audit event.
type Event struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty"`
	Timestamp      time.Time           `bson:"timestamp"`
	OrganizationID *primitive.ObjectID `bson:"organization_id,omitempty"`
	AssistantID    *primitive.ObjectID `bson:"assistant_id,omitempty"`

	// Event classification
	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// Who performed the action (directory email), and the saga run it belongs to.
	Actor string `bson:"actor,omitempty"`
	RunID string `bson:"run_id,omitempty"`

	// Context
	IP        string `bson:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty"`

	// Outcome
	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	OrganizationID *primitive.ObjectID
	AssistantID    *primitive.ObjectID
	Actor          string
	Category       string
	EventType      string
	StartTime      *time.Time
	EndTime        *time.Time
	Limit          int64
	Offset         int64
}

func (f QueryFilter) bson() bson.M {
	query := bson.M{}
	if f.OrganizationID != nil {
		query["organization_id"] = f.OrganizationID
	}
	if f.AssistantID != nil {
		query["assistant_id"] = f.AssistantID
	}
	if f.Actor != "" {
		query["actor"] = f.Actor
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.EventType != "" {
		query["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		timeQuery := bson.M{}
		if f.StartTime != nil {
			timeQuery["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			timeQuery["$lte"] = *f.EndTime
		}
		query["timestamp"] = timeQuery
	}
	return query
}

// Store manages audit event records. Indexes live in system/indexes.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Query retrieves audit events matching the given filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, filter.bson(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.bson())
}

// GetByAssistant retrieves recent audit events for one assistant.
func (s *Store) GetByAssistant(ctx context.Context, assistantID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{AssistantID: &assistantID, Limit: limit})
}
