// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/assistanthub/internal/app/store/audit"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration. Each value is one of
// "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only) or "off".
type Config struct {
	// Auth controls events about rejected credentials.
	Auth string
	// Admin controls organization and role management events.
	Admin string
	// Assistant controls assistant lifecycle and publication events.
	Assistant string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// clientIP extracts the client IP from the request.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.Actor != "" {
		fields = append(fields, zap.String("actor", event.Actor))
	}
	if event.RunID != "" {
		fields = append(fields, zap.String("run_id", event.RunID))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.OrganizationID != nil {
		fields = append(fields, zap.String("organization_id", event.OrganizationID.Hex()))
	}
	if event.AssistantID != nil {
		fields = append(fields, zap.String("assistant_id", event.AssistantID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	case audit.CategoryAssistant:
		setting = l.config.Assistant
	}
	if setting == "" {
		setting = "all"
	}

	if setting == "off" {
		return
	}
	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Auth Events ---

// TokenRejected logs a bearer credential the directory did not accept.
func (l *Logger) TokenRejected(ctx context.Context, r *http.Request, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventTokenRejected,
		IP:            clientIP(r),
		UserAgent:     r.UserAgent(),
		FailureReason: reason,
		Details:       map[string]string{"path": r.URL.Path},
	})
}

// --- Organization Events ---

func (l *Logger) OrgCreated(ctx context.Context, r *http.Request, actor string, org models.Organization) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventOrgCreated,
		OrganizationID: &org.ID,
		Actor:          actor,
		IP:             clientIP(r),
		Success:        true,
		Details:        map[string]string{"slug": org.Slug, "name": org.Name},
	})
}

func (l *Logger) OrgSignupUpdated(ctx context.Context, r *http.Request, actor string, orgID primitive.ObjectID, enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventOrgSignupUpdated,
		OrganizationID: &orgID,
		Actor:          actor,
		IP:             clientIP(r),
		Success:        true,
		Details:        map[string]string{"signup": state},
	})
}

// OrgConfigUpdated logs a configuration change; sections names what changed.
func (l *Logger) OrgConfigUpdated(ctx context.Context, r *http.Request, actor string, orgID primitive.ObjectID, sections []string) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventOrgConfigUpdated,
		OrganizationID: &orgID,
		Actor:          actor,
		IP:             clientIP(r),
		Success:        true,
		Details:        map[string]string{"sections": strings.Join(sections, ",")},
	})
}

func (l *Logger) OrgRoleAssigned(ctx context.Context, r *http.Request, actor string, role models.OrganizationRole) {
	l.Log(ctx, audit.Event{
		Category:       audit.CategoryAdmin,
		EventType:      audit.EventOrgRoleAssigned,
		OrganizationID: &role.OrganizationID,
		Actor:          actor,
		IP:             clientIP(r),
		Success:        true,
		Details:        map[string]string{"user_id": role.UserID, "role": role.Role},
	})
}

// --- Assistant Events ---

func (l *Logger) assistantEvent(eventType, actor, runID string, a models.Assistant, details map[string]string) audit.Event {
	return audit.Event{
		Category:       audit.CategoryAssistant,
		EventType:      eventType,
		OrganizationID: &a.OrganizationID,
		AssistantID:    &a.ID,
		Actor:          actor,
		RunID:          runID,
		Success:        true,
		Details:        details,
	}
}

func (l *Logger) AssistantCreated(ctx context.Context, actor, runID string, a models.Assistant) {
	l.Log(ctx, l.assistantEvent(audit.EventAssistantCreated, actor, runID, a, map[string]string{"name": a.Name}))
}

func (l *Logger) AssistantPublished(ctx context.Context, actor, runID string, a models.Assistant, routingKey, groupID string) {
	l.Log(ctx, l.assistantEvent(audit.EventAssistantPublished, actor, runID, a, map[string]string{
		"routing_key": routingKey,
		"group_id":    groupID,
	}))
}

// PublishFailed records the step a publication stopped at and what had completed.
func (l *Logger) PublishFailed(ctx context.Context, actor, runID string, a models.Assistant, step, completed string, err error) {
	ev := l.assistantEvent(audit.EventAssistantPublishFailed, actor, runID, a, map[string]string{
		"step":      step,
		"completed": completed,
	})
	ev.Success = false
	if err != nil {
		ev.FailureReason = err.Error()
	}
	l.Log(ctx, ev)
}

func (l *Logger) AssistantUnpublished(ctx context.Context, actor string, a models.Assistant) {
	l.Log(ctx, l.assistantEvent(audit.EventAssistantUnpublished, actor, "", a, nil))
}

func (l *Logger) PublicationRemoved(ctx context.Context, actor string, a models.Assistant) {
	l.Log(ctx, l.assistantEvent(audit.EventPublicationRemoved, actor, "", a, nil))
}

// AssistantDeleted logs a soft delete, or a purge when hard is set.
func (l *Logger) AssistantDeleted(ctx context.Context, actor string, a models.Assistant, hard bool, membersRemoved, memberFailures int) {
	eventType := audit.EventAssistantDeleted
	if hard {
		eventType = audit.EventAssistantPurged
	}
	l.Log(ctx, l.assistantEvent(eventType, actor, "", a, map[string]string{
		"members_removed": strconv.Itoa(membersRemoved),
		"member_failures": strconv.Itoa(memberFailures),
	}))
}

// GroupCleanupFailed logs a group whose membership could not be read or
// cleared during a delete.
func (l *Logger) GroupCleanupFailed(ctx context.Context, actor string, a models.Assistant, err error) {
	ev := l.assistantEvent(audit.EventGroupCleanupFail, actor, "", a, nil)
	ev.Success = false
	if err != nil {
		ev.FailureReason = err.Error()
	}
	l.Log(ctx, ev)
}

func (l *Logger) GroupMemberRemoveFailed(ctx context.Context, actor string, a models.Assistant, groupID, userID string, err error) {
	ev := l.assistantEvent(audit.EventGroupMemberRemoveFail, actor, "", a, map[string]string{
		"group_id": groupID,
		"user_id":  userID,
	})
	ev.Success = false
	if err != nil {
		ev.FailureReason = err.Error()
	}
	l.Log(ctx, ev)
}
