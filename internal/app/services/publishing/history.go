package publishing

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/assistanthub/internal/app/store/audit"
	"github.com/dalemusser/assistanthub/internal/app/system/apperr"
	"github.com/dalemusser/assistanthub/internal/app/system/paging"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventReader reads the audit trail of one assistant, newest first.
type EventReader interface {
	GetByAssistant(ctx context.Context, assistantID primitive.ObjectID, limit int64) ([]audit.Event, error)
}

// HistoryEntry is one audited action on an assistant.
type HistoryEntry struct {
	Timestamp     time.Time         `json:"timestamp"`
	Event         string            `json:"event"`
	Actor         string            `json:"actor,omitempty"`
	RunID         string            `json:"run_id,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// History returns the audit trail of an assistant. Deleted assistants keep
// their history; only callers who may modify the assistant can read it.
func (s *service) History(ctx context.Context, id primitive.ObjectID, actor models.Principal, limit int) ([]HistoryEntry, error) {
	a, found, err := s.assistants.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load assistant: %w", err)
	}
	if !found {
		return nil, apperr.NotFound("assistant not found")
	}
	ok, err := s.authz.CanModify(ctx, actor, a)
	if err != nil {
		return nil, fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return nil, apperr.Forbidden("not allowed to view this assistant's history")
	}

	out := []HistoryEntry{}
	if s.events == nil {
		return out, nil
	}
	win := paging.Clamp(limit, 0, paging.DefaultLimit, paging.MaxLimit)
	events, err := s.events.GetByAssistant(ctx, a.ID, int64(win.Limit))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	for _, e := range events {
		out = append(out, HistoryEntry{
			Timestamp:     e.Timestamp,
			Event:         e.EventType,
			Actor:         e.Actor,
			RunID:         e.RunID,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			Details:       e.Details,
		})
	}
	return out, nil
}
