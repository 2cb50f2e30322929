// internal/app/features/organizations/events.go
package organizations

import (
	"context"
	"net/http"
	"strings"
	"time"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/store/audit"
	"github.com/dalemusser/assistanthub/internal/app/system/paging"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
)

// eventView is an audit event as returned by the API. Client IP and user
// agent stay in the store.
type eventView struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	AssistantID   string            `json:"assistant_id,omitempty"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	Actor         string            `json:"actor,omitempty"`
	RunID         string            `json:"run_id,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

type eventsResponse struct {
	Items      []eventView `json:"items"`
	Total      int64       `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	NextOffset *int        `json:"next_offset,omitempty"`
}

func isEventCategory(c string) bool {
	switch c {
	case audit.CategoryAuth, audit.CategoryAdmin, audit.CategoryAssistant:
		return true
	}
	return false
}

// ServeEvents lists the audit trail of an organization, newest first.
// Query: category, event_type, limit, offset.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := orgID(w, r)
	if !ok {
		return
	}

	filter := audit.QueryFilter{
		OrganizationID: &id,
		Category:       strings.TrimSpace(r.URL.Query().Get("category")),
		EventType:      strings.TrimSpace(r.URL.Query().Get("event_type")),
	}
	if filter.Category != "" && !isEventCategory(filter.Category) {
		uierrors.RenderBadRequest(w, r, "Unknown event category.")
		return
	}
	win := paging.Parse(r)
	filter.Limit = int64(win.Limit)
	filter.Offset = int64(win.Offset)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if !h.Authz.IsSuperuser(p) && !h.requireOrgAdmin(ctx, w, r, p.Email, id) {
		return
	}

	store := audit.New(h.DB)
	events, err := store.Query(ctx, filter)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	total, err := store.CountByFilter(ctx, filter)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}

	resp := eventsResponse{
		Items:  make([]eventView, 0, len(events)),
		Total:  total,
		Limit:  win.Limit,
		Offset: win.Offset,
	}
	for _, ev := range events {
		v := eventView{
			ID:            ev.ID.Hex(),
			Timestamp:     ev.Timestamp,
			Category:      ev.Category,
			EventType:     ev.EventType,
			Actor:         ev.Actor,
			RunID:         ev.RunID,
			Success:       ev.Success,
			FailureReason: ev.FailureReason,
			Details:       ev.Details,
		}
		if ev.AssistantID != nil {
			v.AssistantID = ev.AssistantID.Hex()
		}
		resp.Items = append(resp.Items, v)
	}
	if next := win.Next(total); next >= 0 {
		resp.NextOffset = &next
	}
	uierrors.WriteJSON(w, http.StatusOK, resp)
}
