// internal/app/features/assistants/history.go
package assistants

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/system/paging"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
)

// ServeHistory returns the audit trail of an assistant, newest first.
// Query: limit (default 50, max 200).
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := assistantID(w, r)
	if !ok {
		return
	}
	win := paging.Parse(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	items, err := h.Svc.History(ctx, id, p, win.Limit)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
