// internal/app/features/assistants/list.go
package assistants

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/system/paging"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
)

// ServeList lists the caller's active assistants, newest first.
// Query: limit (default 50, max 200), offset.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	win := paging.Parse(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	page, err := h.Svc.ListForOwner(ctx, p, win.Limit, win.Offset)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}

	resp := listResponse{
		Items:  page.Items,
		Total:  page.Total,
		Limit:  win.Limit,
		Offset: win.Offset,
	}
	if next := win.Next(page.Total); next >= 0 {
		resp.NextOffset = &next
	}
	uierrors.WriteJSON(w, http.StatusOK, resp)
}

// ServeGet returns one assistant with its publication status.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := assistantID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	v, err := h.Svc.Get(ctx, id, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}
