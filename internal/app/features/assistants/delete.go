// internal/app/features/assistants/delete.go
package assistants

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
)

// HandleSoftDelete revokes group access and marks the assistant deleted.
// Member removal is best effort; the response reports how many failed.
func (h *Handler) HandleSoftDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := assistantID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Saga())
	defer cancel()

	res, err := h.Svc.SoftDelete(ctx, id, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, deleteResponse{
		ID:             id.Hex(),
		Deleted:        true,
		MembersRemoved: res.MembersRemoved,
		MemberFailures: res.MemberFailures,
	})
}

// HandlePurge permanently removes the assistant and its publication record.
// Owner only.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := assistantID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Saga())
	defer cancel()

	res, err := h.Svc.HardDelete(ctx, id, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, deleteResponse{
		ID:             id.Hex(),
		Deleted:        true,
		Purged:         true,
		MembersRemoved: res.MembersRemoved,
		MemberFailures: res.MemberFailures,
	})
}
