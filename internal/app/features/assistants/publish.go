// internal/app/features/assistants/publish.go
package assistants

import (
	"context"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/system/inputval"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
)

// HandlePublish (re)publishes an existing assistant under its name.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
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

	v, err := h.Svc.Publish(ctx, id, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}

// HandleResume continues a publication that stopped part way.
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in resumeInput
	if err := decodeJSON(w, r, &in); err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid JSON body.")
		return
	}
	in.Token = strings.TrimSpace(in.Token)
	if res := inputval.Validate(in); res.HasErrors() {
		uierrors.RenderValidation(w, r, res)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Saga())
	defer cancel()

	v, err := h.Svc.Resume(ctx, in.Token, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}

// HandleUnpublish clears the routing key. The group and record are kept so
// the assistant can be published again.
func (h *Handler) HandleUnpublish(w http.ResponseWriter, r *http.Request) {
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

	v, err := h.Svc.Unpublish(ctx, id, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}

// HandleRemovePublication deletes the publication record outright.
func (h *Handler) HandleRemovePublication(w http.ResponseWriter, r *http.Request) {
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

	if err := h.Svc.RemovePublication(ctx, id, p); err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
