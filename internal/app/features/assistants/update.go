// internal/app/features/assistants/update.go
package assistants

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/services/publishing"
	"github.com/dalemusser/assistanthub/internal/app/system/inputval"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
)

// HandleUpdate changes description, config or retrieval settings. Name and
// owner are fixed at creation.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := assistantID(w, r)
	if !ok {
		return
	}

	var in updateInput
	if err := decodeJSON(w, r, &in); err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid JSON body; only description, config and rag can change.")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		uierrors.RenderValidation(w, r, res)
		return
	}

	spec := publishing.UpdateSpec{Description: in.Description, Config: in.Config}
	if in.RAG != nil {
		rag := in.RAG.settings()
		spec.RAG = &rag
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Saga())
	defer cancel()

	v, err := h.Svc.Update(ctx, id, spec, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, v)
}
