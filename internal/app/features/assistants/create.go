// internal/app/features/assistants/create.go
package assistants

import (
	"context"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	"github.com/dalemusser/assistanthub/internal/app/services/publishing"
	"github.com/dalemusser/assistanthub/internal/app/system/inputval"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HandleCreate creates an assistant and publishes it in one call.
//
// 201 with the assistant view on success. A failure after the assistant was
// stored answers 502/503 with the failed step, completed steps and a resume
// token to pass to POST /resume.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in createInput
	if err := decodeJSON(w, r, &in); err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid JSON body.")
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	if res := inputval.Validate(in); res.HasErrors() {
		uierrors.RenderValidation(w, r, res)
		return
	}

	spec := publishing.CreateSpec{
		Name:        in.Name,
		Description: in.Description,
		Config:      in.Config,
		RAG:         in.RAG.settings(),
	}
	if in.OrganizationID != "" {
		spec.OrganizationID, _ = primitive.ObjectIDFromHex(in.OrganizationID)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Saga())
	defer cancel()

	v, err := h.Svc.CreateAndPublish(ctx, spec, p)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusCreated, v)
}
