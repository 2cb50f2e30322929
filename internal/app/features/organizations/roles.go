// internal/app/features/organizations/roles.go
package organizations

import (
	"context"
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	organizationstore "github.com/dalemusser/assistanthub/internal/app/store/organizations"
	orgrolestore "github.com/dalemusser/assistanthub/internal/app/store/orgroles"
	"github.com/dalemusser/assistanthub/internal/app/system/inputval"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ServeRoles lists the explicit role records of an organization.
func (h *Handler) ServeRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := orgID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if !h.Authz.IsSuperuser(p) && !h.requireOrgAdmin(ctx, w, r, p.Email, id) {
		return
	}

	roles, err := orgrolestore.New(h.DB).ListForOrg(ctx, id)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"items": roles})
}

// HandleAssignRole creates or changes a user's role in an organization.
func (h *Handler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := orgID(w, r)
	if !ok {
		return
	}

	var in roleInput
	if err := decodeJSON(w, r, &in); err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid JSON body.")
		return
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if res := inputval.Validate(in); res.HasErrors() {
		uierrors.RenderValidation(w, r, res)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if !h.Authz.IsSuperuser(p) && !h.requireOrgAdmin(ctx, w, r, p.Email, id) {
		return
	}
	if _, err := organizationstore.New(h.DB).GetByID(ctx, id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.RenderNotFound(w, r, "Organization not found.")
			return
		}
		uierrors.RenderError(w, r, h.Log, err)
		return
	}

	role, err := orgrolestore.New(h.DB).Set(ctx, id, in.UserID, in.Email, in.Role)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}

	h.Audit.OrgRoleAssigned(r.Context(), r, p.Email, role)
	h.Log.Info("organization role assigned",
		zap.String("org_id", id.Hex()),
		zap.String("user_id", role.UserID),
		zap.String("role", role.Role))
	uierrors.WriteJSON(w, http.StatusOK, role)
}
