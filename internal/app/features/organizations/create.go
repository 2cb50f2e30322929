// internal/app/features/organizations/create.go
package organizations

import (
	"context"
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	organizationstore "github.com/dalemusser/assistanthub/internal/app/store/organizations"
	"github.com/dalemusser/assistanthub/internal/app/system/apperr"
	"github.com/dalemusser/assistanthub/internal/app/system/inputval"
	"github.com/dalemusser/assistanthub/internal/app/system/status"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"go.uber.org/zap"
)

// requireSystemAdmin answers 403 unless p is the superuser or a system admin.
func (h *Handler) requireSystemAdmin(ctx context.Context, w http.ResponseWriter, r *http.Request, p models.Principal) bool {
	if h.Authz.IsSuperuser(p) {
		return true
	}
	ok, err := h.Authz.IsSystemAdmin(ctx, p.Email)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return false
	}
	if !ok {
		uierrors.RenderForbidden(w, r, "System administrator access required.")
		return false
	}
	return true
}

// HandleCreate creates a tenant organization seeded from the system
// organization's configuration.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in createOrgInput
	if err := decodeJSON(w, r, &in); err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid JSON body.")
		return
	}
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Name = strings.TrimSpace(in.Name)
	if res := inputval.Validate(in); res.HasErrors() {
		uierrors.RenderValidation(w, r, res)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if !h.requireSystemAdmin(ctx, w, r, p) {
		return
	}

	org, err := organizationstore.New(h.DB).Create(ctx, in.Slug, in.Name, nil)
	switch {
	case errors.Is(err, organizationstore.ErrDuplicateSlug):
		uierrors.RenderError(w, r, h.Log, apperr.Conflict("An organization with this slug already exists.", err))
		return
	case errors.Is(err, organizationstore.ErrNoSystemOrg):
		h.Log.Error("create organization without a system organization", zap.Error(err))
		uierrors.RenderUnavailable(w, r, "System organization is not initialized.")
		return
	case err != nil:
		uierrors.RenderError(w, r, h.Log, err)
		return
	}

	h.Audit.OrgCreated(r.Context(), r, p.Email, org)
	h.Log.Info("organization created", zap.String("slug", org.Slug), zap.String("actor", p.Email))
	uierrors.WriteJSON(w, http.StatusCreated, newOrgView(org, true))
}

// ServeList lists organizations for system admins. Query: status.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if !h.requireSystemAdmin(ctx, w, r, p) {
		return
	}

	st := strings.TrimSpace(r.URL.Query().Get("status"))
	if st != "" && !status.IsValidOrg(st) {
		uierrors.RenderBadRequest(w, r, "Unknown status.")
		return
	}

	orgs, err := organizationstore.New(h.DB).List(ctx, st)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	out := make([]orgView, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, newOrgView(o, true))
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}
