// internal/app/features/organizations/view.go
package organizations

import (
	"context"
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/assistanthub/internal/app/features/errors"
	organizationstore "github.com/dalemusser/assistanthub/internal/app/store/organizations"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
)

// ServeView shows one organization by slug to its members and admins. The
// signup key is included for organization admins only. Anyone else gets 404
// so slugs cannot be enumerated.
func (h *Handler) ServeView(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	slug := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "slug")))

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	org, err := organizationstore.New(h.DB).GetBySlug(ctx, slug)
	if errors.Is(err, mongo.ErrNoDocuments) {
		uierrors.RenderNotFound(w, r, "Organization not found.")
		return
	}
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}

	isAdmin := h.Authz.IsAdmin(p)
	if !isAdmin {
		isAdmin, err = h.Authz.IsOrgAdmin(ctx, p.Email, org.ID)
		if err != nil {
			uierrors.RenderError(w, r, h.Log, err)
			return
		}
	}
	if !isAdmin {
		member, err := h.Authz.IsMember(ctx, p, org.ID)
		if err != nil {
			uierrors.RenderError(w, r, h.Log, err)
			return
		}
		if !member {
			uierrors.RenderNotFound(w, r, "Organization not found.")
			return
		}
	}

	uierrors.WriteJSON(w, http.StatusOK, newOrgView(org, isAdmin))
}
