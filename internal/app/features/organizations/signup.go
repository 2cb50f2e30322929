// internal/app/features/organizations/signup.go
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
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// requireOrgAdmin answers 403 unless p administers orgID.
func (h *Handler) requireOrgAdmin(ctx context.Context, w http.ResponseWriter, r *http.Request, email string, id primitive.ObjectID) bool {
	ok, err := h.Authz.IsOrgAdmin(ctx, email, id)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return false
	}
	if !ok {
		uierrors.RenderForbidden(w, r, "Organization administrator access required.")
		return false
	}
	return true
}

// HandleSignup turns self-signup on or off for an organization and sets its
// key. Enabling requires a key no other organization uses.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := orgID(w, r)
	if !ok {
		return
	}

	var in signupInput
	if err := decodeJSON(w, r, &in); err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid JSON body.")
		return
	}
	in.Key = strings.TrimSpace(in.Key)
	if res := inputval.Validate(in); res.HasErrors() {
		uierrors.RenderValidation(w, r, res)
		return
	}
	if in.Enabled && in.Key == "" {
		uierrors.RenderError(w, r, h.Log, apperr.Validation("A signup key is required to enable signup."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if !h.Authz.IsSuperuser(p) && !h.requireOrgAdmin(ctx, w, r, p.Email, id) {
		return
	}

	store := organizationstore.New(h.DB)
	if in.Key != "" {
		taken, err := store.SignupKeyInUse(ctx, in.Key, id)
		if err != nil {
			uierrors.RenderError(w, r, h.Log, err)
			return
		}
		if taken {
			uierrors.RenderError(w, r, h.Log, apperr.Conflict("This signup key is already in use.", nil))
			return
		}
	}

	if err := store.UpdateSignup(ctx, id, in.Enabled, in.Key); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.RenderNotFound(w, r, "Organization not found.")
			return
		}
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	org, err := store.GetByID(ctx, id)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}

	h.Audit.OrgSignupUpdated(r.Context(), r, p.Email, id, in.Enabled)
	h.Log.Info("organization signup updated",
		zap.String("org_id", id.Hex()),
		zap.Bool("enabled", in.Enabled),
		zap.String("actor", p.Email))
	uierrors.WriteJSON(w, http.StatusOK, newOrgView(org, true))
}

// ServeSignup resolves a signup key to the organization it enrolls users in.
// Unknown keys and organizations with signup turned off look the same.
func (h *Handler) ServeSignup(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	org, found, err := organizationstore.New(h.DB).ResolveBySignupKey(ctx, key)
	if err != nil {
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	if !found {
		uierrors.RenderNotFound(w, r, "Signup key not recognized.")
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, signupView{
		OrganizationID: org.ID.Hex(),
		Slug:           org.Slug,
		Name:           org.Name,
	})
}
