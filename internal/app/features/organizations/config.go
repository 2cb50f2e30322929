// internal/app/features/organizations/config.go
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
	"github.com/dalemusser/assistanthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// HandleConfig changes an organization's feature switches, assistant
// defaults and, for system admins, usage limits. Omitted sections and fields
// are kept. Providers and signup settings are not touched here.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := orgID(w, r)
	if !ok {
		return
	}

	var in configInput
	if err := decodeJSON(w, r, &in); err != nil {
		uierrors.RenderBadRequest(w, r, "Invalid JSON body.")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		uierrors.RenderValidation(w, r, res)
		return
	}
	if in.Features == nil && in.Limits == nil && in.AssistantDefaults == nil {
		uierrors.RenderError(w, r, h.Log, apperr.Validation("Nothing to update."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	superuser := h.Authz.IsSuperuser(p)
	if !superuser && !h.requireOrgAdmin(ctx, w, r, p.Email, id) {
		return
	}
	if in.Limits != nil && !superuser {
		sysAdmin, err := h.Authz.IsSystemAdmin(ctx, p.Email)
		if err != nil {
			uierrors.RenderError(w, r, h.Log, err)
			return
		}
		if !sysAdmin {
			uierrors.RenderForbidden(w, r, "Only system administrators can change usage limits.")
			return
		}
	}

	store := organizationstore.New(h.DB)
	org, err := store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.RenderNotFound(w, r, "Organization not found.")
			return
		}
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	if in.Limits != nil && !org.IsSystem && !in.Limits.usageLimits().Finite() {
		uierrors.RenderError(w, r, h.Log, apperr.Validation("Tenant usage limits must be finite."))
		return
	}

	cfg, sections := in.apply(org.Config)
	if err := store.UpdateConfig(ctx, id, cfg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			uierrors.RenderNotFound(w, r, "Organization not found.")
			return
		}
		uierrors.RenderError(w, r, h.Log, err)
		return
	}
	org.Config = cfg

	h.Audit.OrgConfigUpdated(r.Context(), r, p.Email, id, sections)
	h.Log.Info("organization config updated",
		zap.String("org_id", id.Hex()),
		zap.String("sections", strings.Join(sections, ",")),
		zap.String("actor", p.Email))
	uierrors.WriteJSON(w, http.StatusOK, newOrgView(org, true))
}

// apply merges the input into cfg and names the sections it changed.
func (in configInput) apply(cfg models.OrgConfig) (models.OrgConfig, []string) {
	var sections []string
	if f := in.Features; f != nil {
		if f.RAGEnabled != nil {
			cfg.Features.RAGEnabled = *f.RAGEnabled
		}
		if f.MCPEnabled != nil {
			cfg.Features.MCPEnabled = *f.MCPEnabled
		}
		if f.SharingEnabled != nil {
			cfg.Features.SharingEnabled = *f.SharingEnabled
		}
		sections = append(sections, "features")
	}
	if in.Limits != nil {
		cfg.Limits = in.Limits.usageLimits()
		sections = append(sections, "limits")
	}
	if d := in.AssistantDefaults; d != nil {
		if d.Connector != nil {
			cfg.AssistantDefaults.Connector = strings.TrimSpace(*d.Connector)
		}
		if d.LLM != nil {
			cfg.AssistantDefaults.LLM = strings.TrimSpace(*d.LLM)
		}
		if d.PromptTemplate != nil {
			cfg.AssistantDefaults.PromptTemplate = *d.PromptTemplate
		}
		if d.RAGTopK != nil {
			cfg.AssistantDefaults.RAGTopK = *d.RAGTopK
		}
		sections = append(sections, "assistant_defaults")
	}
	return cfg, sections
}
