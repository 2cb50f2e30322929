// internal/app/features/organizations/types.go
package organizations

import (
	"time"

	"github.com/dalemusser/assistanthub/internal/domain/models"
)

// createOrgInput defines validation rules for creating an organization.
type createOrgInput struct {
	Slug string `json:"slug" validate:"required,slug" label:"Slug"`
	Name string `json:"name" validate:"required,max=200" label:"Organization name"`
}

type signupInput struct {
	Enabled bool   `json:"enabled"`
	Key     string `json:"key" validate:"omitempty,signupkey" label:"Signup key"`
}

type roleInput struct {
	UserID string `json:"user_id" validate:"required,max=200" label:"User id"`
	Email  string `json:"email" validate:"required,email" label:"Email"`
	Role   string `json:"role" validate:"required,orgrole" label:"Role"`
}

// configInput is a partial config update. Nil sections and fields are kept.
type configInput struct {
	Features          *featuresInput `json:"features"`
	Limits            *limitsInput   `json:"limits"`
	AssistantDefaults *defaultsInput `json:"assistant_defaults"`
}

type featuresInput struct {
	RAGEnabled     *bool `json:"rag_enabled"`
	MCPEnabled     *bool `json:"mcp_enabled"`
	SharingEnabled *bool `json:"sharing_enabled"`
}

// limitsInput replaces the whole limits section; -1 means unlimited.
type limitsInput struct {
	TokensPerMonth  int64 `json:"tokens_per_month" validate:"gte=-1" label:"Tokens per month"`
	MaxAssistants   int   `json:"max_assistants" validate:"gte=-1" label:"Max assistants"`
	MaxFilesPerUser int   `json:"max_files_per_user" validate:"gte=-1" label:"Max files per user"`
	MaxStorageMB    int   `json:"max_storage_mb" validate:"gte=-1" label:"Max storage (MB)"`
}

func (l limitsInput) usageLimits() models.UsageLimits {
	return models.UsageLimits{
		TokensPerMonth:  l.TokensPerMonth,
		MaxAssistants:   l.MaxAssistants,
		MaxFilesPerUser: l.MaxFilesPerUser,
		MaxStorageMB:    l.MaxStorageMB,
	}
}

type defaultsInput struct {
	Connector      *string `json:"connector" validate:"omitempty,max=100" label:"Connector"`
	LLM            *string `json:"llm" validate:"omitempty,max=100" label:"LLM"`
	PromptTemplate *string `json:"prompt_template" validate:"omitempty,max=20000" label:"Prompt template"`
	RAGTopK        *int    `json:"rag_top_k" validate:"omitempty,gte=1,lte=100" label:"RAG top k"`
}

// orgView is an organization as returned by the API. Provider credentials are
// never serialized; the signup key is shown to organization admins only.
type orgView struct {
	ID        string           `json:"id"`
	Slug      string           `json:"slug"`
	Name      string           `json:"name"`
	IsSystem  bool             `json:"is_system"`
	Status    string           `json:"status"`
	Config    models.OrgConfig `json:"config"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func newOrgView(o models.Organization, showSignupKey bool) orgView {
	cfg := o.Config
	if !showSignupKey {
		cfg.Features.SignupKey = ""
	}
	return orgView{
		ID:        o.ID.Hex(),
		Slug:      o.Slug,
		Name:      o.Name,
		IsSystem:  o.IsSystem,
		Status:    o.Status,
		Config:    cfg,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// signupView is all the public signup lookup reveals.
type signupView struct {
	OrganizationID string `json:"organization_id"`
	Slug           string `json:"slug"`
	Name           string `json:"name"`
}
