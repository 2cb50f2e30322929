// internal/domain/models/organization.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Unlimited marks a usage limit with no ceiling. Only the system organization uses it.
const Unlimited = -1

// Organization is a tenant. Exactly one organization has IsSystem set; every
// other organization is seeded from its config.
type Organization struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Slug      string             `bson:"slug" json:"slug"`
	Name      string             `bson:"name" json:"name"`
	NameCI    string             `bson:"name_ci" json:"-"` // ← always stored
	IsSystem  bool               `bson:"is_system" json:"is_system"`
	Status    string             `bson:"status" json:"status"` // "active" | "suspended" | "trial"
	Config    OrgConfig          `bson:"config" json:"config"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// OrgConfig is the nested per-organization configuration document.
type OrgConfig struct {
	Providers         map[string]ProviderConfig `bson:"providers" json:"providers"`
	Features          OrgFeatures               `bson:"features" json:"features"`
	Limits            UsageLimits               `bson:"limits" json:"limits"`
	AssistantDefaults AssistantDefaults         `bson:"assistant_defaults" json:"assistant_defaults"`
}

// ProviderConfig holds credentials and defaults for one LLM provider.
type ProviderConfig struct {
	Enabled      bool     `bson:"enabled" json:"enabled"`
	APIKey       string   `bson:"api_key,omitempty" json:"-"`
	BaseURL      string   `bson:"base_url,omitempty" json:"base_url,omitempty"`
	DefaultModel string   `bson:"default_model,omitempty" json:"default_model,omitempty"`
	Models       []string `bson:"models,omitempty" json:"models,omitempty"`
}

type OrgFeatures struct {
	RAGEnabled     bool   `bson:"rag_enabled" json:"rag_enabled"`
	MCPEnabled     bool   `bson:"mcp_enabled" json:"mcp_enabled"`
	SharingEnabled bool   `bson:"sharing_enabled" json:"sharing_enabled"`
	SignupEnabled  bool   `bson:"signup_enabled" json:"signup_enabled"`
	SignupKey      string `bson:"signup_key" json:"signup_key,omitempty"`
}

// UsageLimits are enforced by collaborators; a value of Unlimited disables the check.
type UsageLimits struct {
	TokensPerMonth  int64 `bson:"tokens_per_month" json:"tokens_per_month"`
	MaxAssistants   int   `bson:"max_assistants" json:"max_assistants"`
	MaxFilesPerUser int   `bson:"max_files_per_user" json:"max_files_per_user"`
	MaxStorageMB    int   `bson:"max_storage_mb" json:"max_storage_mb"`
}

// Finite reports whether every limit has a ceiling.
func (u UsageLimits) Finite() bool {
	return u.TokensPerMonth >= 0 && u.MaxAssistants >= 0 && u.MaxFilesPerUser >= 0 && u.MaxStorageMB >= 0
}

type AssistantDefaults struct {
	Connector      string `bson:"connector" json:"connector"`
	LLM            string `bson:"llm" json:"llm"`
	PromptTemplate string `bson:"prompt_template" json:"prompt_template"`
	RAGTopK        int    `bson:"rag_top_k" json:"rag_top_k"`
}
