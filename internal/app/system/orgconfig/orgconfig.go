// Package orgconfig builds organization configuration documents: the system
// baseline loaded from app config, and tenant configs seeded from it.
package orgconfig

import (
	"fmt"

	"github.com/dalemusser/assistanthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
)

// Baseline is the provider and default-assistant setup taken from app config
// when the system organization is first created.
type Baseline struct {
	OpenAIAPIKey   string
	OpenAIModel    string
	OllamaURL      string
	Connector      string
	PromptTemplate string
	RAGTopK        int
}

// TenantLimits are the finite limits every new tenant starts with.
var TenantLimits = models.UsageLimits{
	TokensPerMonth:  1_000_000,
	MaxAssistants:   10,
	MaxFilesPerUser: 100,
	MaxStorageMB:    500,
}

// System returns the configuration of the system organization. Its limits
// are unlimited and signup is off.
func System(b Baseline) models.OrgConfig {
	providers := map[string]models.ProviderConfig{}
	if b.OpenAIAPIKey != "" {
		providers["openai"] = models.ProviderConfig{
			Enabled:      true,
			APIKey:       b.OpenAIAPIKey,
			BaseURL:      "https://api.openai.com/v1",
			DefaultModel: b.OpenAIModel,
			Models:       []string{b.OpenAIModel},
		}
	}
	if b.OllamaURL != "" {
		providers["ollama"] = models.ProviderConfig{
			Enabled: true,
			BaseURL: b.OllamaURL,
		}
	}

	llm := "openai"
	if _, ok := providers["openai"]; !ok && b.OllamaURL != "" {
		llm = "ollama"
	}
	connector := b.Connector
	if connector == "" {
		connector = llm
	}
	topK := b.RAGTopK
	if topK <= 0 {
		topK = 3
	}
	tmpl := b.PromptTemplate
	if tmpl == "" {
		tmpl = "{context}\n\n{user_input}"
	}

	return models.OrgConfig{
		Providers: providers,
		Features: models.OrgFeatures{
			RAGEnabled:     true,
			MCPEnabled:     false,
			SharingEnabled: true,
		},
		Limits: models.UsageLimits{
			TokensPerMonth:  models.Unlimited,
			MaxAssistants:   models.Unlimited,
			MaxFilesPerUser: models.Unlimited,
			MaxStorageMB:    models.Unlimited,
		},
		AssistantDefaults: models.AssistantDefaults{
			Connector:      connector,
			LLM:            b.OpenAIModel,
			PromptTemplate: tmpl,
			RAGTopK:        topK,
		},
	}
}

// SeedTenant deep-copies the system config and resets it to tenant defaults:
// finite limits, signup disabled, no signup key. Providers and assistant
// defaults are inherited as-is.
func SeedTenant(system models.OrgConfig) (models.OrgConfig, error) {
	cfg, err := Clone(system)
	if err != nil {
		return models.OrgConfig{}, err
	}
	cfg.Limits = TenantLimits
	cfg.Features.SignupEnabled = false
	cfg.Features.SignupKey = ""
	return cfg, nil
}

// Clone returns a deep copy of cfg that shares no maps or slices with it.
func Clone(cfg models.OrgConfig) (models.OrgConfig, error) {
	raw, err := bson.Marshal(cfg)
	if err != nil {
		return models.OrgConfig{}, fmt.Errorf("clone org config: %w", err)
	}
	var out models.OrgConfig
	if err := bson.Unmarshal(raw, &out); err != nil {
		return models.OrgConfig{}, fmt.Errorf("clone org config: %w", err)
	}
	if out.Providers == nil {
		out.Providers = map[string]models.ProviderConfig{}
	}
	return out, nil
}
