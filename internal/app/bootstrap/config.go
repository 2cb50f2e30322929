// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dalemusser/assistanthub/internal/app/services/publishing"
	"github.com/dalemusser/assistanthub/internal/app/system/cache"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// defaultResumeKey is only acceptable outside production.
const defaultResumeKey = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for AssistantHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, platform_url, etc.
//   - Environment variables: ASSISTANTHUB_MONGO_URI, ASSISTANTHUB_PLATFORM_URL, etc.
//   - Command-line flags: --mongo_uri, --platform_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "assistant_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Chat platform
	{Name: "platform_url", Default: "http://localhost:8080", Desc: "Base URL of the chat platform API"},
	{Name: "platform_api_key", Default: "", Desc: "Chat platform admin API key"},
	{Name: "platform_timeout", Default: "15s", Desc: "Timeout for one chat platform request"},
	{Name: "superuser_id", Default: "", Desc: "Platform user id with administrator rights everywhere (blank disables)"},

	// Publication workflow
	{Name: "resume_token_key", Default: defaultResumeKey, Desc: "Key for signing publication resume tokens (at least 32 chars)"},
	{Name: "resume_token_ttl", Default: "24h", Desc: "How long a publication resume token stays valid"},
	{Name: "saga_timeout", Default: "60s", Desc: "Upper bound for one publish or unpublish flow"},

	// System organization
	{Name: "system_org_slug", Default: "system", Desc: "Slug of the system organization"},
	{Name: "system_org_name", Default: "System", Desc: "Display name of the system organization"},
	{Name: "baseline_openai_api_key", Default: "", Desc: "OpenAI API key seeded into the system organization"},
	{Name: "baseline_openai_model", Default: "gpt-4o-mini", Desc: "Default OpenAI model seeded into the system organization"},
	{Name: "baseline_ollama_url", Default: "", Desc: "Ollama base URL seeded into the system organization (blank disables)"},

	{Name: "signup_rate_limit", Default: 30, Desc: "Signup-key lookups allowed per client IP per minute"},

	// Directory cache
	{Name: "redis_addr", Default: "", Desc: "Redis address for caching credential lookups (blank disables)"},
	{Name: "directory_cache_ttl", Default: "1m", Desc: "How long a resolved credential is cached"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "log", Desc: "Credential event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Organization admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_assistant", Default: "all", Desc: "Assistant lifecycle event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges .env files, config files,
// ASSISTANTHUB_* environment variables and flags with precedence
// flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "ASSISTANTHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		PlatformURL:     appValues.String("platform_url"),
		PlatformAPIKey:  appValues.String("platform_api_key"),
		PlatformTimeout: appValues.Duration("platform_timeout", 15*time.Second),
		SuperuserID:     appValues.String("superuser_id"),

		ResumeTokenKey: appValues.String("resume_token_key"),
		ResumeTokenTTL: appValues.Duration("resume_token_ttl", publishing.DefaultResumeTTL),
		SagaTimeout:    appValues.Duration("saga_timeout", time.Minute),

		SystemOrgSlug:        appValues.String("system_org_slug"),
		SystemOrgName:        appValues.String("system_org_name"),
		BaselineOpenAIAPIKey: appValues.String("baseline_openai_api_key"),
		BaselineOpenAIModel:  appValues.String("baseline_openai_model"),
		BaselineOllamaURL:    appValues.String("baseline_ollama_url"),

		SignupRateLimit: appValues.Int("signup_rate_limit"),

		RedisAddr:         appValues.String("redis_addr"),
		DirectoryCacheTTL: appValues.Duration("directory_cache_ttl", cache.DefaultTTL),

		AuditLogAuth:      appValues.String("audit_log_auth"),
		AuditLogAdmin:     appValues.String("audit_log_admin"),
		AuditLogAssistant: appValues.String("audit_log_assistant"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Problems that would only surface on the first request (a malformed
// platform URL, a weak resume key) are caught here instead.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	u, err := url.Parse(appCfg.PlatformURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("platform_url must be an absolute http(s) URL, got %q", appCfg.PlatformURL)
	}
	if appCfg.PlatformAPIKey == "" {
		return fmt.Errorf("platform_api_key is required")
	}

	if len(appCfg.ResumeTokenKey) < 32 {
		return fmt.Errorf("resume_token_key must be at least 32 characters")
	}
	if coreCfg != nil && coreCfg.Env == "prod" && appCfg.ResumeTokenKey == defaultResumeKey {
		return fmt.Errorf("resume_token_key must be changed from the development default in production")
	}

	if appCfg.SystemOrgSlug == "" || appCfg.SystemOrgName == "" {
		return fmt.Errorf("system_org_slug and system_org_name are required")
	}

	if appCfg.SignupRateLimit < 1 {
		return fmt.Errorf("signup_rate_limit must be at least 1")
	}

	for name, v := range map[string]string{
		"audit_log_auth":      appCfg.AuditLogAuth,
		"audit_log_admin":     appCfg.AuditLogAdmin,
		"audit_log_assistant": appCfg.AuditLogAssistant,
	} {
		switch v {
		case "all", "db", "log", "off":
		default:
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", name, v)
		}
	}

	return nil
}
