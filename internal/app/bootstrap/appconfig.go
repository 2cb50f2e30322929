// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration. WAFFLE's CoreConfig covers
// ports, TLS, logging, CORS and request limits.
//
// The struct is passed to most lifecycle hooks, so any configuration needed
// during startup, request handling, or shutdown should live here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Chat platform (groups, models, user directory)
	PlatformURL     string        // Base URL of the platform REST API
	PlatformAPIKey  string        // Admin API key used for group and model management
	PlatformTimeout time.Duration // Per-request timeout for platform calls

	// SuperuserID is the platform user id treated as an administrator
	// everywhere, even without role records. Blank disables it.
	SuperuserID string

	// Publication workflow
	ResumeTokenKey string        // Signs and encrypts resume tokens (>= 32 chars)
	ResumeTokenTTL time.Duration // How long a resume token stays valid
	SagaTimeout    time.Duration // Bound for one publish/unpublish flow

	// System organization, created on first start
	SystemOrgSlug string
	SystemOrgName string

	// Baseline provider setup for the system organization
	BaselineOpenAIAPIKey string
	BaselineOpenAIModel  string
	BaselineOllamaURL    string

	// SignupRateLimit caps public signup-key lookups per client IP per minute.
	SignupRateLimit int

	// Optional Redis cache for bearer credential lookups
	RedisAddr         string
	DirectoryCacheTTL time.Duration

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAuth      string
	AuditLogAdmin     string
	AuditLogAssistant string
}
