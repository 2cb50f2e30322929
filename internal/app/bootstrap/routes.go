// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	assistantsfeature "github.com/dalemusser/assistanthub/internal/app/features/assistants"
	errorsfeature "github.com/dalemusser/assistanthub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/assistanthub/internal/app/features/health"
	organizationsfeature "github.com/dalemusser/assistanthub/internal/app/features/organizations"
	"github.com/dalemusser/assistanthub/internal/app/services/publishing"
	assistantstore "github.com/dalemusser/assistanthub/internal/app/store/assistants"
	"github.com/dalemusser/assistanthub/internal/app/store/audit"
	organizationstore "github.com/dalemusser/assistanthub/internal/app/store/organizations"
	orgrolestore "github.com/dalemusser/assistanthub/internal/app/store/orgroles"
	publicationstore "github.com/dalemusser/assistanthub/internal/app/store/publications"
	"github.com/dalemusser/assistanthub/internal/app/system/auditlog"
	"github.com/dalemusser/assistanthub/internal/app/system/auth"
	"github.com/dalemusser/assistanthub/internal/app/system/authz"
	"github.com/dalemusser/assistanthub/internal/app/system/metrics"
	"github.com/dalemusser/assistanthub/internal/app/system/ratelimit"
	"github.com/dalemusser/assistanthub/internal/platform/chatplatform"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. Every store, the platform client and the
// publication service are built here once and injected into the features
// that use them.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	platform, err := chatplatform.New(chatplatform.Config{
		BaseURL: appCfg.PlatformURL,
		APIKey:  appCfg.PlatformAPIKey,
		Timeout: appCfg.PlatformTimeout,
	}, logger)
	if err != nil {
		logger.Error("chat platform client init failed", zap.Error(err))
		return nil, err
	}

	auditStore := audit.New(db)
	auditLog := auditlog.New(auditStore, logger, auditlog.Config{
		Auth:      appCfg.AuditLogAuth,
		Admin:     appCfg.AuditLogAdmin,
		Assistant: appCfg.AuditLogAssistant,
	})
	m := metrics.New(db)

	orgStore := organizationstore.New(db)
	resolver := authz.NewResolver(orgStore, orgrolestore.New(db), platform, appCfg.SuperuserID, logger)

	svc, err := publishing.New(publishing.Deps{
		Assistants:   assistantstore.New(db),
		Publications: publicationstore.New(db),
		Orgs:         orgStore,
		Authz:        resolver,
		Platform:     platform,
		Audit:        auditLog,
		Events:       auditStore,
		Metrics:      m,
	}, publishing.Config{
		ResumeKey: appCfg.ResumeTokenKey,
		ResumeTTL: appCfg.ResumeTokenTTL,
	}, logger)
	if err != nil {
		logger.Error("publishing service init failed", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()
	errorsfeature.Mount(r, errorsfeature.NewHandler())

	// Health check endpoint for load balancers and orchestrators.
	// A nil *PrincipalCache must not become a non-nil Pinger.
	var cachePinger healthfeature.Pinger
	if deps.Cache != nil {
		cachePinger = deps.Cache
	}
	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(deps.MongoClient, cachePinger, logger)))
	r.Handle("/metrics", m.Handler())

	// Public signup-key lookup, limited per client IP against key guessing.
	orgHandler := organizationsfeature.NewHandler(db, resolver, auditLog, logger)
	signupLimiter := ratelimit.New(appCfg.SignupRateLimit, time.Minute)
	r.Group(func(pub chi.Router) {
		pub.Use(ratelimit.PerIP(signupLimiter, errorsfeature.RenderTooManyRequests))
		pub.Mount("/api/signup", organizationsfeature.SignupRoutes(orgHandler))
	})

	// Everything else resolves the bearer credential first.
	authMW := auth.NewMiddleware(platform, deps.Cache, auditLog, logger)
	r.Group(func(api chi.Router) {
		api.Use(authMW.LoadPrincipal)

		assistantsHandler := assistantsfeature.NewHandler(svc, logger)
		api.Mount("/api/assistants", assistantsfeature.Routes(assistantsHandler))
		api.Mount("/api/routes", assistantsfeature.ChatRoutes(assistantsHandler))

		api.Mount("/api/organizations", organizationsfeature.Routes(orgHandler))
	})

	return r, nil
}
