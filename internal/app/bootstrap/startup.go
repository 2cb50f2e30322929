// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	organizationstore "github.com/dalemusser/assistanthub/internal/app/store/organizations"
	"github.com/dalemusser/assistanthub/internal/app/system/orgconfig"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Saga: appCfg.SagaTimeout})
	cur := timeouts.Current()
	logger.Info("timeouts configured",
		zap.Duration("short", cur.Short),
		zap.Duration("medium", cur.Medium),
		zap.Duration("saga", cur.Saga))

	return ensureSystemOrg(ctx, deps, appCfg, logger)
}

// ensureSystemOrg creates the system organization from the configured
// baseline on first start. An existing system organization is left as is;
// later baseline changes do not rewrite it.
func ensureSystemOrg(ctx context.Context, deps DBDeps, appCfg AppConfig, logger *zap.Logger) error {
	cfg := orgconfig.System(baselineFrom(appCfg))

	org, created, err := organizationstore.New(deps.MongoDatabase).EnsureSystem(ctx, appCfg.SystemOrgSlug, appCfg.SystemOrgName, cfg)
	if err != nil {
		logger.Error("ensure system organization failed", zap.Error(err))
		return err
	}
	if created {
		logger.Info("created system organization", zap.String("slug", org.Slug), zap.String("id", org.ID.Hex()))
	} else {
		logger.Debug("system organization present", zap.String("slug", org.Slug))
	}
	return nil
}

func baselineFrom(appCfg AppConfig) orgconfig.Baseline {
	return orgconfig.Baseline{
		OpenAIAPIKey: appCfg.BaselineOpenAIAPIKey,
		OpenAIModel:  appCfg.BaselineOpenAIModel,
		OllamaURL:    appCfg.BaselineOllamaURL,
	}
}
