// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:        appCfg.TimeoutPing,
		Fetch:       appCfg.TimeoutFetch,
		Query:       appCfg.TimeoutQuery,
		Transaction: appCfg.TimeoutTransaction,
	})
	t := timeouts.Current()
	logger.Info("timeouts configured",
		zap.Duration("ping", t.Ping),
		zap.Duration("fetch", t.Fetch),
		zap.Duration("query", t.Query),
		zap.Duration("transaction", t.Transaction),
	)
	logger.Info("whoseturn starting",
		zap.String("store_backend", appCfg.StoreBackend),
		zap.Int("log_window", appCfg.LogWindow),
		zap.String("audit_log_turns", appCfg.AuditLogTurns),
		zap.String("audit_log_roster", appCfg.AuditLogRoster),
	)

	if deps.Retention != nil {
		deps.Retention.Start()
	}
	return nil
}
