// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/whoseturn/internal/app/client"
	"github.com/dalemusser/whoseturn/internal/app/system/auth"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"go.uber.org/zap"
)

const devJWTSecret = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for whoseturn.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: WHOSETURN_MONGO_URI, WHOSETURN_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_backend", Default: BackendMongo, Desc: "Store backend: 'mongo' or 'memory'"},

	{Name: "mongo_uri", Default: "mongodb://localhost:27017/?replicaSet=rs0", Desc: "MongoDB connection URI (a replica set is needed for transactions and change streams)"},
	{Name: "mongo_database", Default: "whoseturn", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Identity
	{Name: "jwt_secret", Default: devJWTSecret, Desc: "HS256 secret shared with the identity service (must be strong in production)"},
	{Name: "jwt_issuer", Default: "", Desc: "Expected token issuer (blank skips the check)"},

	{Name: "log_window", Default: client.DefaultLogWindow, Desc: "Recent history entries loaded per view"},

	// Audit logging settings
	{Name: "audit_log_turns", Default: "log", Desc: "Turn history logging: 'log' or 'off'"},
	{Name: "audit_log_roster", Default: "log", Desc: "Group and roster change logging: 'log' or 'off'"},

	// Timeouts
	{Name: "timeout_ping", Default: timeouts.DefaultPing.String(), Desc: "Health check timeout"},
	{Name: "timeout_fetch", Default: timeouts.DefaultFetch.String(), Desc: "Single read timeout"},
	{Name: "timeout_query", Default: timeouts.DefaultQuery.String(), Desc: "List and history query timeout"},
	{Name: "timeout_transaction", Default: timeouts.DefaultTransaction.String(), Desc: "Command transaction timeout"},

	// History retention (MongoDB only)
	{Name: "history_retention", Default: "0", Desc: "Delete turn history older than this (0 keeps it forever)"},
	{Name: "history_prune_interval", Default: "1h", Desc: "How often old history is pruned"},

	// Rate limiting
	{Name: "rate_limit_writes", Default: 120, Desc: "Changes allowed per user per window (0 disables)"},
	{Name: "rate_limit_window", Default: "1m", Desc: "Rate limit window"},

	{Name: "stream_allowed_origins", Default: "", Desc: "Comma-separated origins allowed to open streams ('*' for any)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, WHOSETURN_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "WHOSETURN", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		StoreBackend: strings.ToLower(strings.TrimSpace(appValues.String("store_backend"))),

		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		JWTSecret: appValues.String("jwt_secret"),
		JWTIssuer: appValues.String("jwt_issuer"),

		LogWindow: appValues.Int("log_window"),

		AuditLogTurns:  appValues.String("audit_log_turns"),
		AuditLogRoster: appValues.String("audit_log_roster"),

		TimeoutPing:        appValues.Duration("timeout_ping", timeouts.DefaultPing),
		TimeoutFetch:       appValues.Duration("timeout_fetch", timeouts.DefaultFetch),
		TimeoutQuery:       appValues.Duration("timeout_query", timeouts.DefaultQuery),
		TimeoutTransaction: appValues.Duration("timeout_transaction", timeouts.DefaultTransaction),

		HistoryRetention:     appValues.Duration("history_retention", 0),
		HistoryPruneInterval: appValues.Duration("history_prune_interval", time.Hour),

		RateLimitWrites: appValues.Int("rate_limit_writes"),
		RateLimitWindow: appValues.Duration("rate_limit_window", time.Minute),

		StreamAllowedOrigins: splitList(appValues.String("stream_allowed_origins")),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if appCfg.MongoDatabase == "" {
			return fmt.Errorf("mongo_database is required")
		}
	case BackendMemory:
		if coreCfg != nil && coreCfg.Env == "prod" {
			logger.Warn("memory store selected in prod; all groups are lost on restart")
		}
	default:
		return fmt.Errorf("unknown store_backend %q (want %q or %q)", appCfg.StoreBackend, BackendMongo, BackendMemory)
	}

	if appCfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if coreCfg != nil && coreCfg.Env == "prod" && appCfg.JWTSecret == devJWTSecret {
		return fmt.Errorf("jwt_secret must be changed from the development default in prod")
	}
	if len(appCfg.JWTSecret) < auth.MinSecretLength {
		logger.Warn("jwt_secret is short; 32+ chars recommended", zap.Int("length", len(appCfg.JWTSecret)))
	}

	if appCfg.LogWindow < 1 || appCfg.LogWindow > 500 {
		return fmt.Errorf("log_window must be between 1 and 500, got %d", appCfg.LogWindow)
	}
	for name, v := range map[string]string{"audit_log_turns": appCfg.AuditLogTurns, "audit_log_roster": appCfg.AuditLogRoster} {
		if v != "log" && v != "off" {
			return fmt.Errorf("%s must be 'log' or 'off', got %q", name, v)
		}
	}
	if appCfg.HistoryRetention < 0 {
		return fmt.Errorf("history_retention must not be negative")
	}
	if appCfg.HistoryRetention > 0 && appCfg.HistoryPruneInterval <= 0 {
		return fmt.Errorf("history_prune_interval must be positive when history_retention is set")
	}
	if appCfg.RateLimitWrites < 0 {
		return fmt.Errorf("rate_limit_writes must not be negative, got %d", appCfg.RateLimitWrites)
	}
	if appCfg.RateLimitWrites > 0 && appCfg.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive when rate limiting is on")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
