// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/whoseturn/internal/app/commands"
	groupsfeature "github.com/dalemusser/whoseturn/internal/app/features/groups"
	healthfeature "github.com/dalemusser/whoseturn/internal/app/features/health"
	streamfeature "github.com/dalemusser/whoseturn/internal/app/features/stream"
	"github.com/dalemusser/whoseturn/internal/app/query"
	"github.com/dalemusser/whoseturn/internal/app/system/auditlog"
	"github.com/dalemusser/whoseturn/internal/app/system/auth"
	"github.com/dalemusser/whoseturn/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// whoseturn builds the token verifier, the connection mode shared by every
// live subscription, and the command service, then mounts the JSON API, the
// group streams and the health check.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	verifier, err := auth.NewVerifier(appCfg.JWTSecret, appCfg.JWTIssuer, logger)
	if err != nil {
		logger.Error("token verifier init failed", zap.Error(err))
		return nil, err
	}

	mode := query.NewConnMode(logger)
	breaker := query.NewBreaker(mode, logger)

	audit := auditlog.New(logger, auditlog.Config{
		Turns:  appCfg.AuditLogTurns,
		Roster: appCfg.AuditLogRoster,
	})
	cmds := commands.New(deps.Store, audit, logger)

	// Interface fields stay nil on the memory backend; a typed nil would
	// look present to the handlers.
	var history groupsfeature.History
	var pinger healthfeature.Pinger
	if deps.Mongo != nil {
		history = deps.Mongo.Turns()
		pinger = deps.Mongo
	}

	var limiter *ratelimit.Limiter
	if appCfg.RateLimitWrites > 0 {
		limiter = ratelimit.New(appCfg.RateLimitWrites, appCfg.RateLimitWindow)
	}

	r := chi.NewRouter()

	// Identity is optional here; each feature router requires it where needed.
	r.Use(verifier.LoadActor)

	healthHandler := healthfeature.NewHandler(pinger, mode, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	streamHandler := streamfeature.NewHandler(deps.Store, breaker, cmds, appCfg.LogWindow, originChecker(appCfg.StreamAllowedOrigins), logger)
	streamHandler.Limiter = limiter
	groupsHandler := groupsfeature.NewHandler(deps.Store, cmds, history, appCfg.LogWindow, logger)
	r.With(ratelimit.Writes(limiter, logger)).
		Mount("/api/groups", groupsfeature.Routes(groupsHandler, streamfeature.StreamHandler(streamHandler)))
	r.Mount("/api/connection", streamfeature.ConnectionRoutes(streamHandler))

	return r, nil
}

// originChecker allows the serving host plus the configured origins. With
// none configured it returns nil, which keeps the websocket default of
// same-origin only.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}
