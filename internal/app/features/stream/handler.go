// internal/app/features/stream/handler.go
//
// Package stream pushes a group's derived view to websocket clients as it
// changes and accepts turn actions over the same connection. Each
// connection owns one client.Container.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/whoseturn/internal/app/client"
	"github.com/dalemusser/whoseturn/internal/app/commands"
	"github.com/dalemusser/whoseturn/internal/app/query"
	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/system/auth"
	"github.com/dalemusser/whoseturn/internal/app/system/htmlsanitize"
	"github.com/dalemusser/whoseturn/internal/app/system/limits"
	"github.com/dalemusser/whoseturn/internal/app/system/ratelimit"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxDisplayName = 40

// Settings control connection liveness.
type Settings struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		ReadLimit:    limits.MaxStreamMessage,
	}
}

// Handler serves the stream and the reconnect signal.
type Handler struct {
	Store     docstore.Store
	Breaker   *query.Breaker
	Commands  *commands.Service
	LogWindow int
	Settings  Settings
	Log       *zap.Logger

	// Limiter caps actions per uid. Nil disables it.
	Limiter *ratelimit.Limiter

	upgrader websocket.Upgrader
}

// NewHandler creates a stream Handler. checkOrigin may be nil to accept
// same-origin requests only.
func NewHandler(store docstore.Store, breaker *query.Breaker, cmds *commands.Service, logWindow int, checkOrigin func(r *http.Request) bool, logger *zap.Logger) *Handler {
	return &Handler{
		Store:     store,
		Breaker:   breaker,
		Commands:  cmds,
		LogWindow: logWindow,
		Settings:  DefaultSettings(),
		Log:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeStream handles GET /api/groups/{gid}/stream.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	a, _ := auth.CurrentActor(r)
	a.DisplayName = htmlsanitize.Label(a.DisplayName, maxDisplayName)
	gid := chi.URLParam(r, "gid")

	// Refuse unknown groups before the upgrade so the client sees a 404.
	fctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Fetch(), h.Log, "stream precheck")
	g, err := h.Store.GroupDoc(gid).Fetch(fctx)
	cancel()
	if err != nil || g == nil {
		status := http.StatusNotFound
		if errors.Is(err, turnerr.ErrTransientStore) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	c := client.New(h.Store, h.Breaker, h.LogWindow, h.Log)
	s := newSession(h, conn, c, a, gid)
	c.OnChange(s.push)

	h.Log.Info("stream opened", zap.String("gid", gid), zap.String("uid", a.UID))
	if err := c.Load(ctx, gid); err != nil {
		h.Log.Warn("stream load failed", zap.String("gid", gid), zap.Error(err))
		s.reply(reply{Type: "error", Error: err.Error(), Kind: turnerr.Kind(err)})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx)
	}()
	s.readLoop(ctx)

	stop()
	c.Cleanup()
	<-done
	_ = conn.Close()
	h.Log.Info("stream closed", zap.String("gid", gid), zap.String("uid", a.UID))
}

type reconnectResponse struct {
	Connection string `json:"connection"`
}

// HandleReconnect handles POST /api/connection/reconnect: the external
// signal that the store is reachable again. Open streams reload.
func (h *Handler) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	mode := h.Breaker.Mode()
	mode.Reconnect()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reconnectResponse{Connection: string(mode.Mode())})
}
