package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/whoseturn/internal/app/query"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Pinger is satisfied by the MongoDB-backed store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	DB   Pinger // nil when running on the in-memory store
	Mode *query.ConnMode
	Log  *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(db Pinger, mode *query.ConnMode, logger *zap.Logger) *Handler {
	return &Handler{DB: db, Mode: mode, Log: logger}
}

type healthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Connection string `json:"connection,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "connection":"live" }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable", "error":"…"}
//
// A degraded connection mode is reported but does not fail the check; the
// query layer recovers on its own.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{Status: "ok", Database: "connected"}
	if h.Mode != nil {
		resp.Connection = string(h.Mode.Mode())
	}

	if h.DB == nil {
		resp.Database = "memory"
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	_ = json.NewEncoder(w).Encode(resp)
}
