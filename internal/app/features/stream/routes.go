// internal/app/features/stream/routes.go
package stream

import (
	"net/http"

	"github.com/dalemusser/whoseturn/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// StreamHandler returns the websocket endpoint. It is served by the group
// router at /api/groups/{gid}/stream, which supplies the gid parameter.
func StreamHandler(h *Handler) http.Handler {
	return auth.RequireActor(http.HandlerFunc(h.ServeStream))
}

// ConnectionRoutes returns the reconnect signal, mounted under
// /api/connection.
func ConnectionRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.With(auth.RequireActor).Post("/reconnect", h.HandleReconnect)
	return r
}
