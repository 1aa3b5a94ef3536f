// internal/app/features/groups/routes.go
package groups

import (
	"net/http"

	"github.com/dalemusser/whoseturn/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes returns the group API, mounted under /api/groups. The caller must
// have run auth's LoadActor earlier in the chain. stream, when non-nil,
// serves /{gid}/stream.
func Routes(h *Handler, stream http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireActor)

		pr.Get("/", h.ServeList)
		pr.Post("/", h.HandleCreate)

		pr.Get("/{gid}", h.ServeView)
		pr.Patch("/{gid}", h.HandleUpdateSettings)
		pr.Delete("/{gid}", h.HandleDelete)
		pr.Get("/{gid}/log", h.ServeLog)

		// ROSTER
		pr.Post("/{gid}/join", h.HandleJoin)
		pr.Post("/{gid}/participants", h.HandleAddParticipant)
		pr.Delete("/{gid}/participants/{pid}", h.HandleRemoveParticipant)
		pr.Put("/{gid}/participants/{pid}/role", h.HandleChangeRole)
		pr.Put("/{gid}/participants/{pid}/nickname", h.HandleRename)
		pr.Post("/{gid}/participants/{pid}/claim", h.HandleClaim)

		// TURNS
		pr.Post("/{gid}/turns/{pid}/complete", h.HandleComplete)
		pr.Post("/{gid}/turns/{pid}/skip", h.HandleSkip)
		pr.Post("/{gid}/undo", h.HandleUndo)
		pr.Post("/{gid}/reset", h.HandleReset)

		if stream != nil {
			pr.Method(http.MethodGet, "/{gid}/stream", stream)
		}
	})

	return r
}
