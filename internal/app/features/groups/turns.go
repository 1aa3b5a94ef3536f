// internal/app/features/groups/turns.go
package groups

import (
	"fmt"
	"net/http"

	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/go-chi/chi/v5"
)

type entryResponse struct {
	Entry models.LogDoc `json:"entry"`
}

// HandleComplete handles POST /api/groups/{gid}/turns/{pid}/complete (members).
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	if _, err := h.requireMember(r, gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	e, err := h.Commands.CompleteTurn(r.Context(), gid, a, chi.URLParam(r, "pid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: models.ToLogDoc(e)})
}

// HandleSkip handles POST /api/groups/{gid}/turns/{pid}/skip (members).
func (h *Handler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	if _, err := h.requireMember(r, gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	e, err := h.Commands.SkipTurn(r.Context(), gid, a, chi.URLParam(r, "pid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: models.ToLogDoc(e)})
}

// HandleUndo handles POST /api/groups/{gid}/undo. It reverts the completion
// the caller's view offers for undo; there is nothing to name in the request.
func (h *Handler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	v, err := h.loadView(r.Context(), gid, a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if v.UndoableAction == nil {
		h.writeError(w, r, fmt.Errorf("%w: nothing to undo", turnerr.ErrForbidden))
		return
	}
	e, err := h.Commands.UndoTurn(r.Context(), gid, a, v.UndoableAction)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: models.ToLogDoc(e)})
}

// HandleReset handles POST /api/groups/{gid}/reset (admin).
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	if err := h.requireAdmin(r, gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	e, err := h.Commands.ResetCounts(r.Context(), gid, a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: models.ToLogDoc(e)})
}
