// internal/app/features/groups/roster.go
package groups

import (
	"net/http"

	"github.com/dalemusser/whoseturn/internal/app/policy/grouppolicy"
	"github.com/dalemusser/whoseturn/internal/app/system/htmlsanitize"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// HandleJoin handles POST /api/groups/{gid}/join. Joining twice is a no-op.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	if err := h.Commands.JoinGroup(r.Context(), gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ServeView(w, r)
}

// HandleClaim handles POST /api/groups/{gid}/participants/{pid}/claim.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	pid := chi.URLParam(r, "pid")
	if err := h.Commands.ClaimPlaceholder(r.Context(), gid, a, pid); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ServeView(w, r)
}

type addParticipantRequest struct {
	Nickname string      `json:"nickname"`
	Role     models.Role `json:"role"`
}

type addParticipantResponse struct {
	ID string `json:"id"`
}

// HandleAddParticipant handles POST /api/groups/{gid}/participants (admin).
// The new slot is an unclaimed placeholder at the back of the queue.
func (h *Handler) HandleAddParticipant(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	var req addParticipantRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.requireAdmin(r, gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.Commands.AddParticipant(r.Context(), gid, a, htmlsanitize.Label(req.Nickname, MaxNickname), req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addParticipantResponse{ID: id})
}

// HandleRemoveParticipant handles DELETE /api/groups/{gid}/participants/{pid} (admin).
func (h *Handler) HandleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	if err := h.requireAdmin(r, gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Commands.RemoveParticipant(r.Context(), gid, a, chi.URLParam(r, "pid")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleRequest struct {
	Role models.Role `json:"role"`
}

// HandleChangeRole handles PUT /api/groups/{gid}/participants/{pid}/role (admin).
func (h *Handler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.requireAdmin(r, gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Commands.ChangeRole(r.Context(), gid, a, chi.URLParam(r, "pid"), req.Role); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

// HandleRename handles PUT /api/groups/{gid}/participants/{pid}/nickname.
// Admins rename anyone; members rename only their own slot.
func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	pid := chi.URLParam(r, "pid")
	var req nicknameRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	g, err := h.loadGroup(r.Context(), gid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !grouppolicy.CanRename(g, a, pid) {
		h.writeError(w, r, forbidden("cannot rename this participant"))
		return
	}
	if err := h.Commands.RenameParticipant(r.Context(), gid, a, pid, htmlsanitize.Label(req.Nickname, MaxNickname)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
