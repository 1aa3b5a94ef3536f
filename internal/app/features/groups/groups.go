// internal/app/features/groups/groups.go
package groups

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/whoseturn/internal/app/commands"
	"github.com/dalemusser/whoseturn/internal/app/policy/grouppolicy"
	"github.com/dalemusser/whoseturn/internal/app/store/turnlog"
	"github.com/dalemusser/whoseturn/internal/app/system/htmlsanitize"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type groupSummary struct {
	ID               string `json:"gid"`
	Name             string `json:"name"`
	Icon             string `json:"icon"`
	IsAdmin          bool   `json:"isAdmin"`
	Participants     int    `json:"participants"`
	NextParticipant  string `json:"nextParticipant,omitempty"`
	IsUserTurn       bool   `json:"isUserTurn"`
	CurrentTurnCount int    `json:"turnCount"`
}

func summarize(g *models.Group, a models.Actor) groupSummary {
	v := grouppolicy.Derive(g, a, nil)
	s := groupSummary{
		ID:           g.ID,
		Name:         g.Name,
		Icon:         g.Icon,
		IsAdmin:      v.IsAdmin,
		Participants: len(g.Participants),
		IsUserTurn:   v.IsUserTurn,
	}
	if len(v.OrderedParticipants) > 0 {
		s.NextParticipant = v.OrderedParticipants[0].DisplayName()
	}
	if v.CurrentUserParticipant != nil {
		s.CurrentTurnCount = v.CurrentUserParticipant.TurnCount
	}
	return s
}

// ServeList handles GET /api/groups: the caller's groups, sorted by name.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Query(), h.Log, "list groups")
	defer cancel()

	groups, err := h.Store.GroupsFor(a.UID).Fetch(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]groupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, summarize(g, a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

type createRequest struct {
	Name         string   `json:"name"`
	Icon         string   `json:"icon"`
	Placeholders []string `json:"placeholders"`
}

// HandleCreate handles POST /api/groups.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	var req createRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := commands.CreateGroupInput{
		Name: htmlsanitize.Label(req.Name, MaxGroupName),
		Icon: htmlsanitize.Label(req.Icon, MaxIcon),
	}
	for _, p := range req.Placeholders {
		in.Placeholders = append(in.Placeholders, htmlsanitize.Label(p, MaxNickname))
	}

	g, err := h.Commands.CreateGroup(r.Context(), a, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Log.Info("group created", zap.String("gid", g.ID), zap.String("uid", a.UID))
	writeJSON(w, http.StatusCreated, grouppolicy.Derive(g, a, nil).Payload())
}

// ServeView handles GET /api/groups/{gid}: the caller's derived view.
func (h *Handler) ServeView(w http.ResponseWriter, r *http.Request) {
	v, err := h.loadView(r.Context(), chi.URLParam(r, "gid"), actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Payload())
}

type settingsRequest struct {
	Name *string `json:"name"`
	Icon *string `json:"icon"`
}

// HandleUpdateSettings handles PATCH /api/groups/{gid} (admin).
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	var req settingsRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.requireAdmin(r, gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}

	var in commands.UpdateSettingsInput
	if req.Name != nil {
		name := htmlsanitize.Label(*req.Name, MaxGroupName)
		in.Name = &name
	}
	if req.Icon != nil {
		icon := htmlsanitize.Label(*req.Icon, MaxIcon)
		in.Icon = &icon
	}
	if err := h.Commands.UpdateSettings(r.Context(), gid, a, in); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ServeView(w, r)
}

// HandleDelete handles DELETE /api/groups/{gid} (admin).
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	if err := h.requireAdmin(r, gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Commands.DeleteGroup(r.Context(), gid, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Log.Info("group deleted", zap.String("gid", gid), zap.String("uid", a.UID))
	w.WriteHeader(http.StatusNoContent)
}

// ServeLog handles GET /api/groups/{gid}/log (members).
//
// Query parameters: limit, and with the MongoDB backend also offset, type,
// since and until (RFC 3339). Entries the caller was not a member for are
// left out.
func (h *Handler) ServeLog(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	gid := chi.URLParam(r, "gid")
	g, err := h.loadGroup(r.Context(), gid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !grouppolicy.IsMember(g, a) {
		h.writeError(w, r, forbidden("only members can read the history"))
		return
	}

	filter, err := parseLogFilter(r, gid, h.LogWindow)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Query(), h.Log, "query log")
	defer cancel()

	var entries []models.LogEntry
	if h.History != nil {
		entries, err = h.History.Query(ctx, filter)
	} else {
		entries, err = h.Store.RecentLog(gid, int(filter.Limit)).Fetch(ctx)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]models.LogDoc, 0, len(entries))
	for _, e := range entries {
		if !grouppolicy.CanReadEntry(e, a) {
			continue
		}
		if h.History == nil && filter.Type != "" && e.Type() != filter.Type {
			continue
		}
		out = append(out, models.ToLogDoc(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func parseLogFilter(r *http.Request, gid string, def int) (turnlog.QueryFilter, error) {
	q := r.URL.Query()
	f := turnlog.QueryFilter{GroupID: gid, Limit: int64(def)}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > turnlog.DefaultLimit {
			return f, invalid("limit must be between 1 and %d", turnlog.DefaultLimit)
		}
		f.Limit = int64(n)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, invalid("offset must be a non-negative integer")
		}
		f.Offset = int64(n)
	}
	if s := strings.TrimSpace(q.Get("type")); s != "" {
		switch t := models.LogType(s); t {
		case models.LogTurnCompleted, models.LogTurnSkipped, models.LogCountsReset, models.LogTurnUndone:
			f.Type = t
		default:
			return f, invalid("unknown entry type %q", s)
		}
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"since", &f.StartTime}, {"until", &f.EndTime}} {
		s := q.Get(p.key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, invalid("%s must be an RFC 3339 time", p.key)
		}
		*p.dst = &t
	}
	return f, nil
}

func (h *Handler) requireAdmin(r *http.Request, gid string, a models.Actor) error {
	g, err := h.loadGroup(r.Context(), gid)
	if err != nil {
		return err
	}
	if !grouppolicy.CanManage(g, a) {
		return forbidden("admin only")
	}
	return nil
}

func (h *Handler) requireMember(r *http.Request, gid string, a models.Actor) (*models.Group, error) {
	g, err := h.loadGroup(r.Context(), gid)
	if err != nil {
		return nil, err
	}
	if !grouppolicy.IsMember(g, a) {
		return nil, forbidden("members only")
	}
	return g, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", turnerr.ErrInvalidInput, fmt.Sprintf(format, args...))
}
