// internal/app/features/groups/handler.go
//
// Package groups serves the JSON API for groups, their rosters and the turn
// queue. Commands do no authorization of their own; every handler checks
// the caller against grouppolicy before running one.
package groups

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/whoseturn/internal/app/commands"
	"github.com/dalemusser/whoseturn/internal/app/policy/grouppolicy"
	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/store/turnlog"
	"github.com/dalemusser/whoseturn/internal/app/system/auth"
	"github.com/dalemusser/whoseturn/internal/app/system/htmlsanitize"
	"github.com/dalemusser/whoseturn/internal/app/system/limits"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"go.uber.org/zap"
)

// Label limits applied to user-supplied text.
const (
	MaxGroupName = 80
	MaxNickname  = 40
	MaxIcon      = 16
)

// History runs filtered history queries. The MongoDB backend provides one;
// without it the log endpoint serves the recent window only.
type History interface {
	Query(ctx context.Context, filter turnlog.QueryFilter) ([]models.LogEntry, error)
}

// Handler holds the dependencies of the group API.
type Handler struct {
	Store     docstore.Store
	Commands  *commands.Service
	History   History
	LogWindow int
	Log       *zap.Logger
}

// NewHandler creates a Handler. history may be nil.
func NewHandler(store docstore.Store, cmds *commands.Service, history History, logWindow int, logger *zap.Logger) *Handler {
	if logWindow <= 0 {
		logWindow = 20
	}
	return &Handler{
		Store:     store,
		Commands:  cmds,
		History:   history,
		LogWindow: logWindow,
		Log:       logger,
	}
}

// actor returns the caller with a cleaned display name. Routes are mounted
// behind auth.RequireActor, so the actor is always present.
func actor(r *http.Request) models.Actor {
	a, _ := auth.CurrentActor(r)
	a.DisplayName = htmlsanitize.Label(a.DisplayName, MaxNickname)
	return a
}

// loadGroup reads the current aggregate and fails with NotFound when it is
// gone.
func (h *Handler) loadGroup(ctx context.Context, gid string) (*models.Group, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Fetch(), h.Log, "load group")
	defer cancel()
	g, err := h.Store.GroupDoc(gid).Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, turnerr.ErrNotFound
	}
	return g, nil
}

// loadView reads the aggregate and its recent history and derives the
// caller's view.
func (h *Handler) loadView(ctx context.Context, gid string, a models.Actor) (grouppolicy.View, error) {
	g, err := h.loadGroup(ctx, gid)
	if err != nil {
		return grouppolicy.View{}, err
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Fetch(), h.Log, "load recent log")
	defer cancel()
	log, err := h.Store.RecentLog(gid, h.LogWindow).Fetch(ctx)
	if err != nil {
		return grouppolicy.View{}, err
	}
	return grouppolicy.Derive(g, a, log), nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limits.MaxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", turnerr.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, turnerr.ErrParticipantNotFound), errors.Is(err, turnerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, turnerr.ErrAlreadyClaimed),
		errors.Is(err, turnerr.ErrAlreadyMember),
		errors.Is(err, turnerr.ErrAlreadyUndone),
		docstore.CodeOf(err) == docstore.CodeConflict:
		return http.StatusConflict
	case errors.Is(err, turnerr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, turnerr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, turnerr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, turnerr.ErrTransientStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	kind := turnerr.Kind(err)
	if docstore.CodeOf(err) == docstore.CodeConflict {
		kind = "conflict"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func forbidden(what string) error {
	return fmt.Errorf("%w: %s", turnerr.ErrForbidden, what)
}
