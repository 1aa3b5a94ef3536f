// internal/app/features/stream/session.go
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dalemusser/whoseturn/internal/app/client"
	"github.com/dalemusser/whoseturn/internal/app/policy/grouppolicy"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client operations.
const (
	OpComplete = "complete"
	OpSkip     = "skip"
	OpUndo     = "undo"
)

// request is a client action.
type request struct {
	ID            string `json:"id"`
	Op            string `json:"op"`
	ParticipantID string `json:"pid,omitempty"`
}

// stateMessage carries the derived view after every change.
type stateMessage struct {
	Type        string               `json:"type"`
	Connection  string               `json:"connection"`
	Loading     bool                 `json:"loading"`
	Speculative bool                 `json:"speculative"`
	View        *grouppolicy.Payload `json:"view"`
	Log         []models.LogDoc      `json:"log"`
}

// reply answers one request, or reports a connection-level error.
type reply struct {
	Type  string `json:"type"` // "result" or "error"
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

type session struct {
	h     *Handler
	conn  *websocket.Conn
	c     *client.Container
	actor models.Actor
	gid   string

	// latest holds at most one pending state; newer states replace it.
	latest  chan []byte
	replies chan []byte
}

func newSession(h *Handler, conn *websocket.Conn, c *client.Container, actor models.Actor, gid string) *session {
	return &session{
		h:       h,
		conn:    conn,
		c:       c,
		actor:   actor,
		gid:     gid,
		latest:  make(chan []byte, 1),
		replies: make(chan []byte, 16),
	}
}

// push is the container observer. Calls are serialized by the container.
func (s *session) push(st client.State) {
	msg := stateMessage{
		Type:        "state",
		Connection:  string(s.h.Breaker.Mode().Mode()),
		Loading:     st.Loading,
		Speculative: st.Speculative,
		Log:         []models.LogDoc{},
	}
	if st.Group != nil {
		p := grouppolicy.Derive(st.Group, s.actor, st.Log).Payload()
		msg.View = &p
	}
	for _, e := range st.Log {
		if grouppolicy.CanReadEntry(e, s.actor) {
			msg.Log = append(msg.Log, models.ToLogDoc(e))
		}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		s.h.Log.Error("encode state", zap.Error(err))
		return
	}
	select {
	case <-s.latest:
	default:
	}
	s.latest <- b
}

func (s *session) reply(r reply) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case s.replies <- b:
	default:
		s.h.Log.Warn("dropping reply to slow stream client", zap.String("gid", s.gid), zap.String("id", r.ID))
	}
}

func (s *session) writeLoop(ctx context.Context) {
	ping := time.NewTicker(s.h.Settings.PingInterval)
	defer ping.Stop()

	write := func(kind int, b []byte) bool {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.Settings.WriteTimeout))
		if err := s.conn.WriteMessage(kind, b); err != nil {
			// A websocket write deadline cannot be recovered.
			s.h.Log.Debug("stream write failed", zap.String("gid", s.gid), zap.Error(err))
			_ = s.conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.h.Settings.WriteTimeout))
			return
		case b := <-s.latest:
			if !write(websocket.TextMessage, b) {
				return
			}
		case b := <-s.replies:
			if !write(websocket.TextMessage, b) {
				return
			}
		case <-ping.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(s.h.Settings.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.h.Settings.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.h.Settings.ReadTimeout))
	})

	for {
		kind, b, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.h.Log.Debug("stream read ended", zap.String("gid", s.gid), zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.h.Settings.ReadTimeout))
		if kind != websocket.TextMessage {
			continue
		}

		var req request
		if err := json.Unmarshal(b, &req); err != nil {
			s.reply(reply{Type: "error", Error: "malformed request", Kind: "invalid_input"})
			continue
		}
		if err := s.handle(ctx, req); err != nil {
			s.reply(reply{Type: "error", ID: req.ID, Error: err.Error(), Kind: turnerr.Kind(err)})
			continue
		}
		s.reply(reply{Type: "result", ID: req.ID})
	}
}

// handle runs one action against the container's current state. The change
// is shown at once and rolled back if the command fails.
func (s *session) handle(ctx context.Context, req request) error {
	if s.h.Limiter != nil && !s.h.Limiter.Allow("uid:"+s.actor.UID) {
		return turnerr.ErrRateLimited
	}
	v := s.c.View(s.actor)
	if v.Group == nil {
		return fmt.Errorf("%w: group is not loaded", turnerr.ErrNotFound)
	}
	if v.CurrentUserParticipant == nil {
		return fmt.Errorf("%w: members only", turnerr.ErrForbidden)
	}

	switch req.Op {
	case OpComplete, OpSkip:
		pid := req.ParticipantID
		if roster.Index(v.Group.Participants, pid) < 0 {
			return fmt.Errorf("%w: %s", turnerr.ErrParticipantNotFound, pid)
		}
		complete := req.Op == OpComplete
		return s.c.Speculate(ctx, func(g *models.Group) {
			i := roster.Index(g.Participants, pid)
			if i < 0 {
				return
			}
			g.TurnOrder = roster.MoveToTail(g.TurnOrder, pid)
			if complete {
				g.Participants[i].TurnCount++
			}
		}, func(ctx context.Context) error {
			var err error
			if complete {
				_, err = s.h.Commands.CompleteTurn(ctx, s.gid, s.actor, pid)
			} else {
				_, err = s.h.Commands.SkipTurn(ctx, s.gid, s.actor, pid)
			}
			return err
		})

	case OpUndo:
		target := v.UndoableAction
		if target == nil {
			return fmt.Errorf("%w: nothing to undo", turnerr.ErrForbidden)
		}
		return s.c.Speculate(ctx, func(g *models.Group) {
			i := roster.Index(g.Participants, target.ParticipantID)
			if i < 0 {
				return
			}
			g.TurnOrder = roster.MoveToHead(g.TurnOrder, target.ParticipantID)
			if g.Participants[i].TurnCount > 0 {
				g.Participants[i].TurnCount--
			}
		}, func(ctx context.Context) error {
			_, err := s.h.Commands.UndoTurn(ctx, s.gid, s.actor, target)
			return err
		})

	default:
		return fmt.Errorf("%w: unknown op %q", turnerr.ErrInvalidInput, req.Op)
	}
}
