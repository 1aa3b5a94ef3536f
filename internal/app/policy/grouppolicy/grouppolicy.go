// internal/app/policy/grouppolicy/grouppolicy.go
//
// Package grouppolicy derives what an actor sees and may do in a group from
// the aggregate and a window of its history. Everything here is a pure
// function of its inputs; nothing reads the store.
//
// Authorization rules:
//   - Anyone signed in who has the group id can view the group; the id is
//     the invitation
//   - Members (uid in the roster) can read its history
//   - Members can complete or skip any turn
//   - Admins can change settings, manage the roster, reset counts and delete
//   - Anyone signed in can join, or claim an unclaimed placeholder
//   - A completed turn can be undone by an admin, by whoever recorded it, or
//     by the participant it was about (see CanUndo)
package grouppolicy

import (
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
)

// UndoWindow is how many of the most recent live completions are candidates
// for undo. Older completions are never undoable.
const UndoWindow = 3

// View is the per-actor view model of one group.
type View struct {
	Group                  *models.Group         `json:"group"`
	CurrentUserParticipant *models.Participant   `json:"currentUserParticipant"`
	IsAdmin                bool                  `json:"isAdmin"`
	OrderedParticipants    []models.Participant  `json:"orderedParticipants"`
	IsUserTurn             bool                  `json:"isUserTurn"`
	IsLastAdmin            bool                  `json:"isLastAdmin"`
	UndoableAction         *models.TurnCompleted `json:"-"`
}

// Payload is the JSON form of a View sent to clients.
type Payload struct {
	View
	UndoableEntryID string `json:"undoableEntryId,omitempty"`
}

// Payload returns the wire form of v.
func (v View) Payload() Payload {
	p := Payload{View: v}
	if v.UndoableAction != nil {
		p.UndoableEntryID = v.UndoableAction.ID
	}
	return p
}

// Derive computes the view of g for actor. log is the recent history,
// newest first. A nil g yields the zero View.
func Derive(g *models.Group, actor models.Actor, log []models.LogEntry) View {
	if g == nil {
		return View{}
	}
	v := View{Group: g}

	if p, ok := g.ParticipantByUID(actor.UID); ok {
		v.CurrentUserParticipant = &p
		v.IsAdmin = p.Role == models.RoleAdmin
	}
	v.OrderedParticipants = Ordered(g, actor)

	if v.CurrentUserParticipant != nil && len(v.OrderedParticipants) > 0 {
		v.IsUserTurn = v.OrderedParticipants[0].ID == v.CurrentUserParticipant.ID
	}
	v.IsLastAdmin = v.IsAdmin && roster.AdminCount(g.Participants) == 1
	v.UndoableAction = Undoable(g, actor, log)
	return v
}

// Ordered maps the turn order through the roster, dropping ids that have no
// slot. The actor's own slot shows their current display name.
func Ordered(g *models.Group, actor models.Actor) []models.Participant {
	out := make([]models.Participant, 0, len(g.TurnOrder))
	for _, id := range g.TurnOrder {
		p, ok := g.Participant(id)
		if !ok {
			continue
		}
		if p.HasUID(actor.UID) && actor.DisplayName != "" {
			p.Nickname = actor.DisplayName
		}
		out = append(out, p)
	}
	return out
}

// Undoable returns the most recent completion the actor may undo, looking
// only at the UndoWindow newest completions that are not already undone.
func Undoable(g *models.Group, actor models.Actor, log []models.LogEntry) *models.TurnCompleted {
	seen := 0
	for _, e := range log {
		tc, ok := e.(*models.TurnCompleted)
		if !ok || tc.IsUndone {
			continue
		}
		seen++
		if seen > UndoWindow {
			return nil
		}
		if CanUndo(g, actor, tc) {
			return tc
		}
	}
	return nil
}

// CanUndo reports whether actor may undo e. Admin status is taken from the
// snapshot stored on the entry; the subject is resolved against the current
// roster so a slot claimed after the fact counts.
func CanUndo(g *models.Group, actor models.Actor, e *models.TurnCompleted) bool {
	if actor.UID == "" || e == nil {
		return false
	}
	if e.AdminUIDs[actor.UID] || e.ActorUID == actor.UID {
		return true
	}
	if g == nil {
		return false
	}
	p, ok := g.Participant(e.ParticipantID)
	return ok && p.HasUID(actor.UID)
}

// IsMember reports whether actor holds a slot in g.
func IsMember(g *models.Group, actor models.Actor) bool {
	return g != nil && actor.UID != "" && g.ParticipantUIDs[actor.UID]
}

// CanManage reports whether actor is an admin of g.
func CanManage(g *models.Group, actor models.Actor) bool {
	return g != nil && actor.UID != "" && g.AdminUIDs[actor.UID]
}

// CanRename reports whether actor may rename slot pid: admins may rename
// anyone, members only themselves.
func CanRename(g *models.Group, actor models.Actor, pid string) bool {
	if g == nil {
		return false
	}
	if CanManage(g, actor) {
		return true
	}
	p, ok := g.Participant(pid)
	return ok && p.HasUID(actor.UID)
}

// CanReadEntry checks history access against the membership snapshot on
// the entry, so it never needs the aggregate.
func CanReadEntry(e models.LogEntry, actor models.Actor) bool {
	return actor.UID != "" && e.Meta().ParticipantUIDs[actor.UID]
}
