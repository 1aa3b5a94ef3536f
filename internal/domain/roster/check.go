package roster

import (
	"fmt"

	"github.com/dalemusser/whoseturn/internal/domain/models"
)

// Check verifies the aggregate invariants: unique slot ids, at most one slot
// per uid, non-negative counts, turn order a permutation of the slot ids, and
// uid maps equal to the roster projection.
func Check(g *models.Group) error {
	ids := make(map[string]bool, len(g.Participants))
	uids := make(map[string]bool, len(g.Participants))
	for _, p := range g.Participants {
		if p.ID == "" {
			return fmt.Errorf("participant with empty id")
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate participant id %q", p.ID)
		}
		ids[p.ID] = true
		if p.UID != nil {
			if uids[*p.UID] {
				return fmt.Errorf("uid %q holds more than one slot", *p.UID)
			}
			uids[*p.UID] = true
		}
		if p.TurnCount < 0 {
			return fmt.Errorf("participant %q has negative turn count", p.ID)
		}
		if !p.Role.Valid() {
			return fmt.Errorf("participant %q has unknown role %q", p.ID, p.Role)
		}
	}

	if len(g.TurnOrder) != len(ids) {
		return fmt.Errorf("turn order has %d entries for %d participants", len(g.TurnOrder), len(ids))
	}
	seen := make(map[string]bool, len(g.TurnOrder))
	for _, id := range g.TurnOrder {
		if !ids[id] {
			return fmt.Errorf("turn order references unknown participant %q", id)
		}
		if seen[id] {
			return fmt.Errorf("turn order lists %q twice", id)
		}
		seen[id] = true
	}

	want := Project(g.Participants)
	if !sameSet(g.ParticipantUIDs, want.ParticipantUIDs) {
		return fmt.Errorf("participant uid map does not match roster")
	}
	if !sameSet(g.AdminUIDs, want.AdminUIDs) {
		return fmt.Errorf("admin uid map does not match roster")
	}
	return nil
}

func sameSet(a, b map[string]bool) bool {
	n := 0
	for k, v := range a {
		if !v {
			continue
		}
		if !b[k] {
			return false
		}
		n++
	}
	m := 0
	for _, v := range b {
		if v {
			m++
		}
	}
	return n == m
}
