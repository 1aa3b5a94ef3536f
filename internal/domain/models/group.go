// internal/domain/models/group.go
package models

import (
	"time"
)

// Group is the single mutable aggregate for a turn-sharing group.
//
// NOTE:
//   - TurnOrder is always a permutation of the participant IDs.
//   - ParticipantUIDs and AdminUIDs are projections of Participants and are
//     rewritten by every command; nothing else may set them.
//   - OwnerUID records who created the group. It grants no authority.
type Group struct {
	ID              string          `bson:"_id" json:"gid"`
	Name            string          `bson:"name" json:"name"`
	NameCI          string          `bson:"name_ci" json:"-"` // folded Name for sorting
	Icon            string          `bson:"icon" json:"icon"`
	OwnerUID        string          `bson:"owner_uid" json:"ownerUid"`
	Participants    []Participant   `bson:"participants" json:"participants"`
	TurnOrder       []string        `bson:"turn_order" json:"turnOrder"`
	ParticipantUIDs map[string]bool `bson:"participant_uids" json:"participantUids"`
	AdminUIDs       map[string]bool `bson:"admin_uids" json:"adminUids"`

	// Revision increases by one on every committed write.
	Revision int64 `bson:"revision" json:"revision"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Participant returns the roster slot with the given id.
func (g *Group) Participant(id string) (Participant, bool) {
	for _, p := range g.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantByUID returns the roster slot linked to uid.
func (g *Group) ParticipantByUID(uid string) (Participant, bool) {
	if uid == "" {
		return Participant{}, false
	}
	for _, p := range g.Participants {
		if p.HasUID(uid) {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	out := *g
	out.Participants = make([]Participant, len(g.Participants))
	for i, p := range g.Participants {
		if p.UID != nil {
			p.UID = StrPtr(*p.UID)
		}
		out.Participants[i] = p
	}
	out.TurnOrder = append([]string(nil), g.TurnOrder...)
	out.ParticipantUIDs = cloneSet(g.ParticipantUIDs)
	out.AdminUIDs = cloneSet(g.AdminUIDs)
	return &out
}

func cloneSet(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
