// internal/domain/models/participant.go
package models

// Role is a participant's authority within a single group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Participant is one roster slot.
//
// ID identifies the slot and survives re-assignment; UID links the slot to an
// account and is nil for an unclaimed placeholder.
type Participant struct {
	ID        string  `bson:"id" json:"id"`
	UID       *string `bson:"uid" json:"uid"`
	Nickname  string  `bson:"nickname,omitempty" json:"nickname,omitempty"`
	Role      Role    `bson:"role" json:"role"`
	TurnCount int     `bson:"turn_count" json:"turnCount"`
}

// IsPlaceholder reports whether no account has claimed the slot yet.
func (p Participant) IsPlaceholder() bool {
	return p.UID == nil
}

// UIDValue returns the linked uid, or "" for a placeholder.
func (p Participant) UIDValue() string {
	if p.UID == nil {
		return ""
	}
	return *p.UID
}

// HasUID reports whether the slot is linked to uid.
func (p Participant) HasUID(uid string) bool {
	return p.UID != nil && uid != "" && *p.UID == uid
}

// DisplayName is the nickname, falling back to a generic label.
func (p Participant) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return "Unnamed"
}

// StrPtr returns a pointer to a copy of s. Handy for building Participant.UID.
func StrPtr(s string) *string {
	return &s
}
