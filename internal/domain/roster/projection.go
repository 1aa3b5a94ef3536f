// Package roster holds the pure roster and turn-queue operations shared by
// every command.
package roster

import "github.com/dalemusser/whoseturn/internal/domain/models"

// UIDMaps are the two presence maps derived from a roster.
type UIDMaps struct {
	ParticipantUIDs map[string]bool
	AdminUIDs       map[string]bool
}

// Project derives both presence maps from participants in one pass.
// Placeholders contribute nothing.
func Project(participants []models.Participant) UIDMaps {
	out := UIDMaps{
		ParticipantUIDs: make(map[string]bool, len(participants)),
		AdminUIDs:       make(map[string]bool),
	}
	for _, p := range participants {
		if p.UID == nil {
			continue
		}
		out.ParticipantUIDs[*p.UID] = true
		if p.Role == models.RoleAdmin {
			out.AdminUIDs[*p.UID] = true
		}
	}
	return out
}

// Apply writes the projection of g's roster onto g.
func Apply(g *models.Group) {
	m := Project(g.Participants)
	g.ParticipantUIDs = m.ParticipantUIDs
	g.AdminUIDs = m.AdminUIDs
}
