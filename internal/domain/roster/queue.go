package roster

import "github.com/dalemusser/whoseturn/internal/domain/models"

// Without returns order with every occurrence of id removed.
func Without(order []string, id string) []string {
	out := make([]string, 0, len(order))
	for _, o := range order {
		if o != id {
			out = append(out, o)
		}
	}
	return out
}

// MoveToTail puts id last, the round-robin rotation after a turn.
func MoveToTail(order []string, id string) []string {
	return append(Without(order, id), id)
}

// MoveToHead puts id first, making them next up.
func MoveToHead(order []string, id string) []string {
	out := make([]string, 0, len(order)+1)
	out = append(out, id)
	return append(out, Without(order, id)...)
}

// Index returns the position of the participant with id, or -1.
func Index(participants []models.Participant, id string) int {
	for i, p := range participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Remove returns participants without the slot id.
func Remove(participants []models.Participant, id string) []models.Participant {
	out := make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// AdminCount counts admin-role slots, placeholders included.
func AdminCount(participants []models.Participant) int {
	n := 0
	for _, p := range participants {
		if p.Role == models.RoleAdmin {
			n++
		}
	}
	return n
}
