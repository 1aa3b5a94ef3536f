package grouppolicy_test

import (
	"testing"

	"github.com/dalemusser/whoseturn/internal/app/policy/grouppolicy"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
)

var (
	alice = models.Actor{UID: "ua", DisplayName: "Alice Live"}
	bob   = models.Actor{UID: "ub", DisplayName: "Bob"}
	carol = models.Actor{UID: "uc", DisplayName: "Carol"}
	dave  = models.Actor{UID: "ud", DisplayName: "Dave"}
)

// group is Alice (admin), Bob and Carol (members) and an unclaimed slot,
// queued bob, alice, carol, kid.
func group() *models.Group {
	g := &models.Group{
		ID: "g1",
		Participants: []models.Participant{
			{ID: "pa", UID: models.StrPtr("ua"), Nickname: "Alice", Role: models.RoleAdmin},
			{ID: "pb", UID: models.StrPtr("ub"), Nickname: "Bob", Role: models.RoleMember},
			{ID: "pc", UID: models.StrPtr("uc"), Role: models.RoleMember},
			{ID: "pk", Nickname: "Kid", Role: models.RoleMember},
		},
		TurnOrder: []string{"pb", "pa", "pc", "pk"},
	}
	roster.Apply(g)
	return g
}

func completed(id, actorUID, pid string) *models.TurnCompleted {
	return &models.TurnCompleted{
		LogMeta: models.LogMeta{
			ID:              id,
			GroupID:         "g1",
			ActorUID:        actorUID,
			ParticipantUIDs: map[string]bool{"ua": true, "ub": true, "uc": true},
			AdminUIDs:       map[string]bool{"ua": true},
		},
		Subject: models.Subject{ParticipantID: pid},
	}
}

func TestDerive_Flags(t *testing.T) {
	g := group()
	tests := []struct {
		name      string
		actor     models.Actor
		wantPID   string
		admin     bool
		turn      bool
		lastAdmin bool
	}{
		{"admin not up", alice, "pa", true, false, true},
		{"member up next", bob, "pb", false, true, false},
		{"member waiting", carol, "pc", false, false, false},
		{"outsider", dave, "", false, false, false},
		{"no uid", models.Actor{}, "", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := grouppolicy.Derive(g, tt.actor, nil)
			gotPID := ""
			if v.CurrentUserParticipant != nil {
				gotPID = v.CurrentUserParticipant.ID
			}
			if gotPID != tt.wantPID {
				t.Errorf("CurrentUserParticipant: got %q, want %q", gotPID, tt.wantPID)
			}
			if v.IsAdmin != tt.admin {
				t.Errorf("IsAdmin: got %v, want %v", v.IsAdmin, tt.admin)
			}
			if v.IsUserTurn != tt.turn {
				t.Errorf("IsUserTurn: got %v, want %v", v.IsUserTurn, tt.turn)
			}
			if v.IsLastAdmin != tt.lastAdmin {
				t.Errorf("IsLastAdmin: got %v, want %v", v.IsLastAdmin, tt.lastAdmin)
			}
		})
	}
}

func TestDerive_LastAdminCountsAllAdmins(t *testing.T) {
	g := group()
	g.Participants[1].Role = models.RoleAdmin
	roster.Apply(g)
	if v := grouppolicy.Derive(g, alice, nil); v.IsLastAdmin {
		t.Error("IsLastAdmin should be false with two admins")
	}
}

func TestDerive_NilGroup(t *testing.T) {
	v := grouppolicy.Derive(nil, alice, nil)
	if v.Group != nil || v.CurrentUserParticipant != nil || v.UndoableAction != nil {
		t.Errorf("expected zero view, got %+v", v)
	}
}

func TestOrdered(t *testing.T) {
	g := group()
	g.TurnOrder = append(g.TurnOrder, "ghost")

	got := grouppolicy.Ordered(g, alice)
	wantIDs := []string{"pb", "pa", "pc", "pk"}
	if len(got) != len(wantIDs) {
		t.Fatalf("length: got %d, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
	if got[1].Nickname != "Alice Live" {
		t.Errorf("actor nickname: got %q, want live display name", got[1].Nickname)
	}
	if got[0].Nickname != "Bob" {
		t.Errorf("other nickname: got %q, want stored nickname", got[0].Nickname)
	}
	if g.Participants[0].Nickname != "Alice" {
		t.Error("Ordered mutated the aggregate")
	}
}

func TestCanUndo(t *testing.T) {
	g := group()
	e := completed("e1", "ub", "pc") // bob recorded carol's turn

	tests := []struct {
		name  string
		actor models.Actor
		want  bool
	}{
		{"admin", alice, true},
		{"recorder", bob, true},
		{"subject", carol, true},
		{"outsider", dave, false},
		{"no uid", models.Actor{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := grouppolicy.CanUndo(g, tt.actor, e); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanUndo_UsesAdminSnapshot(t *testing.T) {
	g := group()
	e := completed("e1", "ub", "pb")
	// Carol is promoted after the entry was written.
	g.Participants[2].Role = models.RoleAdmin
	roster.Apply(g)
	if grouppolicy.CanUndo(g, carol, e) {
		t.Error("admin rights should come from the entry snapshot")
	}
}

func TestUndoable_Window(t *testing.T) {
	g := group()
	skip := &models.TurnSkipped{LogMeta: models.LogMeta{ID: "s1"}}
	undone := completed("u1", "ub", "pb")
	undone.IsUndone = true

	tests := []struct {
		name  string
		actor models.Actor
		log   []models.LogEntry
		want  string
	}{
		{
			name:  "newest permitted wins",
			actor: alice,
			log:   []models.LogEntry{completed("e3", "ub", "pb"), completed("e2", "ub", "pb")},
			want:  "e3",
		},
		{
			name:  "skips entries the actor may not undo",
			actor: carol,
			log:   []models.LogEntry{completed("e3", "ub", "pb"), completed("e2", "ub", "pc")},
			want:  "e2",
		},
		{
			name:  "third eligible completion is included",
			actor: carol,
			log: []models.LogEntry{
				completed("e4", "ub", "pb"),
				completed("e3", "ub", "pb"),
				completed("e2", "ub", "pc"),
			},
			want: "e2",
		},
		{
			name:  "fourth eligible completion is never exposed",
			actor: carol,
			log: []models.LogEntry{
				completed("e5", "ub", "pb"),
				completed("e4", "ub", "pb"),
				completed("e3", "ub", "pb"),
				completed("e2", "ub", "pc"),
			},
			want: "",
		},
		{
			name:  "undone and other entries do not use up the window",
			actor: carol,
			log: []models.LogEntry{
				skip,
				undone,
				&models.CountsReset{},
				completed("e4", "ub", "pb"),
				completed("e3", "ub", "pb"),
				completed("e2", "ub", "pc"),
			},
			want: "e2",
		},
		{
			name:  "all undone",
			actor: alice,
			log:   []models.LogEntry{undone, skip},
			want:  "",
		},
		{
			name:  "outsider",
			actor: dave,
			log:   []models.LogEntry{completed("e1", "ub", "pb")},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := grouppolicy.Undoable(g, tt.actor, tt.log)
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.want {
				t.Errorf("got %q, want %q", gotID, tt.want)
			}
		})
	}
}

func TestAccessChecks(t *testing.T) {
	g := group()
	if !grouppolicy.IsMember(g, carol) || grouppolicy.IsMember(g, dave) {
		t.Error("IsMember wrong")
	}
	if !grouppolicy.CanManage(g, alice) || grouppolicy.CanManage(g, bob) {
		t.Error("CanManage wrong")
	}
	if !grouppolicy.CanRename(g, alice, "pb") {
		t.Error("admin should rename anyone")
	}
	if !grouppolicy.CanRename(g, bob, "pb") || grouppolicy.CanRename(g, bob, "pc") {
		t.Error("member should rename only themselves")
	}
	if grouppolicy.CanRename(nil, alice, "pa") {
		t.Error("nil group should deny")
	}

	e := completed("e1", "ub", "pb")
	if !grouppolicy.CanReadEntry(e, carol) || grouppolicy.CanReadEntry(e, dave) {
		t.Error("CanReadEntry wrong")
	}
}
