package commands_test

import (
	"errors"
	"testing"

	"github.com/dalemusser/whoseturn/internal/app/commands"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/dalemusser/whoseturn/internal/testutil"
)

func TestCreateGroup(t *testing.T) {
	f := testutil.NewFixtures(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := f.Commands.CreateGroup(ctx, testutil.Alice(), commands.CreateGroupInput{
		Name:         "  Dishes ",
		Placeholders: []string{"Kid", " ", "Grandma"},
	})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	stored := f.Group(g.ID)
	if stored.Name != "Dishes" || stored.Icon != commands.DefaultIcon {
		t.Errorf("name/icon: got %q/%q", stored.Name, stored.Icon)
	}
	if stored.OwnerUID != testutil.Alice().UID {
		t.Errorf("OwnerUID: got %q", stored.OwnerUID)
	}
	if len(stored.Participants) != 3 {
		t.Fatalf("participants: got %d, want 3", len(stored.Participants))
	}
	creator := stored.Participants[0]
	if !creator.HasUID(testutil.Alice().UID) || creator.Role != models.RoleAdmin {
		t.Errorf("creator slot: got %+v", creator)
	}
	if stored.TurnOrder[0] != creator.ID {
		t.Errorf("creator should be first: %v", stored.TurnOrder)
	}
	for _, p := range stored.Participants[1:] {
		if !p.IsPlaceholder() || p.Role != models.RoleMember {
			t.Errorf("placeholder slot: got %+v", p)
		}
	}
	if len(stored.ParticipantUIDs) != 1 || !stored.AdminUIDs[testutil.Alice().UID] {
		t.Errorf("projection: participants=%v admins=%v", stored.ParticipantUIDs, stored.AdminUIDs)
	}
}

func TestCreateGroup_ReturnsStoredGroup(t *testing.T) {
	f := testutil.NewFixtures(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := f.Commands.CreateGroup(ctx, testutil.Alice(), commands.CreateGroupInput{Name: "Dishes"})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	stored := f.Group(g.ID)

	if g.Revision != stored.Revision {
		t.Errorf("Revision: got %d, want %d", g.Revision, stored.Revision)
	}
	if g.CreatedAt.IsZero() || !g.CreatedAt.Equal(stored.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", g.CreatedAt, stored.CreatedAt)
	}
	if !g.UpdatedAt.Equal(stored.UpdatedAt) {
		t.Errorf("UpdatedAt: got %v, want %v", g.UpdatedAt, stored.UpdatedAt)
	}
	if g.NameCI == "" || g.NameCI != stored.NameCI {
		t.Errorf("NameCI: got %q, want %q", g.NameCI, stored.NameCI)
	}

	// The returned revision is usable for an immediate settings update.
	name := "Laundry"
	if err := f.Commands.UpdateSettings(ctx, g.ID, testutil.Alice(), commands.UpdateSettingsInput{Name: &name}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if got := f.Group(g.ID).Revision; got != g.Revision+1 {
		t.Errorf("Revision after update: got %d, want %d", got, g.Revision+1)
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	f := testutil.NewFixtures(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		name  string
		actor models.Actor
		in    commands.CreateGroupInput
	}{
		{"blank name", testutil.Alice(), commands.CreateGroupInput{Name: " "}},
		{"no uid", models.Actor{}, commands.CreateGroupInput{Name: "x"}},
		{"long icon", testutil.Alice(), commands.CreateGroupInput{Name: "x", Icon: "abcdefghij"}},
		{"too many placeholders", testutil.Alice(), commands.CreateGroupInput{Name: "x", Placeholders: make([]string, commands.MaxParticipants)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.Commands.CreateGroup(ctx, tt.actor, tt.in); !errors.Is(err, turnerr.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestUpdateSettings(t *testing.T) {
	f := testutil.NewFixtures(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	g := f.CreateGroup(ctx, "Dishes", testutil.Alice())

	name, icon := "Pots", "🍳"
	if err := f.Commands.UpdateSettings(ctx, g.ID, testutil.Alice(), commands.UpdateSettingsInput{Name: &name, Icon: &icon}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	got := f.Group(g.ID)
	if got.Name != "Pots" || got.Icon != "🍳" {
		t.Errorf("got %q/%q", got.Name, got.Icon)
	}

	if err := f.Commands.UpdateSettings(ctx, g.ID, testutil.Alice(), commands.UpdateSettingsInput{}); err != nil {
		t.Fatalf("empty update failed: %v", err)
	}
	if f.Group(g.ID).Revision != got.Revision {
		t.Error("empty update should not write")
	}

	blank := ""
	err := f.Commands.UpdateSettings(ctx, g.ID, testutil.Alice(), commands.UpdateSettingsInput{Name: &blank})
	if !errors.Is(err, turnerr.ErrInvalidInput) {
		t.Errorf("blank name: got %v, want ErrInvalidInput", err)
	}
}

func TestDeleteGroup(t *testing.T) {
	f := testutil.NewFixtures(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	g := f.CreateGroup(ctx, "Dishes", testutil.Alice())
	if _, err := f.Commands.CompleteTurn(ctx, g.ID, testutil.Alice(), f.Slot(g.ID, testutil.Alice()).ID); err != nil {
		t.Fatalf("CompleteTurn failed: %v", err)
	}

	if err := f.Commands.DeleteGroup(ctx, g.ID, testutil.Alice()); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if f.Store.Peek(g.ID) != nil {
		t.Error("group still stored")
	}
	if n := len(f.Store.PeekLog(g.ID)); n != 0 {
		t.Errorf("log entries left: %d", n)
	}
	if err := f.Commands.DeleteGroup(ctx, g.ID, testutil.Alice()); !errors.Is(err, turnerr.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}
