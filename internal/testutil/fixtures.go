package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/whoseturn/internal/app/commands"
	"github.com/dalemusser/whoseturn/internal/app/store/memstore"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"go.uber.org/zap"
)

// TestContext returns a context bounded for a single test.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// Alice, Bob, Carol and Dave are stable test identities.
func Alice() models.Actor { return models.Actor{UID: "uid-alice", DisplayName: "Alice"} }
func Bob() models.Actor   { return models.Actor{UID: "uid-bob", DisplayName: "Bob"} }
func Carol() models.Actor { return models.Actor{UID: "uid-carol", DisplayName: "Carol"} }
func Dave() models.Actor  { return models.Actor{UID: "uid-dave", DisplayName: "Dave"} }

// Fixtures provides an in-memory store and a command service over it.
type Fixtures struct {
	t        *testing.T
	Store    *memstore.Store
	Commands *commands.Service
}

// NewFixtures creates a fresh in-memory store for one test.
func NewFixtures(t *testing.T) *Fixtures {
	t.Helper()
	store := memstore.New(zap.NewNop())
	return &Fixtures{
		t:        t,
		Store:    store,
		Commands: commands.New(store, nil, zap.NewNop()),
	}
}

// CreateGroup creates a group owned by creator and joins every member in
// order. Returns the stored aggregate.
func (f *Fixtures) CreateGroup(ctx context.Context, name string, creator models.Actor, members ...models.Actor) *models.Group {
	f.t.Helper()
	g, err := f.Commands.CreateGroup(ctx, creator, commands.CreateGroupInput{Name: name})
	if err != nil {
		f.t.Fatalf("CreateGroup failed: %v", err)
	}
	for _, m := range members {
		if err := f.Commands.JoinGroup(ctx, g.ID, m); err != nil {
			f.t.Fatalf("JoinGroup(%s) failed: %v", m.UID, err)
		}
	}
	return f.Group(g.ID)
}

// Group returns the stored aggregate, failing the test if it is missing.
func (f *Fixtures) Group(gid string) *models.Group {
	f.t.Helper()
	g := f.Store.Peek(gid)
	if g == nil {
		f.t.Fatalf("group %s not found", gid)
	}
	return g
}

// Slot returns the participant linked to actor in gid.
func (f *Fixtures) Slot(gid string, actor models.Actor) models.Participant {
	f.t.Helper()
	g := f.Group(gid)
	p, ok := g.ParticipantByUID(actor.UID)
	if !ok {
		f.t.Fatalf("%s has no slot in %s", actor.UID, gid)
	}
	return p
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
