package mongostore_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dalemusser/whoseturn/internal/app/commands"
	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/store/mongostore"
	"github.com/dalemusser/whoseturn/internal/app/store/turnlog"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/dalemusser/whoseturn/internal/testutil"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*mongostore.Store, *commands.Service) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store := mongostore.New(db, zap.NewNop())
	return store, commands.New(store, nil, zap.NewNop())
}

func TestTurnLifecycle(t *testing.T) {
	store, cmds := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := cmds.CreateGroup(ctx, testutil.Alice(), commands.CreateGroupInput{Name: "Dishes"})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if err := cmds.JoinGroup(ctx, g.ID, testutil.Bob()); err != nil {
		t.Fatalf("JoinGroup failed: %v", err)
	}
	alice := g.Participants[0].ID

	entry, err := cmds.CompleteTurn(ctx, g.ID, testutil.Bob(), alice)
	if err != nil {
		t.Fatalf("CompleteTurn failed: %v", err)
	}
	stored, err := store.GroupDoc(g.ID).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if stored.TurnOrder[1] != alice || stored.Participants[0].TurnCount != 1 {
		t.Errorf("after complete: order %v, count %d", stored.TurnOrder, stored.Participants[0].TurnCount)
	}
	if stored.Revision != 3 {
		t.Errorf("revision: got %d, want 3", stored.Revision)
	}

	if _, err := cmds.UndoTurn(ctx, g.ID, testutil.Alice(), entry); err != nil {
		t.Fatalf("UndoTurn failed: %v", err)
	}
	if _, err := cmds.UndoTurn(ctx, g.ID, testutil.Alice(), entry); !errors.Is(err, turnerr.ErrAlreadyUndone) {
		t.Errorf("second undo: got %v, want ErrAlreadyUndone", err)
	}

	log, err := store.RecentLog(g.ID, 10).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch log failed: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("log: got %d entries, want 2", len(log))
	}
	if log[0].Type() != models.LogTurnUndone {
		t.Errorf("newest entry: got %s, want %s", log[0].Type(), models.LogTurnUndone)
	}
	if tc := log[1].(*models.TurnCompleted); !tc.IsUndone {
		t.Error("completion not flagged undone")
	}

	groups, err := store.GroupsFor(testutil.Bob().UID).Fetch(ctx)
	if err != nil || len(groups) != 1 {
		t.Errorf("GroupsFor: got %d groups, err %v", len(groups), err)
	}

	if err := cmds.DeleteGroup(ctx, g.ID, testutil.Alice()); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if got, err := store.GroupDoc(g.ID).Fetch(ctx); err != nil || got != nil {
		t.Errorf("after delete: got %v, %v", got, err)
	}
	if n, _ := store.Turns().CountByFilter(ctx, turnlog.QueryFilter{GroupID: g.ID}); n != 0 {
		t.Errorf("log entries after delete: %d", n)
	}
}

func TestPutGroup_RevisionConflict(t *testing.T) {
	store, cmds := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := cmds.CreateGroup(ctx, testutil.Alice(), commands.CreateGroupInput{Name: "Dishes"})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	stale := g.Clone()
	if _, err := cmds.ResetCounts(ctx, g.ID, testutil.Alice()); err != nil {
		t.Fatalf("ResetCounts failed: %v", err)
	}
	err = store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.PutGroup(ctx, stale)
	})
	if docstore.CodeOf(err) != docstore.CodeConflict {
		t.Errorf("stale write: got %v, want conflict", err)
	}
}

func TestGroup_NotFound(t *testing.T) {
	_, cmds := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := cmds.CompleteTurn(ctx, "missing", testutil.Alice(), "p"); !errors.Is(err, turnerr.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestGroupDoc_Subscribe(t *testing.T) {
	store, cmds := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, err := cmds.CreateGroup(ctx, testutil.Alice(), commands.CreateGroupInput{Name: "Dishes"})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	var mu sync.Mutex
	var names []string
	sub, err := store.GroupDoc(g.ID).Subscribe(ctx, func(g *models.Group) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, g.Name)
	}, func(err error) {
		t.Errorf("unexpected watch error: %v", err)
	})
	if err != nil {
		if strings.Contains(err.Error(), "replica set") {
			t.Skip("change streams need a replica set")
		}
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(names)
	}
	testutil.Eventually(t, func() bool { return count() == 1 }, "initial delivery")

	name := "Pots"
	if err := cmds.UpdateSettings(ctx, g.ID, testutil.Alice(), commands.UpdateSettingsInput{Name: &name}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	testutil.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) >= 2 && names[len(names)-1] == "Pots"
	}, "change delivered")
}
