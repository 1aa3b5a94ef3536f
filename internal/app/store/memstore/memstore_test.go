package memstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/store/memstore"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/dalemusser/whoseturn/internal/testutil"
	"go.uber.org/zap"
)

func newGroup(gid string) *models.Group {
	g := &models.Group{
		ID:   gid,
		Name: "Group " + gid,
		Participants: []models.Participant{
			{ID: "p1", UID: models.StrPtr("u1"), Role: models.RoleAdmin},
			{ID: "p2", Role: models.RoleMember},
		},
		TurnOrder: []string{"p1", "p2"},
	}
	roster.Apply(g)
	return g
}

func put(t *testing.T, s *memstore.Store, g *models.Group) {
	t.Helper()
	err := s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		return tx.PutGroup(ctx, g)
	})
	if err != nil {
		t.Fatalf("PutGroup failed: %v", err)
	}
}

func TestRunTx_RollsBackOnError(t *testing.T) {
	s := memstore.New(zap.NewNop())
	put(t, s, newGroup("g1"))
	boom := errors.New("boom")

	err := s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		g, err := tx.Group(ctx, "g1")
		if err != nil {
			return err
		}
		g.Name = "changed"
		if err := tx.PutGroup(ctx, g); err != nil {
			return err
		}
		if _, err := tx.AppendLog(ctx, &models.CountsReset{LogMeta: models.LogMeta{GroupID: "g1"}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if got := s.Peek("g1"); got.Name != "Group g1" || got.Revision != 1 {
		t.Errorf("group changed after rollback: %+v", got)
	}
	if n := len(s.PeekLog("g1")); n != 0 {
		t.Errorf("log entries after rollback: %d", n)
	}
}

func TestPutGroup_Revisions(t *testing.T) {
	s := memstore.New(zap.NewNop())
	put(t, s, newGroup("g1"))

	tests := []struct {
		name     string
		revision int64
		gid      string
		want     docstore.Code
	}{
		{"create over existing", 0, "g1", docstore.CodeConflict},
		{"stale revision", 7, "g1", docstore.CodeConflict},
		{"replace missing", 1, "g2", docstore.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGroup(tt.gid)
			g.Revision = tt.revision
			err := s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
				return tx.PutGroup(ctx, g)
			})
			if got := docstore.CodeOf(err); got != tt.want {
				t.Errorf("code: got %q, want %q (err %v)", got, tt.want, err)
			}
		})
	}

	g := s.Peek("g1")
	put(t, s, g)
	if got := s.Peek("g1").Revision; got != 2 {
		t.Errorf("revision after replace: got %d, want 2", got)
	}
}

func TestPutGroup_RejectsBrokenRoster(t *testing.T) {
	s := memstore.New(zap.NewNop())
	g := newGroup("g1")
	g.TurnOrder = []string{"p1"}

	err := s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		return tx.PutGroup(ctx, g)
	})
	if !errors.Is(err, turnerr.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
	if s.Peek("g1") != nil {
		t.Error("broken group was stored")
	}
}

func TestLog_NewestFirstWithLimit(t *testing.T) {
	s := memstore.New(zap.NewNop())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	put(t, s, newGroup("g1"))

	var ids []string
	for i := 0; i < 4; i++ {
		err := s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
			id, err := tx.AppendLog(ctx, &models.TurnSkipped{LogMeta: models.LogMeta{GroupID: "g1"}})
			ids = append(ids, id)
			return err
		})
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	got, err := s.RecentLog("g1", 3).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries: got %d, want 3", len(got))
	}
	for i, want := range []string{ids[3], ids[2], ids[1]} {
		if got[i].Meta().ID != want {
			t.Errorf("entry %d: got %s, want %s", i, got[i].Meta().ID, want)
		}
	}
}

func TestMarkUndone(t *testing.T) {
	s := memstore.New(zap.NewNop())
	put(t, s, newGroup("g1"))

	var completed, skipped string
	err := s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		var err error
		if completed, err = tx.AppendLog(ctx, &models.TurnCompleted{LogMeta: models.LogMeta{GroupID: "g1"}}); err != nil {
			return err
		}
		skipped, err = tx.AppendLog(ctx, &models.TurnSkipped{LogMeta: models.LogMeta{GroupID: "g1"}})
		return err
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	err = s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.MarkUndone(ctx, "g1", completed); err != nil {
			return err
		}
		e, err := tx.LogEntry(ctx, "g1", completed)
		if err != nil {
			return err
		}
		if !e.(*models.TurnCompleted).IsUndone {
			t.Error("flag not visible inside the transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("MarkUndone failed: %v", err)
	}

	for _, e := range s.PeekLog("g1") {
		if tc, ok := e.(*models.TurnCompleted); ok && !tc.IsUndone {
			t.Error("flag not committed")
		}
	}

	err = s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		return tx.MarkUndone(ctx, "g1", skipped)
	})
	if !errors.Is(err, turnerr.ErrInvalidInput) {
		t.Errorf("mark skip entry: got %v, want ErrInvalidInput", err)
	}
}

func TestDeleteGroup_RemovesLog(t *testing.T) {
	s := memstore.New(zap.NewNop())
	put(t, s, newGroup("g1"))
	err := s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		_, err := tx.AppendLog(ctx, &models.CountsReset{LogMeta: models.LogMeta{GroupID: "g1"}})
		return err
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	err = s.RunTx(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		return tx.DeleteGroup(ctx, "g1")
	})
	if err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if s.Peek("g1") != nil || len(s.PeekLog("g1")) != 0 {
		t.Error("group or log survived delete")
	}
}

// recorder collects deliveries from a subscription.
type recorder struct {
	mu     sync.Mutex
	groups []*models.Group
	errs   []error
}

func (r *recorder) next(g *models.Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, g)
}

func (r *recorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups), len(r.errs)
}

func (r *recorder) last() *models.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[len(r.groups)-1]
}

func TestSubscribe_InitialThenChanges(t *testing.T) {
	s := memstore.New(zap.NewNop())
	put(t, s, newGroup("g1"))
	ctx, cancel := testutil.TestContext()
	defer cancel()

	var r recorder
	sub, err := s.GroupDoc("g1").Subscribe(ctx, r.next, r.fail)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	testutil.Eventually(t, func() bool { n, _ := r.counts(); return n == 1 }, "initial delivery")

	g := s.Peek("g1")
	g.Name = "renamed"
	put(t, s, g)
	testutil.Eventually(t, func() bool { return r.last() != nil && r.last().Name == "renamed" }, "change delivery")

	sub.Unsubscribe()
	testutil.Eventually(t, func() bool { return s.SubscriberCount() == 0 }, "subscription dropped")
	if s.FetchCount() != 0 {
		t.Errorf("subscriptions should not count as fetches, got %d", s.FetchCount())
	}
}

func TestSubscribe_MissingGroupIsNil(t *testing.T) {
	s := memstore.New(zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	var r recorder
	sub, err := s.GroupDoc("missing").Subscribe(ctx, r.next, r.fail)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()
	testutil.Eventually(t, func() bool { n, _ := r.counts(); return n == 1 }, "initial delivery")
	if r.last() != nil {
		t.Errorf("got %+v, want nil", r.last())
	}
}

func TestSubscribe_FaultsAreTerminal(t *testing.T) {
	s := memstore.New(zap.NewNop())
	put(t, s, newGroup("g1"))
	ctx, cancel := testutil.TestContext()
	defer cancel()

	s.FailWatches(docstore.CodeResourceExhausted, 1)
	var r recorder
	if _, err := s.GroupDoc("g1").Subscribe(ctx, r.next, r.fail); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	testutil.Eventually(t, func() bool { _, e := r.counts(); return e == 1 }, "watch fault delivered")
	if n, _ := r.counts(); n != 0 {
		t.Errorf("deliveries before fault: got %d, want 0", n)
	}
	r.mu.Lock()
	if !docstore.IsResourceExhausted(r.errs[0]) {
		t.Errorf("error: got %v, want resource exhausted", r.errs[0])
	}
	r.mu.Unlock()

	var r2 recorder
	if _, err := s.GroupDoc("g1").Subscribe(ctx, r2.next, r2.fail); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	testutil.Eventually(t, func() bool { n, _ := r2.counts(); return n == 1 }, "initial delivery")
	s.Break(docstore.CodeUnavailable)
	testutil.Eventually(t, func() bool { _, e := r2.counts(); return e == 1 }, "break delivered")
	testutil.Eventually(t, func() bool { return s.SubscriberCount() == 0 }, "subscriptions dropped")

	g := s.Peek("g1")
	put(t, s, g)
	time.Sleep(20 * time.Millisecond)
	if n, _ := r2.counts(); n != 1 {
		t.Errorf("deliveries after terminal error: got %d, want 1", n)
	}
}

func TestFetch_Faults(t *testing.T) {
	s := memstore.New(zap.NewNop())
	put(t, s, newGroup("g1"))
	ctx, cancel := testutil.TestContext()
	defer cancel()

	s.FailFetches(docstore.CodeUnavailable, 1)
	if _, err := s.GroupDoc("g1").Fetch(ctx); !errors.Is(err, turnerr.ErrTransientStore) {
		t.Errorf("first fetch: got %v, want transient", err)
	}
	g, err := s.GroupDoc("g1").Fetch(ctx)
	if err != nil || g == nil || g.ID != "g1" {
		t.Errorf("second fetch: got %v, %v", g, err)
	}
	if s.FetchCount() != 2 {
		t.Errorf("FetchCount: got %d, want 2", s.FetchCount())
	}
}

func TestGroupsFor_SortedByName(t *testing.T) {
	s := memstore.New(zap.NewNop())
	for gid, name := range map[string]string{"a": "zebra", "b": "Apple", "c": "mango"} {
		g := newGroup(gid)
		g.Name = name
		put(t, s, g)
	}
	other := newGroup("d")
	other.Participants[0].UID = models.StrPtr("someone-else")
	roster.Apply(other)
	put(t, s, other)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	got, err := s.GroupsFor("u1").Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	var names []string
	for _, g := range got {
		names = append(names, g.Name)
	}
	want := []string{"Apple", "mango", "zebra"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("got %v, want %v", names, want)
			break
		}
	}
}
