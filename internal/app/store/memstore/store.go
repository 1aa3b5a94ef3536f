// Package memstore is an in-memory docstore.Store.
//
// Transactions are serialized and staged copy-on-write, so a failed
// callback leaves nothing behind. It backs the test suites and the "memory"
// store backend, and can inject store faults for exercising the query layer.
package memstore

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Store is an in-memory implementation of docstore.Store.
type Store struct {
	txMu sync.Mutex // serializes transactions

	mu      sync.Mutex
	groups  map[string]*models.Group
	logs    map[string][]models.LogEntry // append order per group
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	log     *zap.Logger

	subs    map[uint64]*subscription
	nextSub uint64

	fetches     int
	fetchFaults []docstore.Code
	watchFaults []docstore.Code
	refusals    []docstore.Code
}

var _ docstore.Store = (*Store)(nil)

// New creates an empty store. A nil logger is replaced with a no-op one.
func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		groups:  make(map[string]*models.Group),
		logs:    make(map[string][]models.LogEntry),
		now:     func() time.Time { return time.Now().UTC() },
		entropy: ulid.Monotonic(rand.Reader, 0),
		log:     log,
		subs:    make(map[uint64]*subscription),
	}
}

// SetClock replaces the server clock used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// GroupDoc implements docstore.Store.
func (s *Store) GroupDoc(gid string) docstore.Source[*models.Group] {
	return source[*models.Group]{
		s:     s,
		name:  "groups/" + gid,
		match: func(changed string) bool { return changed == gid },
		load: func() (*models.Group, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.groups[gid].Clone(), nil
		},
	}
}

// RecentLog implements docstore.Store.
func (s *Store) RecentLog(gid string, limit int) docstore.Source[[]models.LogEntry] {
	return source[[]models.LogEntry]{
		s:     s,
		name:  "groups/" + gid + "/log",
		match: func(changed string) bool { return changed == gid },
		load: func() ([]models.LogEntry, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.recentLocked(gid, limit), nil
		},
	}
}

// GroupsFor implements docstore.Store.
func (s *Store) GroupsFor(uid string) docstore.Source[[]*models.Group] {
	return source[[]*models.Group]{
		s:     s,
		name:  "groups?member=" + uid,
		match: func(string) bool { return true },
		load: func() ([]*models.Group, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			var out []*models.Group
			for _, g := range s.groups {
				if g.ParticipantUIDs[uid] {
					out = append(out, g.Clone())
				}
			}
			sort.Slice(out, func(i, j int) bool {
				a, b := text.Fold(out[i].Name), text.Fold(out[j].Name)
				if a != b {
					return a < b
				}
				return out[i].ID < out[j].ID
			})
			return out, nil
		},
	}
}

func (s *Store) recentLocked(gid string, limit int) []models.LogEntry {
	entries := s.logs[gid]
	out := make([]models.LogEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, models.CloneLogEntry(entries[i]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Meta().CompletedAt.After(out[j].Meta().CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FetchCount reports how many one-shot Fetch calls the store has served.
func (s *Store) FetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// FailFetches makes the next n Fetch calls fail with code.
func (s *Store) FailFetches(code docstore.Code, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.fetchFaults = append(s.fetchFaults, code)
	}
}

// FailWatches makes the next n subscriptions report code instead of their
// first delivery.
func (s *Store) FailWatches(code docstore.Code, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.watchFaults = append(s.watchFaults, code)
	}
}

// RefuseWatches makes the next n Subscribe calls fail at once with code,
// the way a MongoDB server refuses to open a change stream.
func (s *Store) RefuseWatches(code docstore.Code, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.refusals = append(s.refusals, code)
	}
}

// Break terminates every open subscription with code.
func (s *Store) Break(code docstore.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		sub.failWith(docstore.NewError(code, "watch", nil))
	}
}

// SubscriberCount reports how many subscriptions are open.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) nextULID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// Peek returns a copy of the stored aggregate without counting as a fetch.
func (s *Store) Peek(gid string) *models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[gid].Clone()
}

// PeekLog returns the whole history of gid, newest first, without counting
// as a fetch.
func (s *Store) PeekLog(gid string) []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentLocked(gid, 0)
}
