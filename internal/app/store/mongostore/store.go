// Package mongostore is the MongoDB docstore.Store.
//
// Aggregates live in the groups collection and history in turn_log. RunTx
// runs inside a multi-document transaction with a revision guard on the
// aggregate, and Sources are backed by change streams, so both need a
// replica set.
package mongostore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	groupstore "github.com/dalemusser/whoseturn/internal/app/store/groups"
	"github.com/dalemusser/whoseturn/internal/app/store/turnlog"
	"github.com/dalemusser/whoseturn/internal/app/system/txn"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// MaxAttempts bounds how often RunTx re-runs a callback that lost a
// revision race.
const MaxAttempts = 3

// Store implements docstore.Store on MongoDB.
type Store struct {
	db     *mongo.Database
	groups *groupstore.Store
	turns  *turnlog.Store
	log    *zap.Logger

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ docstore.Store = (*Store)(nil)

// New creates a Store over db.
func New(db *mongo.Database, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:      db,
		groups:  groupstore.New(db),
		turns:   turnlog.New(db),
		log:     log,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Turns exposes the history store for paged queries.
func (s *Store) Turns() *turnlog.Store { return s.turns }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.db.Client().Ping(ctx, nil))
}

// RunTx implements docstore.Store.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err = txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
			return fn(ctx, &tx{s: s})
		})
		err = classify("tx", err)
		if docstore.CodeOf(err) != docstore.CodeConflict || ctx.Err() != nil {
			return err
		}
		s.log.Debug("transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func (s *Store) newID(at time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

type tx struct {
	s *Store
}

func (t *tx) Group(ctx context.Context, gid string) (*models.Group, error) {
	g, err := t.s.groups.Get(ctx, gid)
	if err != nil {
		return nil, classify("get group "+gid, err)
	}
	return g, nil
}

func (t *tx) PutGroup(ctx context.Context, g *models.Group) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("put group: %w", turnerr.ErrInvalidInput)
	}
	if err := roster.Check(g); err != nil {
		return fmt.Errorf("put group %s: %w: %v", g.ID, turnerr.ErrInvalidInput, err)
	}
	op := "put group " + g.ID
	if g.Revision == 0 {
		err := t.s.groups.Insert(ctx, g)
		if errors.Is(err, groupstore.ErrExists) {
			return docstore.NewError(docstore.CodeConflict, op, err)
		}
		return classify(op, err)
	}
	err := t.s.groups.Replace(ctx, g)
	if errors.Is(err, groupstore.ErrRevisionMismatch) {
		return docstore.NewError(docstore.CodeConflict, op, err)
	}
	return classify(op, err)
}

func (t *tx) DeleteGroup(ctx context.Context, gid string) error {
	op := "delete group " + gid
	n, err := t.s.groups.Delete(ctx, gid)
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return docstore.NewError(docstore.CodeNotFound, op, nil)
	}
	removed, err := t.s.turns.DeleteByGroup(ctx, gid)
	if err != nil {
		return classify(op, err)
	}
	t.s.log.Debug("group deleted", zap.String("gid", gid), zap.Int64("log_entries", removed))
	return nil
}

func (t *tx) LogEntry(ctx context.Context, gid, id string) (models.LogEntry, error) {
	e, err := t.s.turns.Get(ctx, gid, id)
	if err != nil {
		return nil, classify("get log entry "+id, err)
	}
	return e, nil
}

func (t *tx) AppendLog(ctx context.Context, e models.LogEntry) (string, error) {
	m := e.Meta()
	if m.GroupID == "" {
		return "", fmt.Errorf("append log: %w: missing group id", turnerr.ErrInvalidInput)
	}
	// BSON dates carry milliseconds.
	now := time.Now().UTC().Truncate(time.Millisecond)
	m.ID = t.s.newID(now)
	m.CompletedAt = now
	if err := t.s.turns.Append(ctx, e); err != nil {
		return "", classify("append log "+m.GroupID, err)
	}
	return m.ID, nil
}

func (t *tx) MarkUndone(ctx context.Context, gid, id string) error {
	e, err := t.LogEntry(ctx, gid, id)
	if err != nil {
		return err
	}
	tc, ok := e.(*models.TurnCompleted)
	if !ok {
		return fmt.Errorf("mark undone %s: %w: entry is %s", id, turnerr.ErrInvalidInput, e.Type())
	}
	if tc.IsUndone {
		return fmt.Errorf("mark undone %s: %w", id, turnerr.ErrAlreadyUndone)
	}
	matched, err := t.s.turns.MarkUndone(ctx, gid, id)
	if err != nil {
		return classify("mark undone "+id, err)
	}
	if !matched {
		return fmt.Errorf("mark undone %s: %w", id, turnerr.ErrAlreadyUndone)
	}
	return nil
}
