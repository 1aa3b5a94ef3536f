package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
)

// RunTx implements docstore.Store. Transactions run one at a time; staged
// writes are applied only when fn returns nil.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return docstore.NewError(docstore.CodeCanceled, "tx", err)
	}

	t := &tx{
		s:           s,
		groups:      make(map[string]*models.Group),
		deletedLogs: make(map[string]bool),
		undone:      make(map[string]bool),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	changed := t.commit()
	s.notify(changed)
	return nil
}

type tx struct {
	s           *Store
	groups      map[string]*models.Group // staged; nil value means deleted
	deletedLogs map[string]bool
	appended    []models.LogEntry
	undone      map[string]bool // gid + "/" + entry id
}

func (t *tx) current(gid string) *models.Group {
	if g, ok := t.groups[gid]; ok {
		return g
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.groups[gid]
}

func (t *tx) Group(ctx context.Context, gid string) (*models.Group, error) {
	g := t.current(gid)
	if g == nil {
		return nil, docstore.NewError(docstore.CodeNotFound, "get group "+gid, nil)
	}
	return g.Clone(), nil
}

func (t *tx) PutGroup(ctx context.Context, g *models.Group) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("put group: %w", turnerr.ErrInvalidInput)
	}
	if err := roster.Check(g); err != nil {
		return fmt.Errorf("put group %s: %w: %v", g.ID, turnerr.ErrInvalidInput, err)
	}
	cur := t.current(g.ID)
	switch {
	case g.Revision == 0 && cur != nil:
		return docstore.NewError(docstore.CodeConflict, "create group "+g.ID, fmt.Errorf("already exists"))
	case g.Revision != 0 && cur == nil:
		return docstore.NewError(docstore.CodeNotFound, "put group "+g.ID, nil)
	case g.Revision != 0 && cur.Revision != g.Revision:
		return docstore.NewError(docstore.CodeConflict, "put group "+g.ID,
			fmt.Errorf("revision %d, stored %d", g.Revision, cur.Revision))
	}

	next := g.Clone()
	next.Revision = g.Revision + 1
	now := t.s.clock()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	next.NameCI = text.Fold(next.Name)
	t.groups[g.ID] = next
	return nil
}

func (t *tx) DeleteGroup(ctx context.Context, gid string) error {
	if t.current(gid) == nil {
		return docstore.NewError(docstore.CodeNotFound, "delete group "+gid, nil)
	}
	t.groups[gid] = nil
	t.deletedLogs[gid] = true
	kept := t.appended[:0]
	for _, e := range t.appended {
		if e.Meta().GroupID != gid {
			kept = append(kept, e)
		}
	}
	t.appended = kept
	return nil
}

func (t *tx) LogEntry(ctx context.Context, gid, id string) (models.LogEntry, error) {
	var found models.LogEntry
	for _, e := range t.appended {
		if e.Meta().GroupID == gid && e.Meta().ID == id {
			found = models.CloneLogEntry(e)
		}
	}
	if found == nil && !t.deletedLogs[gid] {
		t.s.mu.Lock()
		for _, e := range t.s.logs[gid] {
			if e.Meta().ID == id {
				found = models.CloneLogEntry(e)
				break
			}
		}
		t.s.mu.Unlock()
	}
	if found == nil {
		return nil, docstore.NewError(docstore.CodeNotFound, "get log entry "+id, nil)
	}
	if tc, ok := found.(*models.TurnCompleted); ok && t.undone[gid+"/"+id] {
		tc.IsUndone = true
	}
	return found, nil
}

func (t *tx) AppendLog(ctx context.Context, e models.LogEntry) (string, error) {
	m := e.Meta()
	if m.GroupID == "" {
		return "", fmt.Errorf("append log: %w: missing group id", turnerr.ErrInvalidInput)
	}
	m.ID = t.s.idFor()
	m.CompletedAt = t.s.clock()
	t.appended = append(t.appended, models.CloneLogEntry(e))
	return m.ID, nil
}

func (t *tx) MarkUndone(ctx context.Context, gid, id string) error {
	e, err := t.LogEntry(ctx, gid, id)
	if err != nil {
		return err
	}
	if _, ok := e.(*models.TurnCompleted); !ok {
		return fmt.Errorf("mark undone %s: %w: entry is %s", id, turnerr.ErrInvalidInput, e.Type())
	}
	t.undone[gid+"/"+id] = true
	return nil
}

// commit applies the staged writes and returns the ids of touched groups.
func (t *tx) commit() []string {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for gid, g := range t.groups {
		if g == nil {
			delete(s.groups, gid)
		} else {
			s.groups[gid] = g
		}
		touched[gid] = true
	}
	for gid := range t.deletedLogs {
		delete(s.logs, gid)
		touched[gid] = true
	}
	for _, e := range t.appended {
		gid := e.Meta().GroupID
		s.logs[gid] = append(s.logs[gid], e)
		touched[gid] = true
	}
	for key := range t.undone {
		for gid, entries := range s.logs {
			for _, e := range entries {
				if tc, ok := e.(*models.TurnCompleted); ok && gid+"/"+tc.ID == key {
					tc.IsUndone = true
					touched[gid] = true
				}
			}
		}
	}

	out := make([]string, 0, len(touched))
	for gid := range touched {
		out = append(out, gid)
	}
	return out
}

func (s *Store) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

func (s *Store) idFor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextULID()
}
