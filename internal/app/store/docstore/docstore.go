// Package docstore is the contract between the turn engine and the document
// database holding group aggregates and their history.
//
// A Store offers a transaction over one aggregate plus its log, and Sources
// that can either be watched (push) or fetched once (pull) with the same
// query. Both the MongoDB and the in-memory backends implement it.
package docstore

import (
	"context"

	"github.com/dalemusser/whoseturn/internal/domain/models"
)

// Tx is the transactional view handed to a RunTx callback. Reads see a
// consistent snapshot; writes become visible only if the callback returns nil.
type Tx interface {
	// Group returns a copy of the aggregate, or an error with CodeNotFound.
	Group(ctx context.Context, gid string) (*models.Group, error)
	// PutGroup creates the aggregate when g.Revision is 0 and otherwise
	// replaces it, failing with CodeConflict if the stored revision moved.
	PutGroup(ctx context.Context, g *models.Group) error
	// DeleteGroup removes the aggregate and its whole log.
	DeleteGroup(ctx context.Context, gid string) error

	// LogEntry returns one history entry, or an error with CodeNotFound.
	LogEntry(ctx context.Context, gid, id string) (models.LogEntry, error)
	// AppendLog stores e, assigning its ID and CompletedAt, and returns the ID.
	AppendLog(ctx context.Context, e models.LogEntry) (string, error)
	// MarkUndone sets IsUndone on a TurnCompleted entry.
	MarkUndone(ctx context.Context, gid, id string) error
}

// Subscription is a live watch. Unsubscribe never blocks; at most one
// callback already in flight may still run after it returns.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// Source is one query that can be watched or fetched.
//
// Subscribe delivers the current result first and again after every change,
// serially from a single goroutine. onErr is terminal: once it fires the
// subscription delivers nothing more.
type Source[T any] interface {
	Name() string
	Subscribe(ctx context.Context, onNext func(T), onErr func(error)) (Subscription, error)
	Fetch(ctx context.Context) (T, error)
}

// Store is a backend for aggregates and their history.
type Store interface {
	// RunTx runs fn atomically. Backends may call fn more than once when a
	// concurrent writer forces a retry, so fn must derive everything from
	// what it reads through tx.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GroupDoc watches one aggregate. A missing group is delivered as nil.
	GroupDoc(gid string) Source[*models.Group]
	// RecentLog watches the newest limit history entries, newest first.
	RecentLog(gid string, limit int) Source[[]models.LogEntry]
	// GroupsFor watches every group uid belongs to.
	GroupsFor(uid string) Source[[]*models.Group]
}
