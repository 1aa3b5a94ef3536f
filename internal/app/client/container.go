// Package client holds the working copy of one group for a connected
// viewer: the aggregate and its recent history, kept current through the
// query layer, plus the derived view for the viewer.
package client

import (
	"context"
	"sync"

	"github.com/dalemusser/whoseturn/internal/app/policy/grouppolicy"
	"github.com/dalemusser/whoseturn/internal/app/query"
	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultLogWindow is the history length loaded when none is configured.
const DefaultLogWindow = 20

// State is a snapshot of the container.
type State struct {
	GroupID string
	Group   *models.Group     // nil until delivered, or when the group is gone
	Log     []models.LogEntry // newest first
	Loading bool
	// Speculative is set while a local change awaits its command.
	Speculative bool
}

func initialState() State {
	return State{Loading: true}
}

// Container is safe for concurrent use.
type Container struct {
	store     docstore.Store
	breaker   *query.Breaker
	log       *zap.Logger
	logWindow int

	notifyMu sync.Mutex
	onChange func(State)

	mu         sync.Mutex
	ctx        context.Context
	gen        uint64 // bumped by Load and Cleanup; stale callbacks compare against it
	version    uint64 // bumped by every state change
	subs       []docstore.Subscription
	removeMode func()
	state      State
	groupSeen  bool
	logSeen    bool
}

// New creates an empty container. logWindow <= 0 uses DefaultLogWindow.
func New(store docstore.Store, breaker *query.Breaker, logWindow int, log *zap.Logger) *Container {
	if log == nil {
		log = zap.NewNop()
	}
	if logWindow <= 0 {
		logWindow = DefaultLogWindow
	}
	return &Container{
		store:     store,
		breaker:   breaker,
		log:       log,
		logWindow: logWindow,
		state:     initialState(),
	}
}

// OnChange sets the observer called after every state change. Calls are
// serialized and always carry the latest state. fn must not call Load,
// Cleanup or Speculate on the same container.
func (c *Container) OnChange(fn func(State)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.onChange = fn
}

// State returns the current snapshot.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// View derives the view model of the current state for actor.
func (c *Container) View(actor models.Actor) grouppolicy.View {
	s := c.State()
	return grouppolicy.Derive(s.Group, actor, s.Log)
}

// Load switches the container to gid: prior subscriptions are released and
// new ones are opened for the aggregate and its history. ctx bounds the
// subscriptions, including those re-opened after a reconnect.
func (c *Container) Load(ctx context.Context, gid string) error {
	c.mu.Lock()
	c.releaseLocked()
	c.gen++
	c.version++
	gen := c.gen
	c.ctx = ctx
	c.state = initialState()
	c.state.GroupID = gid
	c.groupSeen, c.logSeen = false, false
	if c.removeMode == nil {
		c.removeMode = c.breaker.Mode().OnChange(c.modeChanged)
	}
	c.mu.Unlock()
	c.notify()

	groupSub, err := query.Subscribe(ctx, c.breaker, c.store.GroupDoc(gid), func(g *models.Group) {
		c.update(gen, func(s *State) {
			s.Group = g
			c.groupSeen = true
		})
	})
	if err != nil {
		return err
	}
	logSub, err := query.Subscribe(ctx, c.breaker, c.store.RecentLog(gid, c.logWindow), func(entries []models.LogEntry) {
		c.update(gen, func(s *State) {
			s.Log = entries
			c.logSeen = true
		})
	})
	if err != nil {
		groupSub.Unsubscribe()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// Superseded while subscribing.
		groupSub.Unsubscribe()
		logSub.Unsubscribe()
		return nil
	}
	c.subs = append(c.subs, groupSub, logSub)
	c.log.Debug("container loaded", zap.String("gid", gid))
	return nil
}

// Cleanup releases every subscription and returns to the initial state.
func (c *Container) Cleanup() {
	c.mu.Lock()
	c.releaseLocked()
	if c.removeMode != nil {
		c.removeMode()
		c.removeMode = nil
	}
	c.gen++
	c.version++
	c.ctx = nil
	c.state = initialState()
	c.groupSeen, c.logSeen = false, false
	c.mu.Unlock()
	c.notify()
}

// Speculate applies apply to a copy of the aggregate and shows it at once,
// then runs commit. If commit fails and nothing newer has arrived in the
// meantime, the prior state is restored. On success the committed result
// arrives through the subscriptions.
func (c *Container) Speculate(ctx context.Context, apply func(g *models.Group), commit func(ctx context.Context) error) error {
	c.mu.Lock()
	prior := c.state
	var spec uint64
	if prior.Group != nil {
		g := prior.Group.Clone()
		apply(g)
		c.state.Group = g
		c.state.Speculative = true
		c.version++
		spec = c.version
	}
	c.mu.Unlock()
	if spec != 0 {
		c.notify()
	}

	err := commit(ctx)

	if spec == 0 {
		return err
	}
	c.mu.Lock()
	restored := false
	if c.version == spec {
		if err != nil {
			c.state = prior
			restored = true
		} else {
			c.state.Speculative = false
		}
		c.version++
	}
	c.mu.Unlock()
	if restored {
		c.log.Debug("speculative change rolled back", zap.String("gid", prior.GroupID), zap.Error(err))
	}
	c.notify()
	return err
}

func (c *Container) update(gen uint64, fn func(s *State)) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	fn(&c.state)
	c.state.Speculative = false
	c.state.Loading = !(c.groupSeen && c.logSeen)
	c.version++
	c.mu.Unlock()
	c.notify()
}

// modeChanged re-opens the subscriptions once push delivery is back.
func (c *Container) modeChanged(from, to query.Mode) {
	if from != query.ModeDegraded || to != query.ModeLive {
		return
	}
	c.mu.Lock()
	ctx, gid := c.ctx, c.state.GroupID
	c.mu.Unlock()
	if ctx == nil || gid == "" || ctx.Err() != nil {
		return
	}
	c.log.Info("reloading after reconnect", zap.String("gid", gid))
	if err := c.Load(ctx, gid); err != nil {
		c.log.Warn("reload after reconnect failed", zap.String("gid", gid), zap.Error(err))
	}
}

func (c *Container) releaseLocked() {
	for _, s := range c.subs {
		s.Unsubscribe()
	}
	c.subs = nil
}

func (c *Container) snapshotLocked() State {
	s := c.state
	s.Log = append([]models.LogEntry(nil), c.state.Log...)
	return s
}

func (c *Container) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if c.onChange == nil {
		return
	}
	c.onChange(c.State())
}
