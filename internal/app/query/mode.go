// Package query is the read side of the engine: every live query goes
// through a Breaker, which tracks a shared connection Mode and falls back to
// a single fetch when the store refuses a watch for lack of resources.
package query

import (
	"sync"

	"go.uber.org/zap"
)

// Mode is the process-wide connection state.
type Mode string

const (
	// ModeLive means push subscriptions are being delivered.
	ModeLive Mode = "live"
	// ModeDegraded means the store refused a watch with resource exhaustion
	// and readers are serving one-shot fetches.
	ModeDegraded Mode = "degraded"
)

// Listener observes a mode transition. It is called outside any lock, after
// the new mode is visible through ConnMode.Mode.
type Listener func(from, to Mode)

// ConnMode owns the connection mode. Create one at process start and pass it
// to every Breaker; it is not a package global.
type ConnMode struct {
	log *zap.Logger

	mu        sync.Mutex
	mode      Mode
	listeners map[uint64]Listener
	nextID    uint64
}

// NewConnMode starts in ModeLive.
func NewConnMode(log *zap.Logger) *ConnMode {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConnMode{
		log:       log,
		mode:      ModeLive,
		listeners: make(map[uint64]Listener),
	}
}

// Mode returns the current mode.
func (c *ConnMode) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetLive records a successful push delivery.
func (c *ConnMode) SetLive() {
	c.transition(ModeLive, "push delivery")
}

// SetDegraded records a watch refused for resource exhaustion.
func (c *ConnMode) SetDegraded() {
	c.transition(ModeDegraded, "resource exhausted")
}

// Reconnect is the external recovery signal. From degraded it moves to live
// and notifies listeners so they re-establish their subscriptions.
func (c *ConnMode) Reconnect() {
	c.transition(ModeLive, "reconnect")
}

// OnChange registers fn and returns a function that removes it.
func (c *ConnMode) OnChange(fn Listener) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *ConnMode) transition(to Mode, reason string) {
	c.mu.Lock()
	from := c.mode
	if from == to {
		c.mu.Unlock()
		return
	}
	c.mode = to
	// Snapshot so listeners may add or remove listeners while being called.
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if to == ModeDegraded {
		c.log.Warn("connection mode changed", zap.String("from", string(from)), zap.String("to", string(to)), zap.String("reason", reason))
	} else {
		c.log.Info("connection mode changed", zap.String("from", string(from)), zap.String("to", string(to)), zap.String("reason", reason))
	}
	for _, fn := range fns {
		fn(from, to)
	}
}
