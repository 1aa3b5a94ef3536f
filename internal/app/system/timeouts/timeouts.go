// Package timeouts provides the deadlines applied to store operations.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks
//   - Fetch: one-shot reads, including the query layer's fallback fetch
//   - Query: history windows and membership listings
//   - Transaction: every command (read-modify-write plus log appends)
//
// Values can be overridden once at startup with Configure.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing        = 2 * time.Second
	DefaultFetch       = 5 * time.Second
	DefaultQuery       = 10 * time.Second
	DefaultTransaction = 30 * time.Second
)

var mu sync.RWMutex

var (
	ping        = DefaultPing
	fetch       = DefaultFetch
	query       = DefaultQuery
	transaction = DefaultTransaction
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Fetch returns the timeout for single reads.
func Fetch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return fetch
}

// Query returns the timeout for list reads.
func Query() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return query
}

// Transaction returns the timeout for a command's transaction.
func Transaction() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return transaction
}

// Config holds timeout overrides. Zero values keep the current value.
type Config struct {
	Ping        time.Duration
	Fetch       time.Duration
	Query       time.Duration
	Transaction time.Duration
}

// Configure applies overrides. Call it during startup.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Fetch > 0 {
		fetch = cfg.Fetch
	}
	if cfg.Query > 0 {
		query = cfg.Query
	}
	if cfg.Transaction > 0 {
		transaction = cfg.Transaction
	}
}

// Reset restores the defaults. Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	fetch = DefaultFetch
	query = DefaultQuery
	transaction = DefaultTransaction
}

// Current returns the active configuration, for startup logging.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Fetch: fetch, Query: query, Transaction: transaction}
}

// WithTimeout derives a context with timeout whose cancel func logs a
// warning when the deadline was what ended the operation.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Transaction(), log, "complete turn")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
