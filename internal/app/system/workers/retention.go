// internal/app/system/workers/retention.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes history entries older than a cutoff.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HistoryRetention is a background worker that prunes old turn history.
// Removing an entry also removes the chance to undo it.
type HistoryRetention struct {
	pruner   Pruner
	log      *zap.Logger
	interval time.Duration
	keep     time.Duration
	timeout  time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHistoryRetention creates a retention worker.
//
// Parameters:
//   - pruner: the history store
//   - logger: zap logger for logging
//   - interval: how often to prune (e.g., 1 hour)
//   - keep: how long entries are kept (e.g., 90 days)
func NewHistoryRetention(pruner Pruner, logger *zap.Logger, interval, keep time.Duration) *HistoryRetention {
	return &HistoryRetention{
		pruner:   pruner,
		log:      logger,
		interval: interval,
		keep:     keep,
		timeout:  30 * time.Second,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop. The first pass runs immediately.
func (w *HistoryRetention) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("history retention worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("keep", w.keep))
}

// Stop signals the worker to stop and waits for it to finish. It is safe to
// call more than once.
func (w *HistoryRetention) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("history retention worker stopped")
	})
}

func (w *HistoryRetention) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.prune()
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// prune runs one pass and returns how many entries went.
func (w *HistoryRetention) prune() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	cutoff := w.now().Add(-w.keep)
	count, err := w.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		w.log.Error("failed to prune turn history", zap.Error(err))
		return 0
	}
	if count > 0 {
		w.log.Info("pruned turn history", zap.Int64("count", count), zap.Time("cutoff", cutoff))
	}
	return count
}
