package query

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Breaker wraps store subscriptions with the degraded-mode fallback.
type Breaker struct {
	mode *ConnMode
	log  *zap.Logger
}

// NewBreaker creates a Breaker reporting into mode.
func NewBreaker(mode *ConnMode, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{mode: mode, log: log}
}

// Mode returns the handle this breaker reports into.
func (b *Breaker) Mode() *ConnMode { return b.mode }

// Subscribe opens a push subscription on src and forwards every delivery to
// onNext, marking the connection live.
//
// When the watch fails with resource exhaustion the connection goes
// degraded and src is fetched exactly once; that result reaches onNext like
// any delivery. A failed fallback fetch, and any other watch error, is only
// logged. After a watch error the subscription is finished: recovery happens
// when the owner resubscribes on the degraded to live transition.
//
// A watch refused outright with resource exhaustion is served the same way
// and is not an error to the caller: the returned Subscription is already
// finished. Any other refusal is returned.
//
// onNext is never called after Unsubscribe returns, except for one delivery
// that was already running.
func Subscribe[T any](ctx context.Context, b *Breaker, src docstore.Source[T], onNext func(T)) (docstore.Subscription, error) {
	var closed atomic.Bool
	log := b.log.With(zap.String("source", src.Name()))

	next := func(v T) {
		if closed.Load() {
			return
		}
		b.mode.SetLive()
		onNext(v)
	}
	fail := func(err error) {
		if closed.Load() || errors.Is(err, context.Canceled) {
			return
		}
		if !docstore.IsResourceExhausted(err) {
			log.Warn("subscription failed", zap.String("code", string(docstore.CodeOf(err))), zap.Error(err))
			return
		}

		b.mode.SetDegraded()
		fctx, cancel := timeouts.WithTimeout(ctx, timeouts.Fetch(), log, "fallback fetch")
		defer cancel()
		v, ferr := src.Fetch(fctx)
		if ferr != nil {
			log.Warn("fallback fetch failed", zap.Error(ferr))
			return
		}
		if closed.Load() {
			return
		}
		log.Debug("served fallback fetch")
		onNext(v)
	}

	sub, err := src.Subscribe(ctx, next, fail)
	if err != nil {
		fail(err)
		if docstore.IsResourceExhausted(err) {
			return docstore.SubscriptionFunc(func() { closed.Store(true) }), nil
		}
		return nil, err
	}
	return docstore.SubscriptionFunc(func() {
		closed.Store(true)
		sub.Unsubscribe()
	}), nil
}
