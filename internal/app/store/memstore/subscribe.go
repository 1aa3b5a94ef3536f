package memstore

import (
	"context"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"go.uber.org/zap"
)

type subscription struct {
	match  func(gid string) bool
	notify chan struct{}
	fail   chan error
}

// signal asks the delivery goroutine to reload; repeated signals coalesce.
func (sub *subscription) signal() {
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *subscription) failWith(err error) {
	select {
	case sub.fail <- err:
	default:
	}
}

func (s *Store) notify(changed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		for _, gid := range changed {
			if sub.match(gid) {
				sub.signal()
				break
			}
		}
	}
}

func (s *Store) drop(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

type source[T any] struct {
	s     *Store
	name  string
	match func(gid string) bool
	load  func() (T, error)
}

func (src source[T]) Name() string { return src.name }

func (src source[T]) Fetch(ctx context.Context) (T, error) {
	var zero T
	s := src.s
	s.mu.Lock()
	s.fetches++
	var fault docstore.Code
	if len(s.fetchFaults) > 0 {
		fault, s.fetchFaults = s.fetchFaults[0], s.fetchFaults[1:]
	}
	s.mu.Unlock()

	if fault != "" {
		return zero, docstore.NewError(fault, "fetch "+src.name, nil)
	}
	if err := ctx.Err(); err != nil {
		return zero, docstore.NewError(docstore.CodeCanceled, "fetch "+src.name, err)
	}
	return src.load()
}

func (src source[T]) Subscribe(ctx context.Context, onNext func(T), onErr func(error)) (docstore.Subscription, error) {
	s := src.s
	s.mu.Lock()
	if len(s.refusals) > 0 {
		var code docstore.Code
		code, s.refusals = s.refusals[0], s.refusals[1:]
		s.mu.Unlock()
		return nil, docstore.NewError(code, "watch "+src.name, nil)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		match:  src.match,
		notify: make(chan struct{}, 1),
		fail:   make(chan error, 1),
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	if len(s.watchFaults) > 0 {
		var code docstore.Code
		code, s.watchFaults = s.watchFaults[0], s.watchFaults[1:]
		sub.failWith(docstore.NewError(code, "watch "+src.name, nil))
	}
	s.mu.Unlock()

	sub.signal()
	s.log.Debug("memstore subscription opened", zap.String("source", src.name))

	go func() {
		defer s.drop(id)
		for {
			// A pending failure wins over a pending reload.
			select {
			case err := <-sub.fail:
				onErr(err)
				return
			default:
			}
			select {
			case <-ctx.Done():
				return
			case err := <-sub.fail:
				onErr(err)
				return
			case <-sub.notify:
				v, err := src.load()
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					onErr(err)
					return
				}
				onNext(v)
			}
		}
	}()

	return docstore.SubscriptionFunc(cancel), nil
}
