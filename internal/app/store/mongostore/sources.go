package mongostore

import (
	"context"
	"errors"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// GroupDoc implements docstore.Store.
func (s *Store) GroupDoc(gid string) docstore.Source[*models.Group] {
	return source[*models.Group]{
		s:    s,
		name: "groups/" + gid,
		coll: s.groups.Collection(),
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"documentKey._id": gid}}},
		},
		load: func(ctx context.Context) (*models.Group, error) {
			g, err := s.groups.Get(ctx, gid)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, nil
			}
			return g, err
		},
	}
}

// RecentLog implements docstore.Store.
func (s *Store) RecentLog(gid string, limit int) docstore.Source[[]models.LogEntry] {
	return source[[]models.LogEntry]{
		s:    s,
		name: "groups/" + gid + "/log",
		coll: s.turns.Collection(),
		// Deletes carry no document, so any delete triggers a reload.
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"$or": bson.A{
				bson.M{"fullDocument.gid": gid},
				bson.M{"operationType": "delete"},
			}}}},
		},
		lookup: true,
		load: func(ctx context.Context) ([]models.LogEntry, error) {
			return s.turns.Recent(ctx, gid, int64(limit))
		},
	}
}

// GroupsFor implements docstore.Store. A change stream cannot see that uid
// was removed from a group without pre-images, so every group change
// reloads the list.
func (s *Store) GroupsFor(uid string) docstore.Source[[]*models.Group] {
	return source[[]*models.Group]{
		s:        s,
		name:     "groups?member=" + uid,
		coll:     s.groups.Collection(),
		pipeline: mongo.Pipeline{},
		load: func(ctx context.Context) ([]*models.Group, error) {
			return s.groups.ListForUID(ctx, uid)
		},
	}
}

type source[T any] struct {
	s        *Store
	name     string
	coll     *mongo.Collection
	pipeline mongo.Pipeline
	lookup   bool
	load     func(ctx context.Context) (T, error)
}

func (src source[T]) Name() string { return src.name }

func (src source[T]) Fetch(ctx context.Context) (T, error) {
	v, err := src.load(ctx)
	return v, classify("fetch "+src.name, err)
}

// Subscribe opens the change stream before the initial load so no change
// between the two is missed. Bursts of events coalesce into one reload when
// they are already buffered.
func (src source[T]) Subscribe(ctx context.Context, onNext func(T), onErr func(error)) (docstore.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	opts := options.ChangeStream()
	if src.lookup {
		opts.SetFullDocument(options.UpdateLookup)
	}
	cs, err := src.coll.Watch(ctx, src.pipeline, opts)
	if err != nil {
		cancel()
		return nil, classify("watch "+src.name, err)
	}
	log := src.s.log.With(zap.String("source", src.name))
	log.Debug("change stream opened")

	go func() {
		defer cs.Close(context.Background())
		deliver := func() bool {
			v, err := src.load(ctx)
			if ctx.Err() != nil {
				return false
			}
			if err != nil {
				onErr(classify("load "+src.name, err))
				return false
			}
			onNext(v)
			return true
		}

		if !deliver() {
			return
		}
		for cs.Next(ctx) {
			for cs.RemainingBatchLength() > 0 {
				if !cs.Next(ctx) {
					break
				}
			}
			if !deliver() {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		err := cs.Err()
		if err == nil {
			err = errors.New("change stream closed")
		}
		onErr(classify("watch "+src.name, err))
	}()

	return docstore.SubscriptionFunc(cancel), nil
}
