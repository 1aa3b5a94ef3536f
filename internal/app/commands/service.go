// Package commands implements the transactional mutators over a group
// aggregate: group settings, roster changes, and the turn lifecycle.
//
// Every command reads the aggregate inside one store transaction, derives the
// new roster and turn order, recomputes the uid projections, and writes
// everything (including history entries) atomically. Errors always reach the
// caller; JoinGroup by an existing member is the only deliberate no-op.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/system/auditlog"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxParticipants bounds a roster; groups are small and social.
const MaxParticipants = 100

// Service runs commands against a store.
type Service struct {
	store docstore.Store
	audit *auditlog.Logger
	log   *zap.Logger
	newID func() string
}

// New creates a command Service. audit may be nil.
func New(store docstore.Store, audit *auditlog.Logger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store: store,
		audit: audit,
		log:   log,
		newID: func() string { return uuid.NewString() },
	}
}

// errUnchanged aborts a transaction that has nothing to write.
var errUnchanged = errors.New("unchanged")

// mutation edits g in place. It may append history through tx; the helper
// recomputes the projections and writes g afterwards.
type mutation func(ctx context.Context, tx docstore.Tx, g *models.Group) error

// mutate runs one read-modify-write of gid's aggregate.
func (s *Service) mutate(ctx context.Context, op, gid string, fn mutation) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Transaction(), s.log, op)
	defer cancel()

	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		g, err := tx.Group(ctx, gid)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, g); err != nil {
			return err
		}
		roster.Apply(g)
		return tx.PutGroup(ctx, g)
	})
	if errors.Is(err, errUnchanged) {
		s.log.Debug("command made no change", zap.String("op", op), zap.String("gid", gid))
		return nil
	}
	if err != nil {
		s.log.Warn("command failed",
			zap.String("op", op),
			zap.String("gid", gid),
			zap.String("kind", turnerr.Kind(err)),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("command committed", zap.String("op", op), zap.String("gid", gid))
	return nil
}

func participantIndex(g *models.Group, pid string) (int, error) {
	i := roster.Index(g.Participants, pid)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", turnerr.ErrParticipantNotFound, pid)
	}
	return i, nil
}

func requireUID(actor models.Actor) error {
	if actor.UID == "" {
		return fmt.Errorf("%w: actor has no uid", turnerr.ErrInvalidInput)
	}
	return nil
}

// meta builds the common history fields, snapshotting the maps of the
// roster as it was before the mutation.
func meta(g *models.Group, actor models.Actor) models.LogMeta {
	pre := roster.Project(g.Participants)
	return models.LogMeta{
		GroupID:         g.ID,
		ActorUID:        actor.UID,
		ActorName:       actor.Name(),
		ParticipantUIDs: pre.ParticipantUIDs,
		AdminUIDs:       pre.AdminUIDs,
	}
}
