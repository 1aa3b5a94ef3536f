package commands

import (
	"context"
	"fmt"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/system/auditlog"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
)

// CompleteTurn records that pid took their turn: they move to the back of
// the queue and their count goes up by one.
func (s *Service) CompleteTurn(ctx context.Context, gid string, actor models.Actor, pid string) (*models.TurnCompleted, error) {
	var entry *models.TurnCompleted
	err := s.mutate(ctx, "complete turn", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		i, err := participantIndex(g, pid)
		if err != nil {
			return err
		}
		p := g.Participants[i]
		e := &models.TurnCompleted{
			LogMeta: meta(g, actor),
			Subject: models.Subject{ParticipantID: p.ID, ParticipantName: p.DisplayName()},
		}

		g.TurnOrder = roster.MoveToTail(g.TurnOrder, pid)
		g.Participants[i].TurnCount++

		if _, err := tx.AppendLog(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryTurn, string(models.LogTurnCompleted), gid, actor.UID, err)
		return nil, err
	}
	s.audit.Entry(entry)
	return entry, nil
}

// SkipTurn passes over pid: same rotation as CompleteTurn, count unchanged.
func (s *Service) SkipTurn(ctx context.Context, gid string, actor models.Actor, pid string) (*models.TurnSkipped, error) {
	var entry *models.TurnSkipped
	err := s.mutate(ctx, "skip turn", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		i, err := participantIndex(g, pid)
		if err != nil {
			return err
		}
		p := g.Participants[i]
		e := &models.TurnSkipped{
			LogMeta: meta(g, actor),
			Subject: models.Subject{ParticipantID: p.ID, ParticipantName: p.DisplayName()},
		}

		g.TurnOrder = roster.MoveToTail(g.TurnOrder, pid)

		if _, err := tx.AppendLog(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryTurn, string(models.LogTurnSkipped), gid, actor.UID, err)
		return nil, err
	}
	s.audit.Entry(entry)
	return entry, nil
}

// UndoTurn reverts a completed turn. The subject goes back to the head of
// the queue (not necessarily their exact former position) and their count
// drops by one, never below zero. The original entry is flagged undone and
// a TurnUndone entry is appended, all in one transaction.
func (s *Service) UndoTurn(ctx context.Context, gid string, actor models.Actor, logToUndo *models.TurnCompleted) (*models.TurnUndone, error) {
	if logToUndo == nil || logToUndo.ID == "" {
		return nil, fmt.Errorf("undo turn: %w: no entry given", turnerr.ErrInvalidInput)
	}

	var entry *models.TurnUndone
	err := s.mutate(ctx, "undo turn", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		stored, err := tx.LogEntry(ctx, gid, logToUndo.ID)
		if err != nil {
			return err
		}
		orig, ok := stored.(*models.TurnCompleted)
		if !ok {
			return fmt.Errorf("%w: entry %s is %s, not a completed turn", turnerr.ErrInvalidInput, stored.Meta().ID, stored.Type())
		}
		if orig.IsUndone {
			return fmt.Errorf("%w: %s", turnerr.ErrAlreadyUndone, orig.ID)
		}
		i, err := participantIndex(g, orig.ParticipantID)
		if err != nil {
			return err
		}

		e := &models.TurnUndone{
			LogMeta:       meta(g, actor),
			Subject:       orig.Subject,
			UndoneEntryID: orig.ID,
		}

		g.TurnOrder = roster.MoveToHead(g.TurnOrder, orig.ParticipantID)
		if g.Participants[i].TurnCount > 0 {
			g.Participants[i].TurnCount--
		}

		// The aggregate is written by mutate after this returns; the
		// transaction commits all three writes or none.
		if _, err := tx.AppendLog(ctx, e); err != nil {
			return err
		}
		if err := tx.MarkUndone(ctx, gid, orig.ID); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryTurn, string(models.LogTurnUndone), gid, actor.UID, err)
		return nil, err
	}
	s.audit.Entry(entry)
	return entry, nil
}

// ResetCounts sets every participant's count back to zero.
func (s *Service) ResetCounts(ctx context.Context, gid string, actor models.Actor) (*models.CountsReset, error) {
	var entry *models.CountsReset
	err := s.mutate(ctx, "reset counts", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		e := &models.CountsReset{LogMeta: meta(g, actor)}
		for i := range g.Participants {
			g.Participants[i].TurnCount = 0
		}
		if _, err := tx.AppendLog(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryTurn, string(models.LogCountsReset), gid, actor.UID, err)
		return nil, err
	}
	s.audit.Entry(entry)
	return entry, nil
}
