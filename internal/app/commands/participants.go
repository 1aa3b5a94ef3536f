package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/system/auditlog"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
)

// AddParticipant appends an unclaimed placeholder slot to the back of the
// queue and returns its id.
func (s *Service) AddParticipant(ctx context.Context, gid string, actor models.Actor, nickname string, role models.Role) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", fmt.Errorf("%w: nickname is required", turnerr.ErrInvalidInput)
	}
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", turnerr.ErrInvalidInput, role)
	}

	id := s.newID()
	err := s.mutate(ctx, "add participant", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		if len(g.Participants) >= MaxParticipants {
			return fmt.Errorf("%w: group is full", turnerr.ErrInvalidInput)
		}
		g.Participants = append(g.Participants, models.Participant{ID: id, Nickname: nickname, Role: role})
		g.TurnOrder = append(g.TurnOrder, id)
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventParticipantAdded, gid, actor.UID, err)
		return "", err
	}
	s.audit.Roster(auditlog.EventParticipantAdded, gid, actor.UID, id, map[string]string{"role": string(role)})
	return id, nil
}

// RemoveParticipant drops a slot from the roster and the queue. History
// entries about it are kept.
//
// The last admin can be removed; callers gate that using the derived view.
func (s *Service) RemoveParticipant(ctx context.Context, gid string, actor models.Actor, pid string) error {
	err := s.mutate(ctx, "remove participant", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		if _, err := participantIndex(g, pid); err != nil {
			return err
		}
		g.Participants = roster.Remove(g.Participants, pid)
		g.TurnOrder = roster.Without(g.TurnOrder, pid)
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventParticipantRemoved, gid, actor.UID, err)
		return err
	}
	s.audit.Roster(auditlog.EventParticipantRemoved, gid, actor.UID, pid, nil)
	return nil
}

// ChangeRole sets a slot's role.
func (s *Service) ChangeRole(ctx context.Context, gid string, actor models.Actor, pid string, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", turnerr.ErrInvalidInput, role)
	}
	err := s.mutate(ctx, "change role", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		i, err := participantIndex(g, pid)
		if err != nil {
			return err
		}
		if g.Participants[i].Role == role {
			return errUnchanged
		}
		g.Participants[i].Role = role
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventRoleChanged, gid, actor.UID, err)
		return err
	}
	s.audit.Roster(auditlog.EventRoleChanged, gid, actor.UID, pid, map[string]string{"role": string(role)})
	return nil
}

// RenameParticipant sets a slot's nickname; an empty nickname clears it.
func (s *Service) RenameParticipant(ctx context.Context, gid string, actor models.Actor, pid, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	err := s.mutate(ctx, "rename participant", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		i, err := participantIndex(g, pid)
		if err != nil {
			return err
		}
		g.Participants[i].Nickname = nickname
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventParticipantRenamed, gid, actor.UID, err)
		return err
	}
	s.audit.Roster(auditlog.EventParticipantRenamed, gid, actor.UID, pid, nil)
	return nil
}

// JoinGroup adds the actor as a member at the back of the queue. Joining a
// group the actor already belongs to succeeds without writing anything.
func (s *Service) JoinGroup(ctx context.Context, gid string, actor models.Actor) error {
	if err := requireUID(actor); err != nil {
		return err
	}
	id := s.newID()
	joined := false
	err := s.mutate(ctx, "join group", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		joined = false
		if _, ok := g.ParticipantByUID(actor.UID); ok {
			return errUnchanged
		}
		if len(g.Participants) >= MaxParticipants {
			return fmt.Errorf("%w: group is full", turnerr.ErrInvalidInput)
		}
		g.Participants = append(g.Participants, models.Participant{
			ID:       id,
			UID:      models.StrPtr(actor.UID),
			Nickname: actor.DisplayName,
			Role:     models.RoleMember,
		})
		g.TurnOrder = append(g.TurnOrder, id)
		joined = true
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventGroupJoined, gid, actor.UID, err)
		return err
	}
	if joined {
		s.audit.Roster(auditlog.EventGroupJoined, gid, actor.UID, id, nil)
	}
	return nil
}

// ClaimPlaceholder links the actor's account to an unclaimed slot. The
// unclaimed check runs inside the transaction, so of two racing claims
// exactly one wins and the other fails with ErrAlreadyClaimed.
func (s *Service) ClaimPlaceholder(ctx context.Context, gid string, actor models.Actor, pid string) error {
	if err := requireUID(actor); err != nil {
		return err
	}
	err := s.mutate(ctx, "claim placeholder", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		i, err := participantIndex(g, pid)
		if err != nil {
			return err
		}
		if !g.Participants[i].IsPlaceholder() {
			return fmt.Errorf("%w: %s", turnerr.ErrAlreadyClaimed, pid)
		}
		if held, ok := g.ParticipantByUID(actor.UID); ok {
			return fmt.Errorf("%w: holds slot %s", turnerr.ErrAlreadyMember, held.ID)
		}
		g.Participants[i].UID = models.StrPtr(actor.UID)
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventPlaceholderClaimed, gid, actor.UID, err)
		return err
	}
	s.audit.Roster(auditlog.EventPlaceholderClaimed, gid, actor.UID, pid, nil)
	return nil
}
