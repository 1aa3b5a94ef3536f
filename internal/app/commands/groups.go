package commands

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"github.com/dalemusser/whoseturn/internal/app/system/auditlog"
	"github.com/dalemusser/whoseturn/internal/app/system/timeouts"
	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/roster"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
	"go.uber.org/zap"
)

// DefaultIcon is used when a group is created without one.
const DefaultIcon = "🔁"

// CreateGroupInput describes a new group.
type CreateGroupInput struct {
	Name string
	Icon string
	// Placeholders are nicknames for unclaimed slots queued after the creator.
	Placeholders []string
}

// UpdateSettingsInput changes group-level fields; nil fields are left alone.
type UpdateSettingsInput struct {
	Name *string
	Icon *string
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", turnerr.ErrInvalidInput)
	}
	return name, nil
}

func validIcon(icon string) (string, error) {
	icon = strings.TrimSpace(icon)
	if icon == "" {
		return DefaultIcon, nil
	}
	// A single glyph can still be several code points (flags, ZWJ emoji).
	if utf8.RuneCountInString(icon) > 8 {
		return "", fmt.Errorf("%w: icon must be a single glyph", turnerr.ErrInvalidInput)
	}
	return icon, nil
}

// CreateGroup creates a group whose creator is its first admin and is first
// in the queue.
func (s *Service) CreateGroup(ctx context.Context, actor models.Actor, in CreateGroupInput) (*models.Group, error) {
	if err := requireUID(actor); err != nil {
		return nil, err
	}
	name, err := validName(in.Name)
	if err != nil {
		return nil, err
	}
	icon, err := validIcon(in.Icon)
	if err != nil {
		return nil, err
	}
	if len(in.Placeholders)+1 > MaxParticipants {
		return nil, fmt.Errorf("%w: at most %d participants", turnerr.ErrInvalidInput, MaxParticipants)
	}

	g := &models.Group{
		ID:       s.newID(),
		Name:     name,
		Icon:     icon,
		OwnerUID: actor.UID,
	}
	creator := models.Participant{
		ID:       s.newID(),
		UID:      models.StrPtr(actor.UID),
		Nickname: actor.DisplayName,
		Role:     models.RoleAdmin,
	}
	g.Participants = append(g.Participants, creator)
	g.TurnOrder = append(g.TurnOrder, creator.ID)
	for _, nick := range in.Placeholders {
		nick = strings.TrimSpace(nick)
		if nick == "" {
			continue
		}
		p := models.Participant{ID: s.newID(), Nickname: nick, Role: models.RoleMember}
		g.Participants = append(g.Participants, p)
		g.TurnOrder = append(g.TurnOrder, p.ID)
	}
	roster.Apply(g)

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Transaction(), s.log, "create group")
	defer cancel()
	var created *models.Group
	err = s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.PutGroup(ctx, g.Clone()); err != nil {
			return err
		}
		stored, err := tx.Group(ctx, g.ID)
		if err != nil {
			return err
		}
		created = stored
		return nil
	})
	if err != nil {
		s.log.Warn("create group failed", zap.String("gid", g.ID), zap.Error(err))
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventGroupCreated, g.ID, actor.UID, err)
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.audit.Roster(auditlog.EventGroupCreated, g.ID, actor.UID, creator.ID, map[string]string{"name": g.Name})
	return created, nil
}

// UpdateSettings renames or re-icons a group.
func (s *Service) UpdateSettings(ctx context.Context, gid string, actor models.Actor, in UpdateSettingsInput) error {
	var name, icon string
	var err error
	if in.Name != nil {
		if name, err = validName(*in.Name); err != nil {
			return err
		}
	}
	if in.Icon != nil {
		if icon, err = validIcon(*in.Icon); err != nil {
			return err
		}
	}
	err = s.mutate(ctx, "update settings", gid, func(ctx context.Context, tx docstore.Tx, g *models.Group) error {
		if in.Name == nil && in.Icon == nil {
			return errUnchanged
		}
		if in.Name != nil {
			g.Name = name
		}
		if in.Icon != nil {
			g.Icon = icon
		}
		return nil
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventGroupUpdated, gid, actor.UID, err)
		return err
	}
	s.audit.Roster(auditlog.EventGroupUpdated, gid, actor.UID, "", nil)
	return nil
}

// DeleteGroup removes the group and its history.
func (s *Service) DeleteGroup(ctx context.Context, gid string, actor models.Actor) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Transaction(), s.log, "delete group")
	defer cancel()
	err := s.store.RunTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.DeleteGroup(ctx, gid)
	})
	if err != nil {
		s.audit.Failed(auditlog.CategoryRoster, auditlog.EventGroupDeleted, gid, actor.UID, err)
		return fmt.Errorf("delete group: %w", err)
	}
	s.audit.Roster(auditlog.EventGroupDeleted, gid, actor.UID, "", nil)
	return nil
}
