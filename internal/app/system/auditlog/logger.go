// internal/app/system/auditlog/logger.go
package auditlog

import (
	"go.uber.org/zap"

	"github.com/dalemusser/whoseturn/internal/domain/models"
	"github.com/dalemusser/whoseturn/internal/domain/turnerr"
)

// Event categories
const (
	CategoryTurn   = "turn"
	CategoryRoster = "roster"
)

// Roster event types. Turn events use the models.LogType values.
const (
	EventGroupCreated       = "group_created"
	EventGroupUpdated       = "group_updated"
	EventGroupDeleted       = "group_deleted"
	EventParticipantAdded   = "participant_added"
	EventParticipantRemoved = "participant_removed"
	EventParticipantRenamed = "participant_renamed"
	EventRoleChanged        = "role_changed"
	EventGroupJoined        = "group_joined"
	EventPlaceholderClaimed = "placeholder_claimed"
)

// Config holds audit logging configuration.
type Config struct {
	// Turns controls logging of turn history (complete, skip, undo, reset).
	// Values: "log" (zap) or "off". The history itself is always persisted
	// by the store.
	Turns string
	// Roster controls logging of group and participant changes.
	// Values: "log" (zap) or "off".
	Roster string
}

// Event is one audited command outcome.
type Event struct {
	Category      string
	EventType     string
	GroupID       string
	ActorUID      string
	ParticipantID string
	Success       bool
	FailureReason string
	Details       map[string]string
}

// Logger mirrors command outcomes into structured logs.
type Logger struct {
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(zapLog *zap.Logger, config Config) *Logger {
	return &Logger{zapLog: zapLog, config: config}
}

// Log records an event according to configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case CategoryTurn:
		setting = l.config.Turns
	case CategoryRoster:
		setting = l.config.Roster
	default:
		setting = "log"
	}
	if setting == "off" {
		return
	}

	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.String("gid", event.GroupID),
		zap.String("actor_uid", event.ActorUID),
		zap.Bool("success", event.Success),
	}
	if event.ParticipantID != "" {
		fields = append(fields, zap.String("participant_id", event.ParticipantID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// --- Turn history ---

type entryEvent struct{ ev *Event }

func (x entryEvent) TurnCompleted(e *models.TurnCompleted) {
	x.ev.ParticipantID = e.ParticipantID
	x.ev.Details = map[string]string{"participant_name": e.ParticipantName}
}

func (x entryEvent) TurnSkipped(e *models.TurnSkipped) {
	x.ev.ParticipantID = e.ParticipantID
	x.ev.Details = map[string]string{"participant_name": e.ParticipantName}
}

func (x entryEvent) CountsReset(*models.CountsReset) {}

func (x entryEvent) TurnUndone(e *models.TurnUndone) {
	x.ev.ParticipantID = e.ParticipantID
	x.ev.Details = map[string]string{
		"participant_name": e.ParticipantName,
		"undone_entry_id":  e.UndoneEntryID,
	}
}

// Entry logs a committed history entry.
func (l *Logger) Entry(e models.LogEntry) {
	if l == nil {
		return
	}
	m := e.Meta()
	ev := Event{
		Category:  CategoryTurn,
		EventType: string(e.Type()),
		GroupID:   m.GroupID,
		ActorUID:  m.ActorUID,
		Success:   true,
	}
	e.Accept(entryEvent{ev: &ev})
	if ev.Details == nil {
		ev.Details = map[string]string{}
	}
	ev.Details["entry_id"] = m.ID
	l.Log(ev)
}

// --- Roster changes ---

// Roster logs a committed group or participant change.
func (l *Logger) Roster(eventType, gid, actorUID, participantID string, details map[string]string) {
	l.Log(Event{
		Category:      CategoryRoster,
		EventType:     eventType,
		GroupID:       gid,
		ActorUID:      actorUID,
		ParticipantID: participantID,
		Success:       true,
		Details:       details,
	})
}

// Failed logs a command that did not commit.
func (l *Logger) Failed(category, eventType, gid, actorUID string, err error) {
	l.Log(Event{
		Category:      category,
		EventType:     eventType,
		GroupID:       gid,
		ActorUID:      actorUID,
		Success:       false,
		FailureReason: turnerr.Kind(err),
	})
}
