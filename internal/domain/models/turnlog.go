// internal/domain/models/turnlog.go
package models

import (
	"fmt"
	"time"
)

// LogType discriminates history entries.
type LogType string

const (
	LogTurnCompleted LogType = "turnCompleted"
	LogTurnSkipped   LogType = "turnSkipped"
	LogCountsReset   LogType = "countsReset"
	LogTurnUndone    LogType = "turnUndone"
)

// LogMeta holds the fields every history entry carries.
//
// ParticipantUIDs and AdminUIDs are copies of the aggregate's maps at write
// time, so access checks against the log never need the (possibly changed)
// aggregate.
type LogMeta struct {
	ID              string
	GroupID         string
	CompletedAt     time.Time
	ActorUID        string
	ActorName       string
	ParticipantUIDs map[string]bool
	AdminUIDs       map[string]bool
}

// Meta exposes the common fields of any entry.
func (m *LogMeta) Meta() *LogMeta { return m }

// Subject snapshots the participant a turn entry is about.
type Subject struct {
	ParticipantID   string
	ParticipantName string
}

// TurnCompleted records a participant taking their turn.
type TurnCompleted struct {
	LogMeta
	Subject
	IsUndone bool
}

// TurnSkipped records a participant being passed over.
type TurnSkipped struct {
	LogMeta
	Subject
}

// CountsReset records every turn count going back to zero.
type CountsReset struct {
	LogMeta
}

// TurnUndone records the reversal of a TurnCompleted entry.
type TurnUndone struct {
	LogMeta
	Subject
	UndoneEntryID string
}

// LogEntry is the closed set of history entries. Only the four types in this
// file implement it.
type LogEntry interface {
	Meta() *LogMeta
	Type() LogType
	Accept(v LogVisitor)
	isLogEntry()
}

// LogVisitor must handle every entry type, so adding a variant breaks every
// switch-by-visitor at compile time.
type LogVisitor interface {
	TurnCompleted(e *TurnCompleted)
	TurnSkipped(e *TurnSkipped)
	CountsReset(e *CountsReset)
	TurnUndone(e *TurnUndone)
}

func (*TurnCompleted) Type() LogType { return LogTurnCompleted }
func (*TurnSkipped) Type() LogType   { return LogTurnSkipped }
func (*CountsReset) Type() LogType   { return LogCountsReset }
func (*TurnUndone) Type() LogType    { return LogTurnUndone }

func (e *TurnCompleted) Accept(v LogVisitor) { v.TurnCompleted(e) }
func (e *TurnSkipped) Accept(v LogVisitor)   { v.TurnSkipped(e) }
func (e *CountsReset) Accept(v LogVisitor)   { v.CountsReset(e) }
func (e *TurnUndone) Accept(v LogVisitor)    { v.TurnUndone(e) }

func (*TurnCompleted) isLogEntry() {}
func (*TurnSkipped) isLogEntry()   {}
func (*CountsReset) isLogEntry()   {}
func (*TurnUndone) isLogEntry()    {}

// LogDoc is the persisted (and JSON) shape of a history entry.
type LogDoc struct {
	ID              string          `bson:"_id" json:"id"`
	GroupID         string          `bson:"gid" json:"gid"`
	Type            LogType         `bson:"type" json:"type"`
	CompletedAt     time.Time       `bson:"completed_at" json:"completedAt"`
	ActorUID        string          `bson:"actor_uid" json:"actorUid"`
	ActorName       string          `bson:"actor_name" json:"actorName"`
	ParticipantID   string          `bson:"participant_id,omitempty" json:"participantId,omitempty"`
	ParticipantName string          `bson:"participant_name,omitempty" json:"participantName,omitempty"`
	UndoneEntryID   string          `bson:"undone_entry_id,omitempty" json:"undoneEntryId,omitempty"`
	IsUndone        bool            `bson:"is_undone,omitempty" json:"isUndone,omitempty"`
	ParticipantUIDs map[string]bool `bson:"participant_uids" json:"participantUids"`
	AdminUIDs       map[string]bool `bson:"admin_uids" json:"adminUids"`
}

type docWriter struct{ d *LogDoc }

func (w docWriter) TurnCompleted(e *TurnCompleted) {
	w.subject(e.Subject)
	w.d.IsUndone = e.IsUndone
}
func (w docWriter) TurnSkipped(e *TurnSkipped) { w.subject(e.Subject) }
func (w docWriter) CountsReset(*CountsReset)   {}
func (w docWriter) TurnUndone(e *TurnUndone) {
	w.subject(e.Subject)
	w.d.UndoneEntryID = e.UndoneEntryID
}

func (w docWriter) subject(s Subject) {
	w.d.ParticipantID = s.ParticipantID
	w.d.ParticipantName = s.ParticipantName
}

// ToLogDoc flattens an entry into its persisted shape.
func ToLogDoc(e LogEntry) LogDoc {
	m := e.Meta()
	d := LogDoc{
		ID:              m.ID,
		GroupID:         m.GroupID,
		Type:            e.Type(),
		CompletedAt:     m.CompletedAt,
		ActorUID:        m.ActorUID,
		ActorName:       m.ActorName,
		ParticipantUIDs: cloneSet(m.ParticipantUIDs),
		AdminUIDs:       cloneSet(m.AdminUIDs),
	}
	e.Accept(docWriter{d: &d})
	return d
}

// Entry rebuilds the typed entry from its persisted shape.
func (d LogDoc) Entry() (LogEntry, error) {
	meta := LogMeta{
		ID:              d.ID,
		GroupID:         d.GroupID,
		CompletedAt:     d.CompletedAt,
		ActorUID:        d.ActorUID,
		ActorName:       d.ActorName,
		ParticipantUIDs: cloneSet(d.ParticipantUIDs),
		AdminUIDs:       cloneSet(d.AdminUIDs),
	}
	subj := Subject{ParticipantID: d.ParticipantID, ParticipantName: d.ParticipantName}
	switch d.Type {
	case LogTurnCompleted:
		return &TurnCompleted{LogMeta: meta, Subject: subj, IsUndone: d.IsUndone}, nil
	case LogTurnSkipped:
		return &TurnSkipped{LogMeta: meta, Subject: subj}, nil
	case LogCountsReset:
		return &CountsReset{LogMeta: meta}, nil
	case LogTurnUndone:
		return &TurnUndone{LogMeta: meta, Subject: subj, UndoneEntryID: d.UndoneEntryID}, nil
	default:
		return nil, fmt.Errorf("unknown log entry type %q", d.Type)
	}
}

// CloneLogEntry returns a deep copy of e.
func CloneLogEntry(e LogEntry) LogEntry {
	out, err := ToLogDoc(e).Entry()
	if err != nil {
		// ToLogDoc only emits known types.
		panic(err)
	}
	return out
}
