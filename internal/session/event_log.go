package session

import (
	"encoding/json"
)

// EventLog is the append-only, per-room ordered sequence of draw events.
// It is owned by exactly one RoomSession and is only touched from the
// session's run loop, so it needs no locking of its own.
type EventLog struct {
	events []*DrawEvent
	// clearHorizon is the event_id of the most recent clear event,
	// or 0 if the room was never cleared. Replay starts after it.
	clearHorizon int64
}

// NewEventLog creates an empty log. The first appended event gets id 1.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append assigns the next event_id and stores the event. This is the
// single sequencing point for the room.
func (l *EventLog) Append(roomID string, authorID int64, kind Kind, payload json.RawMessage, causalSeq, targetID int64) *DrawEvent {
	ev := &DrawEvent{
		EventID:   int64(len(l.events)) + 1,
		RoomID:    roomID,
		AuthorID:  authorID,
		Kind:      kind,
		Payload:   payload,
		CausalSeq: causalSeq,
		TargetID:  targetID,
	}
	l.events = append(l.events, ev)
	if kind == KindClear {
		l.clearHorizon = ev.EventID
	}
	return ev
}

// Len returns the number of appended events.
func (l *EventLog) Len() int {
	return len(l.events)
}

// Replay returns the undoable events after the last clear whose undone
// flag is currently false, in event_id order. A late joiner rendering
// this list sees exactly the live board: strokes undone before the join
// are absent, strokes since redone are present.
func (l *EventLog) Replay(isUndone func(authorID, eventID int64) bool) []*DrawEvent {
	active := make([]*DrawEvent, 0, len(l.events))
	for _, ev := range l.events {
		if ev.EventID <= l.clearHorizon || !ev.Kind.Undoable() {
			continue
		}
		if isUndone(ev.AuthorID, ev.EventID) {
			continue
		}
		active = append(active, ev)
	}
	return active
}
