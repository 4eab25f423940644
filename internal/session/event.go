package session

import (
	"encoding/json"
)

// Kind classifies a draw event.
type Kind string

const (
	KindStrokeAdd Kind = "stroke_add"
	KindShapeAdd  Kind = "shape_add"
	KindTextAdd   Kind = "text_add"
	KindClear     Kind = "clear"

	// Synthetic kinds produced by undo/redo. They are sequenced and
	// broadcast like any other event so no participant ever sees
	// history rewritten out of order.
	KindStrokeRemove  Kind = "stroke_remove"
	KindStrokeRestore Kind = "stroke_restore"
)

// Undoable reports whether an event of this kind enters its author's undo stack.
func (k Kind) Undoable() bool {
	switch k {
	case KindStrokeAdd, KindShapeAdd, KindTextAdd:
		return true
	default:
		return false
	}
}

// Valid reports whether k is a kind clients may submit via apply.
func (k Kind) Valid() bool {
	switch k {
	case KindStrokeAdd, KindShapeAdd, KindTextAdd, KindClear:
		return true
	default:
		return false
	}
}

// DrawEvent is one atomic, ordered mutation to a room's canvas.
// EventID is assigned by the room session at append time and is strictly
// increasing and gap-free per room, starting at 1. Immutable once appended.
type DrawEvent struct {
	EventID   int64           `json:"event_id"`
	RoomID    string          `json:"room_id"`
	AuthorID  int64           `json:"author_id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CausalSeq int64           `json:"causal_seq"`

	// TargetID is set on stroke_remove/stroke_restore events and names
	// the event whose undone flag was toggled.
	TargetID int64 `json:"target_id,omitempty"`
}
