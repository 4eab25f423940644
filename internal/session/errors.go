package session

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is reported to the requester only; the connection stays open.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRoomFull rejects a join beyond the room's participant limit.
	ErrRoomFull = errors.New("room is full")

	// ErrSessionClosed means the session was evicted between lookup and use.
	// Callers should re-fetch the session from the registry and retry.
	ErrSessionClosed = errors.New("room session closed")

	// ErrInvalidAction covers malformed or semantically impossible actions.
	// Undo/redo edge cases wrap it so errors.Is(err, ErrInvalidAction) holds.
	ErrInvalidAction = errors.New("invalid action")

	ErrEmptyUndoStack = fmt.Errorf("%w: nothing to undo", ErrInvalidAction)
	ErrNothingToRedo  = fmt.Errorf("%w: nothing to redo", ErrInvalidAction)
)

// errorKind maps a session error to the wire-level error kind string.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrEmptyUndoStack):
		return "empty_undo_stack"
	case errors.Is(err, ErrNothingToRedo):
		return "nothing_to_redo"
	case errors.Is(err, ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	default:
		return "internal"
	}
}
