package session

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFrameKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{ErrEmptyUndoStack, "empty_undo_stack"},
		{ErrNothingToRedo, "nothing_to_redo"},
		{ErrInvalidAction, "invalid_action"},
		{ErrRoomFull, "room_full"},
		{ErrPermissionDenied, "permission_denied"},
		{errors.New("boom"), "internal"},
		// Wrapped errors keep their kind.
		{fmt.Errorf("%w: extra context", ErrPermissionDenied), "permission_denied"},
	}
	for _, c := range cases {
		frame := ErrorFrame(c.err, "detail")
		if frame.Type != "error" {
			t.Errorf("frame type = %q, want error", frame.Type)
		}
		if frame.ErrorKind != c.kind {
			t.Errorf("ErrorFrame(%v) kind = %q, want %q", c.err, frame.ErrorKind, c.kind)
		}
	}
}

func TestUndoErrorsAreInvalidActions(t *testing.T) {
	if !errors.Is(ErrEmptyUndoStack, ErrInvalidAction) {
		t.Error("ErrEmptyUndoStack should wrap ErrInvalidAction")
	}
	if !errors.Is(ErrNothingToRedo, ErrInvalidAction) {
		t.Error("ErrNothingToRedo should wrap ErrInvalidAction")
	}
}
