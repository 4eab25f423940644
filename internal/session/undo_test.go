package session

import (
	"errors"
	"testing"
)

func TestUndoMarksMostRecentActive(t *testing.T) {
	m := NewUndoManager()
	m.Record(1, 10)
	m.Record(1, 11)
	m.Record(1, 12)

	id, err := m.Undo(1)
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if id != 12 {
		t.Errorf("Undo returned %d, want 12", id)
	}

	id, err = m.Undo(1)
	if err != nil {
		t.Fatalf("second Undo failed: %v", err)
	}
	if id != 11 {
		t.Errorf("second Undo returned %d, want 11", id)
	}
	if !m.IsUndone(1, 11) || !m.IsUndone(1, 12) {
		t.Error("events 11 and 12 should be undone")
	}
	if m.IsUndone(1, 10) {
		t.Error("event 10 should still be active")
	}
}

func TestRedoRestoresMostRecentlyUndone(t *testing.T) {
	m := NewUndoManager()
	m.Record(1, 10)
	m.Record(1, 11)
	m.Record(1, 12)

	// Undo order: 12, then 11. Redo must mirror: 11 first, then 12.
	m.Undo(1)
	m.Undo(1)

	id, err := m.Redo(1)
	if err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	if id != 11 {
		t.Errorf("Redo returned %d, want 11", id)
	}

	id, err = m.Redo(1)
	if err != nil {
		t.Fatalf("second Redo failed: %v", err)
	}
	if id != 12 {
		t.Errorf("second Redo returned %d, want 12", id)
	}

	if _, err := m.Redo(1); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("third Redo returned %v, want ErrNothingToRedo", err)
	}
}

func TestUndoEmptyStack(t *testing.T) {
	m := NewUndoManager()
	if _, err := m.Undo(1); !errors.Is(err, ErrEmptyUndoStack) {
		t.Errorf("Undo on empty stack returned %v, want ErrEmptyUndoStack", err)
	}
	if _, err := m.Undo(1); !errors.Is(err, ErrInvalidAction) {
		t.Error("undo stack errors should wrap ErrInvalidAction")
	}
}

func TestFreshActionBlocksRedo(t *testing.T) {
	m := NewUndoManager()
	m.Record(1, 10)
	m.Record(1, 11)
	m.Undo(1) // 11 undone

	if !m.CanRedo(1) {
		t.Fatal("CanRedo should be true after undo")
	}

	m.Record(1, 12) // fresh action on top

	if m.CanRedo(1) {
		t.Error("fresh action should kill redo availability")
	}
	if _, err := m.Redo(1); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo returned %v, want ErrNothingToRedo", err)
	}

	// The buried undone entry stays undone.
	if !m.IsUndone(1, 11) {
		t.Error("event 11 should remain undone")
	}
}

func TestUndoStacksArePerAuthor(t *testing.T) {
	m := NewUndoManager()
	m.Record(1, 10)
	m.Record(2, 11)

	id, err := m.Undo(2)
	if err != nil {
		t.Fatalf("Undo for author 2 failed: %v", err)
	}
	if id != 11 {
		t.Errorf("author 2 undid %d, want 11", id)
	}
	if m.IsUndone(1, 10) {
		t.Error("author 1's event must not be affected")
	}
	if _, err := m.Redo(1); !errors.Is(err, ErrNothingToRedo) {
		t.Error("author 1 has nothing to redo")
	}
}

func TestResetDropsAllStacks(t *testing.T) {
	m := NewUndoManager()
	m.Record(1, 10)
	m.Record(2, 11)
	m.Undo(2)

	m.Reset()

	if m.CanUndo(1) || m.CanUndo(2) {
		t.Error("no author should be able to undo after reset")
	}
	if m.CanRedo(2) {
		t.Error("no author should be able to redo after reset")
	}
	if m.IsUndone(2, 11) {
		t.Error("byEvent index should be cleared")
	}
}
