package session

// undoEntry tracks one undoable event of one author. The undone flag is
// only ever toggled by the owning author through the stack discipline
// below, never by random access.
type undoEntry struct {
	eventID int64
	undone  bool
}

// UndoManager keeps the per-author undo stacks for one room. Entries are
// pushed in append order; undo marks the most recent active entry, redo
// restores the most recently undone one. A fresh action on top of undone
// entries blocks redo for everything beneath it. Only touched from the
// session's run loop.
type UndoManager struct {
	stacks  map[int64][]*undoEntry
	byEvent map[int64]*undoEntry
}

// NewUndoManager creates an empty manager.
func NewUndoManager() *UndoManager {
	return &UndoManager{
		stacks:  make(map[int64][]*undoEntry),
		byEvent: make(map[int64]*undoEntry),
	}
}

// Record pushes a new active entry for the author's event.
func (m *UndoManager) Record(authorID, eventID int64) {
	e := &undoEntry{eventID: eventID}
	m.stacks[authorID] = append(m.stacks[authorID], e)
	m.byEvent[eventID] = e
}

// Undo marks the author's most recent active entry as undone and returns
// its event_id.
func (m *UndoManager) Undo(authorID int64) (int64, error) {
	stack := m.stacks[authorID]
	for i := len(stack) - 1; i >= 0; i-- {
		if !stack[i].undone {
			stack[i].undone = true
			return stack[i].eventID, nil
		}
	}
	return 0, ErrEmptyUndoStack
}

// Redo restores the author's most recently undone entry and returns its
// event_id. Undos happen top-down, so the most recently undone entry is
// the deepest one in the contiguous undone run at the top of the stack.
// Any active entry on top means a fresh action superseded the undos and
// nothing can be redone.
func (m *UndoManager) Redo(authorID int64) (int64, error) {
	stack := m.stacks[authorID]
	if len(stack) == 0 || !stack[len(stack)-1].undone {
		return 0, ErrNothingToRedo
	}
	i := len(stack) - 1
	for i > 0 && stack[i-1].undone {
		i--
	}
	stack[i].undone = false
	return stack[i].eventID, nil
}

// IsUndone reports the current undone flag of the author's event.
func (m *UndoManager) IsUndone(authorID, eventID int64) bool {
	e, ok := m.byEvent[eventID]
	return ok && e.undone
}

// CanUndo reports whether the author has any active entry.
func (m *UndoManager) CanUndo(authorID int64) bool {
	stack := m.stacks[authorID]
	for i := len(stack) - 1; i >= 0; i-- {
		if !stack[i].undone {
			return true
		}
	}
	return false
}

// CanRedo reports whether the author's top entry is undone.
func (m *UndoManager) CanRedo(authorID int64) bool {
	stack := m.stacks[authorID]
	return len(stack) > 0 && stack[len(stack)-1].undone
}

// Reset drops every author's stack. Used when the canvas is cleared;
// cleared strokes cannot come back through redo.
func (m *UndoManager) Reset() {
	m.stacks = make(map[int64][]*undoEntry)
	m.byEvent = make(map[int64]*undoEntry)
}
