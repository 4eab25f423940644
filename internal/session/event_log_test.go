package session

import (
	"encoding/json"
	"testing"
)

func TestAppendAssignsGapFreeIDs(t *testing.T) {
	l := NewEventLog()

	for i := 1; i <= 5; i++ {
		ev := l.Append("room-1", 1, KindStrokeAdd, json.RawMessage(`{}`), int64(i), 0)
		if ev.EventID != int64(i) {
			t.Errorf("event %d got id %d", i, ev.EventID)
		}
	}
	if l.Len() != 5 {
		t.Errorf("Len() = %d, want 5", l.Len())
	}
}

func TestReplaySkipsUndoneAndSynthetic(t *testing.T) {
	l := NewEventLog()
	l.Append("room-1", 1, KindStrokeAdd, nil, 1, 0) // id 1
	l.Append("room-1", 1, KindStrokeAdd, nil, 2, 0) // id 2
	l.Append("room-1", 1, KindStrokeRemove, nil, 3, 2)
	l.Append("room-1", 2, KindTextAdd, nil, 1, 0) // id 4

	undone := map[int64]bool{2: true}
	replay := l.Replay(func(_, eventID int64) bool { return undone[eventID] })

	if len(replay) != 2 {
		t.Fatalf("replay has %d events, want 2", len(replay))
	}
	if replay[0].EventID != 1 || replay[1].EventID != 4 {
		t.Errorf("replay ids = [%d %d], want [1 4]", replay[0].EventID, replay[1].EventID)
	}
}

func TestReplayStartsAfterClear(t *testing.T) {
	l := NewEventLog()
	l.Append("room-1", 1, KindStrokeAdd, nil, 1, 0)
	l.Append("room-1", 1, KindClear, nil, 2, 0)
	after := l.Append("room-1", 2, KindShapeAdd, nil, 1, 0)

	replay := l.Replay(func(_, _ int64) bool { return false })

	if len(replay) != 1 || replay[0] != after {
		t.Fatalf("replay should contain only the post-clear event, got %d events", len(replay))
	}

	// Second clear moves the horizon forward.
	l.Append("room-1", 1, KindClear, nil, 3, 0)
	if replay := l.Replay(func(_, _ int64) bool { return false }); len(replay) != 0 {
		t.Errorf("replay after second clear has %d events, want 0", len(replay))
	}
}

func TestKindClassification(t *testing.T) {
	undoable := []Kind{KindStrokeAdd, KindShapeAdd, KindTextAdd}
	for _, k := range undoable {
		if !k.Undoable() || !k.Valid() {
			t.Errorf("%s should be undoable and valid", k)
		}
	}
	if KindClear.Undoable() {
		t.Error("clear must not enter the undo stack")
	}
	if !KindClear.Valid() {
		t.Error("clear is client-submittable")
	}
	for _, k := range []Kind{KindStrokeRemove, KindStrokeRestore} {
		if k.Valid() {
			t.Errorf("%s is synthetic and must not be client-submittable", k)
		}
		if k.Undoable() {
			t.Errorf("%s must not be undoable", k)
		}
	}
	if Kind("scribble").Valid() {
		t.Error("unknown kinds must be rejected")
	}
}
