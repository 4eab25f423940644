package session

import (
	"encoding/json"

	"whiteboard-backend/internal/model"
)

// Outbound is a frame sent to a participant's connection. Type selects
// which fields are populated.
type Outbound struct {
	Type string `json:"type"` // board_state | event | history_status | error | user_joined | user_left | cursor_move | laser_pointer

	// board_state (replay on join)
	History []*DrawEvent `json:"history,omitempty"`

	// board_state / history_status
	CanUndo *bool      `json:"canUndo,omitempty"`
	CanRedo *bool      `json:"canRedo,omitempty"`
	Role    model.Role `json:"user_permission,omitempty"`

	// event
	Event *DrawEvent `json:"event,omitempty"`

	// error
	ErrorKind string `json:"error,omitempty"`
	Detail    string `json:"detail,omitempty"`

	// user_joined / user_left / cursor_move / laser_pointer
	UserID   int64           `json:"user_id,omitempty"`
	Nickname string          `json:"nickname,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func boardStateFrame(history []*DrawEvent, canUndo, canRedo bool, role model.Role) Outbound {
	return Outbound{
		Type:    "board_state",
		History: history,
		CanUndo: &canUndo,
		CanRedo: &canRedo,
		Role:    role,
	}
}

func eventFrame(ev *DrawEvent) Outbound {
	return Outbound{Type: "event", Event: ev}
}

func historyStatusFrame(canUndo, canRedo bool, role model.Role) Outbound {
	return Outbound{
		Type:    "history_status",
		CanUndo: &canUndo,
		CanRedo: &canRedo,
		Role:    role,
	}
}

// ErrorFrame builds the per-connection error report for a failed action.
// Exported so the gateway can reuse the same shape for parse failures.
func ErrorFrame(err error, detail string) Outbound {
	return Outbound{Type: "error", ErrorKind: errorKind(err), Detail: detail}
}

func presenceFrame(typ string, userID int64, nickname string, role model.Role) Outbound {
	return Outbound{Type: typ, UserID: userID, Nickname: nickname, Role: role}
}

func ephemeralFrame(typ string, userID int64, nickname string, data json.RawMessage) Outbound {
	return Outbound{Type: typ, UserID: userID, Nickname: nickname, Data: data}
}
