package session

import (
	"github.com/google/uuid"

	"whiteboard-backend/internal/model"
)

// Participant is the handle a RoomSession holds for one live connection.
// It is owned by exactly one session for its lifetime; the session is the
// only writer to the outbound channel and the only closer of it. The
// gateway drains Outbound() and writes frames to the transport.
type Participant struct {
	ID       string
	UserID   int64
	Nickname string

	// role is the cached effective role, read and written only inside
	// the session's run loop. It is re-resolved periodically and on
	// roles-changed notifications.
	role model.Role

	out    chan Outbound
	closed bool
}

func newParticipant(userID int64, nickname string, role model.Role, buffer int) *Participant {
	return &Participant{
		ID:       uuid.New().String(),
		UserID:   userID,
		Nickname: nickname,
		role:     role,
		out:      make(chan Outbound, buffer),
	}
}

// Outbound is the stream of frames for this connection. It is closed when
// the participant is removed from the room.
func (p *Participant) Outbound() <-chan Outbound {
	return p.out
}

// send enqueues without blocking. Returning false means the participant's
// buffer overflowed and the session must drop them; one slow client never
// stalls the room.
func (p *Participant) send(msg Outbound) bool {
	if p.closed {
		return false
	}
	select {
	case p.out <- msg:
		return true
	default:
		return false
	}
}

// close is called from the run loop exactly once per participant.
func (p *Participant) close() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.out)
}
