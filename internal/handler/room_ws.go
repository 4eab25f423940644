package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/session"
)

// RoomWSHandler 룸 세션 WebSocket 게이트웨이
// 커넥션당 read pump 하나(이 핸들러)와 writer 고루틴 하나를 돌린다.
// 시퀀싱/브로드캐스트는 전부 세션 엔진 몫이고 여기는 배관만 한다.
type RoomWSHandler struct {
	cfg      *config.Config
	registry *session.Registry
	redis    *cache.RedisClient
}

// NewRoomWSHandler RoomWSHandler 생성
func NewRoomWSHandler(cfg *config.Config, registry *session.Registry, redis *cache.RedisClient) *RoomWSHandler {
	return &RoomWSHandler{cfg: cfg, registry: registry, redis: redis}
}

// Inbound 클라이언트 → 서버 프레임
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// wsConn 동시 쓰기 방지 래퍼 (writer 고루틴 + read pump의 에러 응답)
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	timeout time.Duration
}

func (w *wsConn) writeJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	return w.conn.WriteJSON(v)
}

// HandleWebSocket 업그레이드 이후의 커넥션 수명 전체를 처리한다.
// Locals는 업그레이드 미들웨어에서 검증이 끝난 값들이다.
func (h *RoomWSHandler) HandleWebSocket(conn *websocket.Conn) {
	roomID := conn.Locals("roomID").(string)
	userID := conn.Locals("userID").(int64)
	nickname := conn.Locals("nickname").(string)
	maxParticipants := conn.Locals("maxParticipants").(int)

	wc := &wsConn{conn: conn, timeout: h.cfg.WebSocket.WriteTimeout}
	defer conn.Close()

	p, sess, err := h.join(roomID, maxParticipants, userID, nickname)
	if err != nil {
		wc.writeJSON(session.ErrorFrame(err, "join rejected"))
		return
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		h.redis.AddPresence(ctx, roomID, userID)
		cancel()
	}
	defer func() {
		sess.Leave(p)
		if h.redis != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			h.redis.RemovePresence(ctx, roomID, userID)
			cancel()
		}
	}()

	// writer: 세션 브로드캐스트를 소켓으로 내보낸다. 채널이 닫히면
	// (퇴장, 강제 퇴장, 세션 파기) 소켓도 닫아서 read pump를 깨운다.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range p.Outbound() {
			if err := wc.writeJSON(frame); err != nil {
				conn.Close()
				return
			}
		}
		conn.Close()
	}()

	h.readPump(wc, sess, p)
	<-writerDone
}

// join 세션 조회 + 입장. 드레인 타이머와 경합해 막 파기된 세션을
// 잡으면 ErrSessionClosed가 나오므로 새 세션으로 재시도한다.
func (h *RoomWSHandler) join(roomID string, maxParticipants int, userID int64, nickname string) (*session.Participant, *session.RoomSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for attempt := 0; attempt < 3; attempt++ {
		sess, err := h.registry.GetOrCreate(roomID, maxParticipants)
		if err != nil {
			return nil, nil, err
		}
		p, err := sess.Join(ctx, userID, nickname)
		if err == nil {
			return p, sess, nil
		}
		if !errors.Is(err, session.ErrSessionClosed) {
			return nil, nil, err
		}
	}
	return nil, nil, session.ErrSessionClosed
}

func (h *RoomWSHandler) readPump(wc *wsConn, sess *session.RoomSession, p *session.Participant) {
	ctx := context.Background()

	for {
		_, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Room %s] Read error from user %d: %v", sess.RoomID(), p.UserID, err)
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			wc.writeJSON(session.ErrorFrame(session.ErrInvalidAction, "malformed message"))
			continue
		}

		switch msg.Type {
		case "ping":
			wc.writeJSON(map[string]string{"type": "pong"})

		case "stroke_add", "shape_add", "text_add", "clear":
			if _, err := sess.Apply(ctx, p, session.Kind(msg.Type), msg.Payload); err != nil {
				if errors.Is(err, session.ErrSessionClosed) {
					return
				}
				wc.writeJSON(session.ErrorFrame(err, ""))
			}

		case "undo":
			if _, err := sess.Undo(ctx, p); err != nil {
				if errors.Is(err, session.ErrSessionClosed) {
					return
				}
				wc.writeJSON(session.ErrorFrame(err, ""))
			}

		case "redo":
			if _, err := sess.Redo(ctx, p); err != nil {
				if errors.Is(err, session.ErrSessionClosed) {
					return
				}
				wc.writeJSON(session.ErrorFrame(err, ""))
			}

		case "cursor_move", "laser_pointer":
			// 뷰어도 커서는 보인다. 시퀀싱 없이 즉시 중계.
			sess.Relay(p, msg.Type, msg.Data)

		default:
			wc.writeJSON(session.ErrorFrame(session.ErrInvalidAction, "unknown message type"))
		}
	}
}
