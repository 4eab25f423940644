package store

import (
	"context"
	"log"
	"sync"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/session"
)

// EventStore persists sequenced room events to Postgres in the
// background. Enqueue never blocks the room session: events go through a
// buffered queue and a single writer goroutine. When the queue is full
// the event is dropped with a log line; the in-memory session log keeps
// serving the live room either way.
type EventStore struct {
	db    *gorm.DB
	queue chan *session.DrawEvent

	closeOnce sync.Once
	done      chan struct{}
}

// NewEventStore starts the background writer.
func NewEventStore(db *gorm.DB, buffer int) *EventStore {
	if buffer <= 0 {
		buffer = 512
	}
	s := &EventStore{
		db:    db,
		queue: make(chan *session.DrawEvent, buffer),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue implements session.EventSink.
func (s *EventStore) Enqueue(ev *session.DrawEvent) {
	select {
	case s.queue <- ev:
	default:
		log.Printf("[EventStore] Queue full, dropping event %d for room %s", ev.EventID, ev.RoomID)
	}
}

func (s *EventStore) run() {
	for ev := range s.queue {
		record := &model.RoomEvent{
			RoomID:    ev.RoomID,
			EventID:   ev.EventID,
			AuthorID:  ev.AuthorID,
			Kind:      string(ev.Kind),
			Payload:   string(ev.Payload),
			CausalSeq: ev.CausalSeq,
			TargetID:  ev.TargetID,
		}
		if err := s.db.Create(record).Error; err != nil {
			log.Printf("[EventStore] Failed to persist event %d for room %s: %v", ev.EventID, ev.RoomID, err)
		}
	}
	close(s.done)
}

// Close flushes queued events and stops the writer.
func (s *EventStore) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	<-s.done
}

// RoomHistory returns the persisted events of a room after the given
// event id, oldest first, capped at limit.
func (s *EventStore) RoomHistory(ctx context.Context, roomID string, afterEventID int64, limit int) ([]model.RoomEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var events []model.RoomEvent
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND event_id > ?", roomID, afterEventID).
		Order("event_id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
