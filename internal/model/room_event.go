package model

import (
	"time"
)

// RoomEvent 시퀀싱된 드로잉 이벤트의 영속 레코드
// 룸 세션의 이벤트 로그가 원본이며, 여기는 비동기 best-effort 사본이다.
type RoomEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    string    `gorm:"type:uuid;not null;index:idx_room_event,priority:1" json:"room_id"`
	EventID   int64     `gorm:"not null;index:idx_room_event,priority:2" json:"event_id"`
	AuthorID  int64     `gorm:"not null" json:"author_id"`
	Kind      string    `gorm:"type:varchar(20);not null" json:"kind"`
	Payload   string    `gorm:"type:jsonb" json:"payload"`
	CausalSeq int64     `gorm:"default:0" json:"causal_seq"`
	TargetID  int64     `gorm:"default:0" json:"target_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	User User `gorm:"foreignKey:AuthorID" json:"user,omitempty"`
}

func (RoomEvent) TableName() string {
	return "room_events"
}
