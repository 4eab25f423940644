package model

import (
	"time"
)

// User 사용자
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname   string    `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg *string   `gorm:"type:text" json:"profile_img,omitempty"`
	Provider   *string   `gorm:"type:varchar(50)" json:"provider,omitempty"`
	ProviderID *string   `gorm:"type:varchar(255)" json:"provider_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Participations []RoomParticipant `gorm:"foreignKey:UserID" json:"participations,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Room 화이트보드 룸
type Room struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	Code            string    `gorm:"type:varchar(6);uniqueIndex;not null" json:"code"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	Description     string    `gorm:"type:text" json:"description"`
	IsPublic        bool      `gorm:"default:true" json:"is_public"`
	CreatedBy       *int64    `json:"created_by,omitempty"`
	MaxParticipants int       `gorm:"default:10" json:"max_participants"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Creator      *User             `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	Participants []RoomParticipant `gorm:"foreignKey:RoomID" json:"participants,omitempty"`
}

func (Room) TableName() string {
	return "rooms"
}

// RoomParticipant 룸 참가자 (룸별 권한 보유)
type RoomParticipant struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_room_user" json:"room_id"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_room_user" json:"user_id"`
	Permission string    `gorm:"type:varchar(10);default:'edit'" json:"permission"` // view, edit, admin
	JoinedAt   time.Time `gorm:"autoCreateTime" json:"joined_at"`

	// Relations
	Room Room `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (RoomParticipant) TableName() string {
	return "room_participants"
}
