package permission

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

// Resolver 룸별 유효 권한 조회기
// 세션 엔진은 이 타입을 session.RoleResolver 인터페이스로 사용한다.
type Resolver struct {
	db *gorm.DB
}

// NewResolver Resolver 생성
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve (user, room) → 유효 권한 조회
// 우선순위: 생성자 admin > 참가자 권한 > 공개 룸 view > none.
// 룸이 없으면 none, 스토어 오류는 fail-closed로 none + error.
func (r *Resolver) Resolve(ctx context.Context, userID int64, roomID string) (model.Role, error) {
	var room model.Room
	err := r.db.WithContext(ctx).Select("id", "is_public", "created_by").
		Where("id = ?", roomID).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.RoleNone, nil
		}
		return model.RoleNone, err
	}

	// 생성자는 항상 admin
	if room.CreatedBy != nil && *room.CreatedBy == userID {
		return model.RoleAdmin, nil
	}

	var participant model.RoomParticipant
	err = r.db.WithContext(ctx).Select("permission").
		Where("room_id = ? AND user_id = ?", roomID, userID).First(&participant).Error
	if err == nil {
		return model.ParseRole(participant.Permission), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.RoleNone, err
	}

	// 참가자가 아니어도 공개 룸은 열람 가능
	if room.IsPublic {
		return model.RoleView, nil
	}

	return model.RoleNone, nil
}
