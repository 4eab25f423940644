package handler

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/permission"
	"whiteboard-backend/internal/session"
	"whiteboard-backend/internal/store"
)

// RoomHandler 룸 CRUD 및 권한 관리 핸들러
type RoomHandler struct {
	db       *gorm.DB
	redis    *cache.RedisClient
	registry *session.Registry
	events   *store.EventStore
	resolver *permission.Resolver
}

// NewRoomHandler RoomHandler 생성
func NewRoomHandler(db *gorm.DB, redis *cache.RedisClient, registry *session.Registry, events *store.EventStore, resolver *permission.Resolver) *RoomHandler {
	return &RoomHandler{db: db, redis: redis, registry: registry, events: events, resolver: resolver}
}

// CreateRoomRequest 룸 생성 요청
type CreateRoomRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	IsPublic        *bool  `json:"is_public"`
	MaxParticipants int    `json:"max_participants"`
}

// UpdateRoomRequest 룸 수정 요청
type UpdateRoomRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

// RoomResponse 룸 응답
type RoomResponse struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	IsPublic        bool      `json:"is_public"`
	CreatedBy       *int64    `json:"created_by,omitempty"`
	MaxParticipants int       `json:"max_participants"`
	OnlineCount     int64     `json:"online_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// ParticipantResponse 참가자 응답
type ParticipantResponse struct {
	UserID     int64     `json:"user_id"`
	Nickname   string    `json:"nickname"`
	Permission string    `json:"permission"`
	JoinedAt   time.Time `json:"joined_at"`
}

const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateRoomCode 6자리 초대 코드 생성 (혼동 문자 제외)
func generateRoomCode() string {
	code := make([]byte, 6)
	for i := range code {
		code[i] = codeCharset[rand.Intn(len(codeCharset))]
	}
	return string(code)
}

func (h *RoomHandler) roomResponse(c *fiber.Ctx, room *model.Room) RoomResponse {
	var online int64
	if h.redis != nil {
		online, _ = h.redis.PresenceCount(c.Context(), room.ID)
	}
	return RoomResponse{
		ID:              room.ID,
		Code:            room.Code,
		Name:            room.Name,
		Description:     room.Description,
		IsPublic:        room.IsPublic,
		CreatedBy:       room.CreatedBy,
		MaxParticipants: room.MaxParticipants,
		OnlineCount:     online,
		CreatedAt:       room.CreatedAt,
	}
}

// CreateRoom 룸 생성 (생성자는 admin 참가자로 등록)
func (h *RoomHandler) CreateRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}
	maxParticipants := req.MaxParticipants
	if maxParticipants <= 0 || maxParticipants > 100 {
		maxParticipants = 10
	}

	room := model.Room{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Description:     req.Description,
		IsPublic:        isPublic,
		CreatedBy:       &userID,
		MaxParticipants: maxParticipants,
	}

	// 코드 충돌 시 재생성 (uniqueIndex 보장)
	var created bool
	for attempt := 0; attempt < 5; attempt++ {
		room.Code = generateRoomCode()
		err := h.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&room).Error; err != nil {
				return err
			}
			participant := model.RoomParticipant{
				RoomID:     room.ID,
				UserID:     userID,
				Permission: model.RoleAdmin.String(),
			}
			return tx.Create(&participant).Error
		})
		if err == nil {
			created = true
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("[Room] Create failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create room",
			})
		}
	}
	if !created {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to allocate room code",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(h.roomResponse(c, &room))
}

// ListRooms 공개 룸 + 내가 참가한 룸 목록
func (h *RoomHandler) ListRooms(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	var rooms []model.Room
	err := h.db.
		Distinct("rooms.*").
		Joins("LEFT JOIN room_participants ON room_participants.room_id = rooms.id AND room_participants.user_id = ?", userID).
		Where("rooms.is_public = ? OR room_participants.user_id IS NOT NULL OR rooms.created_by = ?", true, userID).
		Order("rooms.created_at DESC").
		Limit(100).
		Find(&rooms).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list rooms",
		})
	}

	out := make([]RoomResponse, 0, len(rooms))
	for i := range rooms {
		out = append(out, h.roomResponse(c, &rooms[i]))
	}
	return c.JSON(fiber.Map{"rooms": out})
}

// findRoom UUID 또는 초대 코드로 룸 조회
func (h *RoomHandler) findRoom(idOrCode string) (*model.Room, error) {
	var room model.Room
	if _, err := uuid.Parse(idOrCode); err == nil {
		if err := h.db.Where("id = ?", idOrCode).First(&room).Error; err != nil {
			return nil, err
		}
		return &room, nil
	}
	if err := h.db.Where("code = ?", idOrCode).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom 룸 단건 조회 (UUID 또는 코드)
func (h *RoomHandler) GetRoom(c *fiber.Ctx) error {
	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}
	return c.JSON(h.roomResponse(c, room))
}

// UpdateRoom 룸 정보 수정 (admin 전용)
func (h *RoomHandler) UpdateRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}
	if !h.isAdmin(c.Context(), room, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "admin permission required",
		})
	}

	var req UpdateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	updates := map[string]any{}
	if req.Name != nil && *req.Name != "" {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
	}
	if len(updates) > 0 {
		if err := h.db.Model(room).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to update room",
			})
		}
		// 공개 여부가 바뀌면 유효 권한도 바뀐다
		if _, ok := updates["is_public"]; ok {
			h.notifyRolesChanged(c.Context(), room.ID)
		}
	}

	return c.JSON(h.roomResponse(c, room))
}

// DeleteRoom 룸 삭제 (admin 전용)
func (h *RoomHandler) DeleteRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}
	if !h.isAdmin(c.Context(), room, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "admin permission required",
		})
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", room.ID).Delete(&model.RoomParticipant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", room.ID).Delete(&model.RoomEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(room).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete room",
		})
	}

	// 접속 중인 참가자는 권한 재조회에서 none이 되어 끊긴다
	h.notifyRolesChanged(c.Context(), room.ID)
	if h.redis != nil {
		h.redis.ClearPresence(c.Context(), room.ID)
	}

	return c.JSON(fiber.Map{"message": "room deleted"})
}

// GetRoomAccess 호출자의 유효 권한 조회 (세션 엔진과 같은 리졸버 사용)
func (h *RoomHandler) GetRoomAccess(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}

	role, err := h.resolver.Resolve(c.Context(), userID, room.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to resolve permission",
		})
	}
	return c.JSON(fiber.Map{
		"room_id":    room.ID,
		"permission": role.String(),
	})
}

// JoinRoom 룸 참가자 등록 (공개 룸 edit, 비공개 룸 view 기본)
func (h *RoomHandler) JoinRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}

	// 비공개 룸은 코드를 알아야 참가 가능: UUID로는 기존 참가자만
	if !room.IsPublic && c.Params("id") == room.ID {
		var count int64
		h.db.Model(&model.RoomParticipant{}).
			Where("room_id = ? AND user_id = ?", room.ID, userID).Count(&count)
		isCreator := room.CreatedBy != nil && *room.CreatedBy == userID
		if count == 0 && !isCreator {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "invite code required for private room",
			})
		}
	}

	defaultRole := model.RoleEdit
	if !room.IsPublic {
		defaultRole = model.RoleView
	}
	participant := model.RoomParticipant{
		RoomID:     room.ID,
		UserID:     userID,
		Permission: defaultRole.String(),
	}
	err = h.db.Where("room_id = ? AND user_id = ?", room.ID, userID).
		FirstOrCreate(&participant).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to join room",
		})
	}

	return c.JSON(fiber.Map{
		"room":       h.roomResponse(c, room),
		"permission": participant.Permission,
	})
}

// LeaveRoom 룸 참가자 탈퇴
func (h *RoomHandler) LeaveRoom(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}

	if room.CreatedBy != nil && *room.CreatedBy == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "creator cannot leave; delete the room instead",
		})
	}

	if err := h.db.Where("room_id = ? AND user_id = ?", room.ID, userID).
		Delete(&model.RoomParticipant{}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to leave room",
		})
	}

	h.notifyRolesChanged(c.Context(), room.ID)
	return c.JSON(fiber.Map{"message": "left room"})
}

// ListParticipants 룸 참가자 목록
func (h *RoomHandler) ListParticipants(c *fiber.Ctx) error {
	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}

	var participants []model.RoomParticipant
	if err := h.db.Preload("User").Where("room_id = ?", room.ID).
		Order("joined_at ASC").Find(&participants).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list participants",
		})
	}

	out := make([]ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		out = append(out, ParticipantResponse{
			UserID:     p.UserID,
			Nickname:   p.User.Nickname,
			Permission: p.Permission,
			JoinedAt:   p.JoinedAt,
		})
	}
	return c.JSON(fiber.Map{"participants": out})
}

// UpdateParticipantRoleRequest 권한 변경 요청
type UpdateParticipantRoleRequest struct {
	Permission string `json:"permission"`
}

// UpdateParticipantRole 참가자 권한 변경 (admin 전용)
// 변경 후 Redis로 공지해서 접속 중인 세션이 즉시 재조회하게 한다.
func (h *RoomHandler) UpdateParticipantRole(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}
	if !h.isAdmin(c.Context(), room, userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "admin permission required",
		})
	}

	targetID, err := c.ParamsInt("userId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}
	if room.CreatedBy != nil && *room.CreatedBy == int64(targetID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cannot change the creator's permission",
		})
	}

	var req UpdateParticipantRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	role := model.ParseRole(req.Permission)
	if role == model.RoleNone && req.Permission != model.RoleNone.String() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "permission must be one of none, view, edit, admin",
		})
	}

	if role == model.RoleNone {
		// none은 참가자 행 삭제와 같다
		err = h.db.Where("room_id = ? AND user_id = ?", room.ID, targetID).
			Delete(&model.RoomParticipant{}).Error
	} else {
		result := h.db.Model(&model.RoomParticipant{}).
			Where("room_id = ? AND user_id = ?", room.ID, targetID).
			Update("permission", role.String())
		err = result.Error
		if err == nil && result.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "participant not found",
			})
		}
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update permission",
		})
	}

	h.notifyRolesChanged(c.Context(), room.ID)
	return c.JSON(fiber.Map{
		"user_id":    targetID,
		"permission": role.String(),
	})
}

// ListEvents 영속화된 룸 이벤트 히스토리 (after_event_id 이후, event_id 오름차순)
func (h *RoomHandler) ListEvents(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int64)

	room, err := h.findRoom(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}

	// 열람 권한 확인: 공개 룸이거나 참가자
	if !room.IsPublic {
		var count int64
		h.db.Model(&model.RoomParticipant{}).
			Where("room_id = ? AND user_id = ?", room.ID, userID).Count(&count)
		isCreator := room.CreatedBy != nil && *room.CreatedBy == userID
		if count == 0 && !isCreator {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "no access to this room",
			})
		}
	}

	after := int64(c.QueryInt("after_event_id", 0))
	limit := c.QueryInt("limit", 500)

	events, err := h.events.RoomHistory(c.Context(), room.ID, after, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch events",
		})
	}
	return c.JSON(fiber.Map{"events": events})
}

// isAdmin 생성자이거나 admin 권한 참가자인지 확인
func (h *RoomHandler) isAdmin(ctx context.Context, room *model.Room, userID int64) bool {
	if room.CreatedBy != nil && *room.CreatedBy == userID {
		return true
	}
	var participant model.RoomParticipant
	err := h.db.WithContext(ctx).Select("permission").
		Where("room_id = ? AND user_id = ?", room.ID, userID).
		First(&participant).Error
	if err != nil {
		return false
	}
	return model.ParseRole(participant.Permission).CanAdmin()
}

// notifyRolesChanged 로컬 세션과 다른 노드에 권한 변경을 알린다.
func (h *RoomHandler) notifyRolesChanged(ctx context.Context, roomID string) {
	h.registry.NotifyRolesChanged(roomID)
	if h.redis != nil {
		if err := h.redis.PublishRolesChanged(ctx, roomID); err != nil {
			log.Printf("[Room] Roles change publish failed for %s: %v", roomID, err)
		}
	}
}
