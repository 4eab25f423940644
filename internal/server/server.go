package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/permission"
	"whiteboard-backend/internal/session"
	"whiteboard-backend/internal/store"
)

// Server Fiber 서버 래퍼
type Server struct {
	app           *fiber.App
	cfg           *config.Config
	db            *gorm.DB
	redis         *cache.RedisClient
	registry      *session.Registry
	eventStore    *store.EventStore
	authHandler   *handler.AuthHandler
	roomHandler   *handler.RoomHandler
	roomWSHandler *handler.RoomWSHandler
	healthHandler *handler.HealthHandler
	jwtManager    *auth.JWTManager

	subCancel context.CancelFunc
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, db *gorm.DB, redisClient *cache.RedisClient) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Whiteboard Session Gateway",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // 10MB
		DisableStartupMessage: false,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	googleAuth := auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)

	// 세션 엔진 초기화
	eventStore := store.NewEventStore(db, cfg.Session.SinkBuffer)
	resolver := permission.NewResolver(db)
	registry := session.NewRegistry(session.Config{
		DrainGrace:     cfg.Session.DrainGrace,
		OutboundBuffer: cfg.Session.OutboundBuffer,
		CommandBuffer:  cfg.Session.CommandBuffer,
		RoleRefresh:    cfg.Session.RoleRefresh,
	}, resolver, eventStore)

	return &Server{
		app:           app,
		cfg:           cfg,
		db:            db,
		redis:         redisClient,
		registry:      registry,
		eventStore:    eventStore,
		authHandler:   handler.NewAuthHandler(db, jwtManager, googleAuth, cfg.Auth.SecureCookie),
		roomHandler:   handler.NewRoomHandler(db, redisClient, registry, eventStore, resolver),
		roomWSHandler: handler.NewRoomWSHandler(cfg, registry, redisClient),
		healthHandler: handler.NewHealthHandler(db, redisClient, registry),
		jwtManager:    jwtManager,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Auth 라우트 그룹
	authGroup := s.app.Group("/auth")
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", auth.AuthMiddleware(s.jwtManager), s.authHandler.Logout)
	authGroup.Get("/me", auth.AuthMiddleware(s.jwtManager), s.authHandler.GetMe)

	// Room 라우트 그룹 (인증 필요)
	roomGroup := s.app.Group("/api/rooms", auth.AuthMiddleware(s.jwtManager))
	roomGroup.Post("/", s.roomHandler.CreateRoom)
	roomGroup.Get("/", s.roomHandler.ListRooms)
	roomGroup.Get("/:id", s.roomHandler.GetRoom)
	roomGroup.Get("/:id/access", s.roomHandler.GetRoomAccess)
	roomGroup.Put("/:id", s.roomHandler.UpdateRoom)
	roomGroup.Delete("/:id", s.roomHandler.DeleteRoom)
	roomGroup.Post("/:id/join", s.roomHandler.JoinRoom)
	roomGroup.Delete("/:id/leave", s.roomHandler.LeaveRoom)
	roomGroup.Get("/:id/participants", s.roomHandler.ListParticipants)
	roomGroup.Put("/:id/participants/:userId/role", s.roomHandler.UpdateParticipantRole)
	roomGroup.Get("/:id/events", s.roomHandler.ListEvents)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 룸 세션 엔드포인트 (UUID 또는 초대 코드)
	s.app.Get("/ws/rooms/:id", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// JWT 검증 (헤더/쿠키/쿼리 ?token=)
		token := auth.TokenFromRequest(c)
		if token == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		claims, err := s.jwtManager.ValidateAccessToken(token)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		// 룸 해석: UUID가 아니면 초대 코드로 조회
		idOrCode := c.Params("id")
		var room model.Room
		query := s.db.Select("id", "max_participants")
		if _, err := uuid.Parse(idOrCode); err == nil {
			query = query.Where("id = ?", idOrCode)
		} else {
			query = query.Where("code = ?", idOrCode)
		}
		if err := query.First(&room).Error; err != nil {
			return c.SendStatus(fiber.StatusNotFound)
		}

		c.Locals("roomID", room.ID)
		c.Locals("maxParticipants", room.MaxParticipants)
		c.Locals("userID", claims.UserID)
		c.Locals("nickname", claims.Nickname)

		return c.Next()
	}, websocket.New(s.roomWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	// 다른 노드의 권한 변경 공지 구독
	if s.redis != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.subCancel = cancel
		s.redis.SubscribeRolesChanged(ctx, s.registry.NotifyRolesChanged)
	}

	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.Shutdown(); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Whiteboard Session Gateway starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/rooms/:id", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료: 라이브 세션과 이벤트 큐까지 정리한다.
func (s *Server) Shutdown() error {
	if s.subCancel != nil {
		s.subCancel()
	}

	err := s.app.ShutdownWithTimeout(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.registry.Shutdown(ctx)
	s.eventStore.Close()

	return err
}
