// Package server contains the HTTP handlers exposing the messaging core under /api.
package server

import (
	"context"
	"log/slog"
	"time"

	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/observability"
	"parley/internal/repository"
	"parley/internal/service"
	"parley/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// multipart framing on top of the raw file bytes
const uploadOverheadBytes = 1 << 20

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	notifier       *notifications.Notifier

	directory     *service.DirectoryService
	relationships *service.RelationshipService
	messages      *service.MessageService
	groups        *service.GroupService
	conversations *service.ConversationService
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient and files may be nil: caching, fan-out and rate limits are then skipped and
// file uploads fail with a storage error.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, files storage.FileStore) (*Server, error) {
	middleware.InitMiddleware(cfg)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("parley-api"),
	}

	infra := service.Infra{
		DB:              db,
		Files:           files,
		HistoryPageSize: cfg.HistoryPageSize,
		ListCacheTTL:    cfg.ConversationCacheTTL,
	}
	if redisClient != nil {
		s.notifier = notifications.NewNotifier(redisClient)
		infra.Cache = cache.NewStore(redisClient, "conversations")
		infra.Notifier = s.notifier
	}

	userRepo := repository.NewUserRepository(db)
	relRepo := repository.NewRelationshipRepository(db)
	msgRepo := repository.NewDirectMessageRepository(db)
	visRepo := repository.NewVisibilityRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	convRepo := repository.NewConversationRepository(db)

	s.directory = service.NewDirectoryService(userRepo)
	s.relationships = service.NewRelationshipService(relRepo, userRepo, db, infra.Cache)
	s.messages = service.NewMessageService(msgRepo, relRepo, userRepo, visRepo, infra)
	s.groups = service.NewGroupService(groupRepo, userRepo, infra)
	s.conversations = service.NewConversationService(convRepo, msgRepo, userRepo, relRepo, infra)

	return s, nil
}

// NewApp builds the fiber application with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	bodyLimit := fiber.DefaultBodyLimit
	if limit := int(s.config.UploadMaxBytes) + uploadOverheadBytes; limit > bodyLimit {
		bodyLimit = limit
	}

	app := fiber.New(fiber.Config{
		AppName:   "parley",
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
			}
			observability.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return respondWithError(c, models.NewStorageError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and trace ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api", middleware.AuthRequired, middleware.ContextMiddleware())
	sendLimit := s.sendLimiter()

	users := api.Group("/users")
	users.Get("/me", s.GetMe)
	users.Get("/search", s.SearchUsers)
	users.Get("/:id", s.GetUser)

	contacts := api.Group("/contacts")
	contacts.Get("/", s.ListContacts)
	contacts.Get("/:userId", s.GetContactStatus)
	contacts.Post("/:userId", s.AddContact)
	contacts.Delete("/:userId", s.RemoveContact)

	blocks := api.Group("/blocks")
	blocks.Get("/", s.ListBlocks)
	blocks.Get("/:userId", s.GetBlockStatus)
	blocks.Post("/:userId", s.BlockUser)
	blocks.Delete("/:userId", s.UnblockUser)

	direct := api.Group("/direct")
	direct.Get("/:userId/messages", s.GetDirectHistory)
	direct.Post("/:userId/messages", sendLimit, s.SendDirectMessage)
	direct.Post("/:userId/files", sendLimit, s.SendDirectFile)
	direct.Post("/:userId/read", s.MarkDirectRead)
	direct.Delete("/:userId", s.HideConversation)

	messages := api.Group("/messages")
	messages.Patch("/:id", s.EditDirectMessage)
	messages.Delete("/:id", s.DeleteDirectMessage)

	groups := api.Group("/groups")
	groups.Post("/", s.CreateGroup)
	// Specific routes before generic /:id
	groups.Get("/invitations", s.ListInvitations)
	groups.Patch("/messages/:messageId", s.EditGroupMessage)
	groups.Delete("/messages/:messageId", s.DeleteGroupMessage)
	groups.Get("/:id", s.GetGroup)
	groups.Patch("/:id", s.UpdateGroup)
	groups.Delete("/:id", s.DeleteGroup)
	groups.Post("/:id/members", s.AddGroupMembers)
	groups.Delete("/:id/members/:userId", s.RemoveGroupMember)
	groups.Put("/:id/members/:userId/role", s.SetGroupRole)
	groups.Post("/:id/invitation", s.RespondToInvitation)
	groups.Post("/:id/leave", s.LeaveGroup)
	groups.Get("/:id/messages", s.GetGroupHistory)
	groups.Post("/:id/messages", sendLimit, s.SendGroupMessage)
	groups.Post("/:id/files", sendLimit, s.SendGroupFile)

	api.Get("/conversations", s.ListConversations)
}

// sendLimiter guards the send endpoints. Without Redis there is no counter store and sends are unlimited.
func (s *Server) sendLimiter() fiber.Handler {
	if s.redis == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return middleware.RateLimit(s.redis, s.config.RateLimitMessages, s.config.RateLimitWindow, "send")
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: without it the list cache and fan-out are skipped.
	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	// Delivery to connected clients belongs to the transport service; the subscriber
	// only traces what was fanned out.
	if s.notifier != nil {
		go func() {
			err := s.notifier.StartUserSubscriber(s.shutdownCtx, func(userID uint, payload string) {
				observability.Logger.Debug("event fanned out",
					slog.Uint64("user_id", uint64(userID)),
					slog.Int("bytes", len(payload)))
			})
			if err != nil {
				observability.Logger.Error("failed to start event subscriber", slog.String("error", err.Error()))
			}
		}()
	}

	observability.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			observability.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			observability.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	observability.Logger.Info("server shutdown complete")
	return nil
}
