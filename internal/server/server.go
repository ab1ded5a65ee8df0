package server

import (
	"context"
	"errors"
	"time"

	_ "loop/docs" // swagger docs
	"loop/internal/auth"
	"loop/internal/authz"
	"loop/internal/config"
	"loop/internal/featureflags"
	"loop/internal/media"
	"loop/internal/middleware"
	"loop/internal/models"
	"loop/internal/repository"
	"loop/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options carries the collaborators built outside the server.
type Options struct {
	// Verifier resolves bearer tokens. Required.
	Verifier auth.Verifier
	// Publisher receives side effects; nil drops them.
	Publisher service.Publisher
	// MediaStore persists uploads; nil disables POST /api/media.
	MediaStore media.Store
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus
	verifier       auth.Verifier
	checker        authz.Checker
	featureFlags   *featureflags.Manager

	loops         *service.LoopService
	counters      *service.CounterService
	feed          *service.FeedService
	users         *service.UserService
	circles       *service.CircleService
	comments      *service.CommentService
	gifts         *service.GiftService
	streams       *service.StreamService
	notifications *service.NotificationService
	admin         *service.AdminService
	media         *media.Service
}

// NewServer creates a Server using already-initialized dependencies.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts Options) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server: config and database are required")
	}
	if opts.Verifier == nil {
		return nil, errors.New("server: a token verifier is required")
	}

	profileRepo := repository.NewProfileRepository(db)
	followRepo := repository.NewFollowRepository(db)
	circleRepo := repository.NewCircleRepository(db)
	loopRepo := repository.NewLoopRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	interactionRepo := repository.NewInteractionRepository(db)
	checker := authz.NewChecker(profileRepo, circleRepo)
	pub := opts.Publisher

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("loop-api"),
		verifier:       opts.Verifier,
		checker:        checker,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}

	s.loops = service.NewLoopService(loopRepo, counterRepo, interactionRepo, circleRepo, followRepo, checker, pub, cfg.MaxBranchDepth)
	s.counters = service.NewCounterService(counterRepo, interactionRepo, loopRepo, circleRepo, followRepo, checker, pub)
	s.feed = service.NewFeedService(
		repository.NewFeedRepository(db), counterRepo, interactionRepo, circleRepo,
		time.Duration(cfg.TrendingWindowHours)*time.Hour,
		time.Duration(cfg.TrendingCacheSeconds)*time.Second,
	)
	s.users = service.NewUserService(profileRepo, followRepo, checker, pub)
	s.circles = service.NewCircleService(circleRepo, checker)
	s.comments = service.NewCommentService(repository.NewCommentRepository(db), counterRepo, loopRepo, circleRepo, followRepo, checker, pub)
	s.gifts = service.NewGiftService(repository.NewGiftRepository(db), loopRepo, circleRepo, followRepo, checker, pub)
	s.streams = service.NewStreamService(repository.NewStreamRepository(db), followRepo, checker, pub)
	s.notifications = service.NewNotificationService(repository.NewNotificationRepository(db), pub)
	s.admin = service.NewAdminService(profileRepo, repository.NewOutboxRepository(db), checker)
	s.media = media.NewService(opts.MediaStore, cfg.MediaMaxUploadBytes())

	return s, nil
}

// App builds the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Loop API",
		BodyLimit: int(s.media.MaxBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				switch fe.Code {
				case fiber.StatusNotFound:
					return models.RespondWithError(c, fe.Code, models.NewNotFoundError("Route", c.Path()))
				case fiber.StatusRequestEntityTooLarge:
					return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Request body too large"))
				case fiber.StatusMethodNotAllowed:
					return models.RespondWithError(c, fe.Code, models.NewValidationError("Method not allowed"))
				}
			}
			return respondError(c, err)
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Server span and trace id, before the context middleware copies them
	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and Trace ID
	app.Use(middleware.ContextMiddleware())

	// Every store call inherits this deadline
	app.Use(middleware.RequestTimeout(s.config.RequestTimeout()))

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests or probes.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Path() == "/metrics" ||
				c.Path() == "/health/live" || c.Path() == "/health/ready"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
				"code":  "RATE_LIMITED",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	optional := s.OptionalAuth()
	required := s.AuthRequired()

	// Loops. Static segments before /:id.
	loops := api.Group("/loops")
	loops.Get("/feed", optional, s.GetFeed)
	loops.Post("/", required, middleware.RateLimit(s.redis, 30, time.Minute, "create_loop"), s.CreateLoop)
	loops.Post("/branch", required, middleware.RateLimit(s.redis, 30, time.Minute, "create_branch"), s.CreateBranch)
	loops.Post("/:id/interactions", required, middleware.RateLimit(s.redis, 240, time.Minute, "interact"), s.Interact)
	loops.Get("/:id/branches", optional, s.GetBranches)
	loops.Get("/:id/ancestors", optional, s.GetAncestors)
	loops.Get("/:id/comments", optional, s.GetComments)
	loops.Post("/:id/comments", required, middleware.RateLimit(s.redis, 20, time.Minute, "create_comment"), s.CreateComment)
	loops.Delete("/:id/comments/:commentId", required, s.DeleteComment)
	loops.Post("/:id/gifts", required, middleware.RateLimit(s.redis, 20, time.Minute, "send_gift"), s.SendGift)
	loops.Get("/:id", optional, s.GetLoop)
	loops.Delete("/:id", required, s.DeleteLoop)

	api.Get("/gifts/catalog", s.GetGiftCatalog)

	// Users. /me and /search before /:id.
	users := api.Group("/users")
	users.Get("/me", required, s.GetMyProfile)
	users.Put("/me", required, s.UpdateMyProfile)
	users.Get("/me/gifts", required, s.GetMyGifts)
	users.Get("/search", optional, middleware.RateLimit(s.redis, 30, time.Minute, "search"), s.SearchUsers)
	users.Get("/:id/loops", optional, s.GetUserLoops)
	users.Get("/:id/followers", optional, s.GetFollowers)
	users.Get("/:id/following", optional, s.GetFollowing)
	users.Get("/:id/feed.atom", s.GetUserAtomFeed)
	users.Get("/:id/feed.rss", s.GetUserRSSFeed)
	users.Post("/:id/follow", required, middleware.RateLimit(s.redis, 60, time.Minute, "follow"), s.Follow)
	users.Delete("/:id/follow", required, s.Unfollow)
	users.Get("/:id", optional, s.GetUserProfile)

	// Circles
	circles := api.Group("/circles")
	circles.Get("/", s.GetCircles)
	circles.Post("/", required, middleware.RateLimit(s.redis, 5, 10*time.Minute, "create_circle"), s.CreateCircle)
	circles.Post("/:id/join", required, s.JoinCircle)
	circles.Delete("/:id/members/me", required, s.LeaveCircle)
	circles.Get("/:id/members", optional, s.GetCircleMembers)
	circles.Get("/:id/loops", optional, s.GetCircleLoops)
	circles.Get("/:slug", s.GetCircleBySlug)

	// Notifications
	notifications := api.Group("/notifications", required)
	notifications.Get("/", s.GetNotifications)
	notifications.Get("/unread-count", s.GetUnreadCount)
	notifications.Post("/read-all", s.MarkAllNotificationsRead)
	notifications.Post("/:id/read", s.MarkNotificationRead)

	// Streams
	streams := api.Group("/streams")
	streams.Get("/live", s.GetLiveStreams)
	streams.Post("/", required, s.CreateStream)
	streams.Post("/:id/go-live", required, s.GoLive)
	streams.Post("/:id/end", required, s.EndStream)

	// Media
	api.Post("/media", required, middleware.RateLimit(s.redis, 10, time.Minute, "media_upload"), s.UploadMedia)

	// Admin. Services re-check capabilities per action.
	admin := api.Group("/admin", required)
	admin.Put("/users/:id/role", s.SetUserRole)
	admin.Post("/users/:id/ban", s.BanUser)
	admin.Delete("/users/:id/ban", s.UnbanUser)
	admin.Get("/outbox", s.GetOutbox)
	admin.Post("/outbox/replay", s.ReplayOutbox)
	admin.Get("/feature-flags", s.CapabilityRequired(authz.ManageUsers), s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: without
// it caches and rate limits degrade, so the API stays ready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case dbStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case redisStatus != "healthy":
		overallStatus = "degraded"
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
