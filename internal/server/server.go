// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "socialnet/docs" // swagger docs
	"socialnet/internal/bootstrap"
	"socialnet/internal/cache"
	"socialnet/internal/config"
	"socialnet/internal/enrichment"
	"socialnet/internal/featureflags"
	"socialnet/internal/middleware"
	"socialnet/internal/models"
	"socialnet/internal/notifications"
	"socialnet/internal/repository"
	"socialnet/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const serviceName = "socialnet-api"

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	userRepo       repository.UserRepository
	postRepo       repository.PostRepository
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	verifier       enrichment.EmailVerifier
	enricher       enrichment.NameEnricher
	userService    *service.UserService
	postService    *service.PostService
}

// NewServer connects to the database and Redis and builds a Server.
func NewServer(cfg *config.Config) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching, revocation and realtime delivery are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server requires config and database")
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics(serviceName),
		userRepo:       repository.NewUserRepository(db),
		postRepo:       repository.NewPostRepository(db),
		featureFlags:   bootstrap.FeatureFlags(cfg),
		verifier: enrichment.NewEmailVerifier(enrichment.Config{
			BaseURL: cfg.HunterBaseURL,
			APIKey:  cfg.HunterAPIKey,
			Timeout: cfg.EnrichmentTimeout,
		}),
		enricher: enrichment.NewNameEnricher(enrichment.Config{
			BaseURL: cfg.ClearbitBaseURL,
			APIKey:  cfg.ClearbitAPIKey,
			Timeout: cfg.EnrichmentTimeout,
		}),
		hub: notifications.NewHub(),
	}
	server.userService = service.NewUserService(server.userRepo, server.verifier, server.enricher, server.featureFlags)
	server.postService = service.NewPostService(server.postRepo)

	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
	}

	return server, nil
}

// NewApp builds the Fiber application with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Social Network API",
		BodyLimit: 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

const corsHeaders = "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version"

// SetupMiddleware installs the global middleware chain. Order matters:
// request ids exist before logging, and CORS answers before the limiter.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New(), requestid.New(), middleware.ContextMiddleware())
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(helmet.New(), middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     corsHeaders,
		AllowCredentials: origins != "*",
		MaxAge:           int((24 * time.Hour).Seconds()),
	}))
	app.Use(s.ipLimiter())
}

// ipLimiter is the coarse per-IP limiter in front of every route.
// A non-positive RateLimitPerMinute turns it off, and so does any APP_ENV
// that bypasses the per-resource limiters.
func (s *Server) ipLimiter() fiber.Handler {
	perMinute := s.config.RateLimitPerMinute
	return limiter.New(limiter.Config{
		Max:          perMinute,
		Expiration:   time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		Next: func(c *fiber.Ctx) bool {
			return perMinute <= 0 || c.Method() == fiber.MethodOptions || middleware.RateLimitBypassed()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	})
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Social Network API Metrics",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Public routes
	authLimit := s.config.AuthRateLimit
	api.Post("/users/signup", middleware.RateLimit(s.redis, authLimit, time.Minute, "signup"), s.Signup)
	api.Post("/token", middleware.RateLimit(s.redis, authLimit, time.Minute, "token"), s.ObtainToken)
	api.Post("/token/refresh", middleware.RateLimit(s.redis, authLimit, time.Minute, "token_refresh"), s.RefreshToken)

	// Everything below requires a valid access token or websocket ticket.
	protected := api.Group("", s.AuthRequired())
	protected.Post("/token/revoke", s.RevokeToken)

	users := protected.Group("/users")
	users.Get("/", s.GetAllUsers)
	// Specific routes before generic /:id
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Patch("/me", s.UpdateMyProfile)
	users.Get("/least_favorite", s.GetLeastFavoriteUsers)
	users.Get("/:id", s.GetUserProfile)
	users.Delete("/:id", s.DeleteUser)

	posts := protected.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", s.CreatePost)
	// Specific /:id/:action routes before generic /:id
	posts.Post("/:id/like", s.LikePost)
	posts.Post("/:id/unlike", s.UnlikePost)
	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", s.UpdatePost)
	posts.Patch("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	protected.Post("/ws/ticket", s.IssueWSTicket)
	protected.Get("/ws", s.WebsocketUpgradeRequired(), s.WebsocketHandler())

	protected.Get("/feature-flags", s.GetFeatureFlags)
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

	checks := fiber.Map{
		"database": probe(func() error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		"redis": "unavailable",
	}
	if s.redis != nil {
		checks["redis"] = probe(func() error { return s.redis.Ping(ctx).Err() })
	}

	overall, code := "healthy", fiber.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			overall, code = "unhealthy", fiber.StatusServiceUnavailable
		}
	}
	return c.Status(code).JSON(fiber.Map{"status": overall, "checks": checks, "time": time.Now()})
}

func probe(check func() error) string {
	if check() != nil {
		return "unhealthy"
	}
	return "healthy"
}

// AuthRequired returns the authentication middleware.
// Websocket routes accept only single-use tickets; all other routes require a
// bearer access token that has not been revoked.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/api/ws") && c.Path() != "/api/ws/ticket" {
			return s.authenticateTicket(c)
		}

		raw, err := middleware.BearerToken(c)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication credentials were not provided"))
		}

		claims, err := middleware.ParseToken(s.config.JWTSecret, raw, middleware.TokenTypeAccess)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}
		if s.isRevoked(c.UserContext(), claims.ID) {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked"))
		}

		userID, err := claims.UserID()
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}
		c.Locals("tokenClaims", claims)
		s.setUser(c, userID)
		return c.Next()
	}
}

func (s *Server) authenticateTicket(c *fiber.Ctx) error {
	ticket := c.Query("ticket")
	if ticket == "" || s.redis == nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Websocket ticket required"))
	}

	raw, err := s.redis.GetDel(c.UserContext(), cache.WSTicketKey(ticket)).Uint64()
	if err != nil || raw == 0 {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
	}

	s.setUser(c, uint(raw))
	return c.Next()
}

func (s *Server) setUser(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	// Sync to UserContext for logging and downstream services
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
	c.SetUserContext(ctx)
}

// isRevoked fails open when Redis is unavailable.
func (s *Server) isRevoked(ctx context.Context, jti string) bool {
	if s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, cache.RevokedTokenKey(jti)).Result()
	if err != nil {
		middleware.Logger.WarnContext(ctx, "revocation check failed", "error", err)
		return false
	}
	return n > 0
}

// Start wires realtime delivery and serves HTTP until the app is shut down.
func (s *Server) Start() error {
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.app = s.NewApp()

	if s.notifier != nil {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			middleware.Logger.Error("like notifications disabled", "error", err)
		}
	}

	middleware.Logger.Info("server starting", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops the subscriber, drains HTTP and websocket clients, then
// closes the stores. Every step runs even if an earlier one fails.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	collect := func(step string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
		}
	}

	if s.app != nil {
		collect("shutdown http", s.app.ShutdownWithContext(ctx))
	}
	collect("shutdown websocket hub", s.hub.Shutdown(ctx))
	if sqlDB, err := s.db.DB(); err == nil {
		collect("close database", sqlDB.Close())
	}
	if s.redis != nil {
		collect("close redis", s.redis.Close())
	}

	middleware.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
