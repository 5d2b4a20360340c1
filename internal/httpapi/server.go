// Package httpapi exposes the facilitator's HTTP surface: the x402
// verify/settle/discovery endpoints backed by internal/facilitator, and the
// thin session/customer glue spec.md §1 names as an out-of-scope
// collaborator but which A5 still needs to exercise the address index
// writer path.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"x402facilitator/internal/config"
	"x402facilitator/internal/facilitator"
	"x402facilitator/internal/kvindex"
	"x402facilitator/internal/middleware"
)

// Store is the repository surface this package depends on. *db.DB satisfies
// it; tests substitute a fake.
type Store interface {
	MerchantStore
	SessionStore
}

// Server wires the facilitator registry, persistence, and the address
// index behind a Fiber app.
type Server struct {
	app           *fiber.App
	config        *config.Config
	store         Store
	kv            kvindex.Store
	fac           *facilitator.Facilitator
	mnemonic      string
	settleLimiter fiber.Handler
	log           *slog.Logger
}

// New constructs a Server. fac must already have every scheme registered
// (C8/C9 wiring happens in main, per chain).
func New(cfg *config.Config, store Store, kv kvindex.Store, fac *facilitator.Facilitator, mnemonic string, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "x402 Facilitator",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errorHandler,
	})

	s := &Server{
		app:      app,
		config:   cfg,
		store:    store,
		kv:       kv,
		fac:      fac,
		mnemonic: mnemonic,
		log:      log,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.SecurityHeaders())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Api-Key"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        300,
	}))

	rl := middleware.NewRateLimitMiddleware(&s.config.RateLimit)
	s.app.Use(rl.Middleware())
	s.settleLimiter = rl.SettleLimiter()
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.health)

	x402 := s.app.Group("/x402")
	x402.Post("/requirements", s.requirements)
	x402.Post("/payments", s.settleLimiter, s.payments)
	x402.Get("/support", s.support)
	x402.Get("/discovery", s.discovery)

	sessions := s.app.Group("/sessions", s.requireMerchant)
	sessions.Post("/", s.createSession)
	sessions.Get("/:id", s.getSession)

	s.app.Use(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not found",
			"path":  c.Path(),
		})
	})
}

// Listen starts the HTTP server on cfg.Server.Port.
func (s *Server) Listen() error {
	addr := fmt.Sprintf(":%s", s.config.Server.Port)
	s.log.Info("httpapi: listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":      message,
		"status":     code,
		"timestamp":  time.Now().Unix(),
		"request_id": middleware.GetRequestID(c),
	})
}

func (s *Server) health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	dbStatus := "up"
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = "down"
	}

	status := "healthy"
	code := fiber.StatusOK
	if dbStatus != "up" {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"database": dbStatus,
	})
}
