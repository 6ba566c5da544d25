// Package server exposes the device registry, the voice pipeline and the
// event feed over HTTP.
package server

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"voxrelay/internal/config"
	"voxrelay/internal/events"
	"voxrelay/internal/pipeline"
	"voxrelay/internal/store"
	"voxrelay/pkg/protocol"
)

type Server struct {
	app   *fiber.App
	cfg   config.ServerConfig
	store *store.Store
	pipe  *pipeline.Pipeline
	hub   *events.Hub
}

func New(cfg config.ServerConfig, st *store.Store, pipe *pipeline.Pipeline, hub *events.Hub) *Server {
	s := &Server{cfg: cfg, store: st, pipe: pipe, hub: hub}

	limit := cfg.BodyLimitMB
	if limit <= 0 {
		limit = 32
	}
	app := fiber.New(fiber.Config{
		AppName:               "vox-server",
		DisableStartupMessage: true,
		BodyLimit:             limit << 20,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(requestLogger)

	app.Get("/health", s.handleHealth)

	devices := app.Group("/devices")
	devices.Post("/register", s.handleRegister)
	devices.Get("/", s.handleListDevices)
	devices.Get("/:id", s.handleGetDevice)
	devices.Post("/:id/status", s.handleStatus)

	app.Post("/voice/process", s.handleProcess)
	app.Get("/conversations", s.handleConversations)

	app.Static("/uploads", cfg.UploadDir)

	app.Use("/ws", events.RequireUpgrade)
	app.Get("/ws/events", hub.Handler())

	s.app = app
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	log.Info("Listening", "addr", s.cfg.ListenAddr)
	return s.app.Listen(s.cfg.ListenAddr)
}

// Shutdown closes event subscribers first so their handlers return, then
// drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	timeout := 10 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	return s.app.ShutdownWithTimeout(timeout)
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	log.Debug("HTTP", "method", c.Method(), "path", c.Path(), "status", status,
		"took", time.Since(start), "remote", c.IP())
	return err
}

// errorHandler renders every error as {"detail": "..."}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.Error("Request failed", "method", c.Method(), "path", c.Path(), "err", err)
	}
	return c.Status(code).JSON(protocol.ErrorBody{Detail: err.Error()})
}
