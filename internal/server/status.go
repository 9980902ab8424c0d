// Package server exposes a read-only status surface while a long run
// is in flight: current job states, the run index, and a websocket feed
// of status transitions.
package server

import (
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/meeting-clipper/internal/scheduler"
	"github.com/codebuildervaibhav/meeting-clipper/internal/store"
)

// Status is the optional in-run HTTP server.
type Status struct {
	sched *scheduler.Scheduler
	db    *store.DB // may be nil
	log   zerolog.Logger
	app   *fiber.App
}

// New builds the status server around a running scheduler.
func New(sched *scheduler.Scheduler, db *store.DB, log zerolog.Logger) *Status {
	s := &Status{sched: sched, db: db, log: log}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberrecover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	app.Get("/jobs", func(c *fiber.Ctx) error {
		return c.JSON(s.sched.Snapshot())
	})

	app.Get("/report", func(c *fiber.Ctx) error {
		if s.db == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run index disabled"})
		}
		rows, err := s.db.ListJobs(200)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(rows)
	})

	app.Get("/ws/events", websocket.New(s.streamEvents))

	s.app = app
	return s
}

// streamEvents pushes job status transitions until the client goes away.
func (s *Status) streamEvents(c *websocket.Conn) {
	events, cancel := s.sched.Subscribe()
	defer cancel()
	defer c.Close()

	for ev := range events {
		if err := c.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Start serves on addr in a background goroutine.
func (s *Status) Start(addr string) {
	go func() {
		s.log.Info().Str("addr", addr).Msg("status server listening")
		if err := s.app.Listen(addr); err != nil {
			s.log.Warn().Err(err).Msg("status server stopped")
		}
	}()
}

// Shutdown stops the server.
func (s *Status) Shutdown() {
	_ = s.app.Shutdown()
}
