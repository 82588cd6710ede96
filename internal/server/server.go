// Package server exposes the admin API and the inbound event endpoints.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/greenghost107/TradersMind-chartBot/internal/bot"
	"github.com/greenghost107/TradersMind-chartBot/internal/platform"
	"github.com/greenghost107/TradersMind-chartBot/internal/retention"
	"github.com/greenghost107/TradersMind-chartBot/internal/store"
	"github.com/greenghost107/TradersMind-chartBot/internal/threads"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

// EventHandler receives chat events relayed from the gateway bridge.
type EventHandler interface {
	HandleMessage(ctx context.Context, ev bot.MessageEvent) (*platform.Message, error)
	HandleButton(ctx context.Context, ev bot.ButtonEvent) (*bot.Reply, error)
}

// Deps are the components the API reads from and drives.
type Deps struct {
	Engine   *retention.Engine
	Registry *tracking.Registry
	Threads  *threads.Directory
	Events   EventHandler
	DB       *store.DB // optional; /api/runs answers 503 without it
	Logger   *slog.Logger
}

// Server is the chartbot HTTP API server.
type Server struct {
	engine   *retention.Engine
	registry *tracking.Registry
	threads  *threads.Directory
	events   EventHandler
	db       *store.DB
	logger   *slog.Logger
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server.
func New(d Deps, version string) *Server {
	s := &Server{
		engine:   d.Engine,
		registry: d.Registry,
		threads:  d.Threads,
		events:   d.Events,
		db:       d.DB,
		logger:   d.Logger,
		version:  version,
		started:  time.Now(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/cleanup", s.handleCleanup)
		r.Get("/tracked", s.handleTracked)
		r.Get("/threads", s.handleThreads)
		r.Get("/runs", s.handleRuns)

		r.Route("/events", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Post("/message", s.handleMessageEvent)
			r.Post("/button", s.handleButtonEvent)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db != nil && s.db.Ping() == nil
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"running": s.engine.Running(),
		"db":      dbOK,
	})
}
