// Package gateway serves the skill registry, session state and the event
// stream over HTTP and WebSocket.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/mask/internal/agent"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/gateway/ws"
	"github.com/dohr-michael/mask/internal/sessions"
)

// ReloadFunc rebuilds the skill middleware, typically after re-reading the
// config and re-discovering skills.
type ReloadFunc func(ctx context.Context) (*agent.SkillMiddleware, error)

// Options configures a Server.
type Options struct {
	Host   string
	Port   int
	Bus    *events.Bus
	Store  sessions.Store
	Skills *agent.SkillMiddleware
	// Turn is the template for agent turns. Turns are disabled when
	// Turn.Model is nil. Skills, Store, Bus, Tracker and Locks are filled in by
	// the server.
	Turn   agent.TurnConfig
	Reload ReloadFunc
}

// Server is the mask gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	store      sessions.Store
	skills     atomic.Pointer[agent.SkillMiddleware]
	tracker    *agent.ActivationTracker
	locks      *sessions.Locks
	turn       agent.TurnConfig
	reload     ReloadFunc
}

// NewServer creates a new gateway server.
func NewServer(opts Options) *Server {
	s := &Server{
		bus:     opts.Bus,
		store:   opts.Store,
		tracker: agent.NewActivationTracker(),
		locks:   sessions.NewLocks(),
		turn:    opts.Turn,
		reload:  opts.Reload,
	}
	s.skills.Store(opts.Skills)
	s.hub = ws.NewHub(opts.Bus, s)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Post("/api/reload", s.handleReload)

	r.Route("/api/skills", func(r chi.Router) {
		r.Get("/", s.handleListSkills)
		r.Get("/{name}", s.handleGetSkill)
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/tools", s.handleSessionTools)
			r.Get("/prompt", s.handleSessionPrompt)
			r.Post("/messages", s.handleSendMessage)
			r.Post("/skills/{name}", s.handleActivateSkill)
			r.Delete("/skills/{name}", s.handleDeactivateSkill)
		})
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler: r,
	}

	return s
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Skills returns the current skill middleware.
func (s *Server) Skills() *agent.SkillMiddleware { return s.skills.Load() }

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("mask gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Reload swaps in a freshly built skill middleware and releases the
// previous registry.
func (s *Server) Reload(ctx context.Context) error {
	if s.reload == nil {
		return errReloadUnsupported
	}
	next, err := s.reload(ctx)
	if err != nil {
		return err
	}
	prev := s.skills.Swap(next)
	if prev != nil && prev.Registry() != next.Registry() {
		prev.Registry().Close(ctx)
	}
	slog.Info("skills reloaded", "skills", next.Registry().Len())
	return nil
}

func (s *Server) turnRunner() (*agent.TurnRunner, error) {
	if s.turn.Model == nil {
		return nil, errTurnsDisabled
	}
	cfg := s.turn
	cfg.Skills = s.skills.Load()
	cfg.Store = s.store
	cfg.Bus = s.bus
	cfg.Tracker = s.tracker
	cfg.Locks = s.locks
	return agent.NewTurnRunner(cfg)
}
