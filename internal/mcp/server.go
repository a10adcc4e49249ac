package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/mask/internal/agent"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/skills"
)

// SessionKey is the activation-tracker key used by the server. An MCP
// server process serves a single client conversation.
const SessionKey = "mcp"

// Options configures a Server.
type Options struct {
	Name     string   // implementation name, default "mask"
	Version  string   // implementation version, default "dev"
	Activate []string // skills active before the first request
	Bus      *events.Bus
}

// Server is an MCP server that discloses skill tools progressively.
type Server struct {
	registry *skills.Registry
	activate func(string) []string
	tracker  *agent.ActivationTracker
	bus      *events.Bus
	server   *mcpsdk.Server

	mu      sync.Mutex
	exposed map[string]bool
}

// NewServer builds a server exposing the loader tool of every enabled skill,
// plus the capability tools of the skills named in opts.Activate.
func NewServer(ctx context.Context, registry *skills.Registry, opts Options) (*Server, error) {
	if opts.Name == "" {
		opts.Name = "mask"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	sm := agent.NewSkillMiddleware(registry)
	s := &Server{
		registry: registry,
		tracker:  agent.NewActivationTracker(),
		bus:      opts.Bus,
		exposed:  make(map[string]bool),
	}
	callback := sm.ActivationCallback()
	s.activate = func(name string) []string {
		return s.tracker.Apply(SessionKey, callback(name))
	}

	for _, name := range opts.Activate {
		if !registry.Enabled(name) {
			return nil, fmt.Errorf("activate %q: %w", name, skills.ErrSkillNotFound)
		}
		s.activate(name)
	}

	s.server = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    opts.Name,
		Version: opts.Version,
	}, &mcpsdk.ServerOptions{
		Instructions: sm.Prompt(s.tracker.Active(SessionKey)),
	})

	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.server }

// Active returns the activated skills.
func (s *Server) Active() []string { return s.tracker.Active(SessionKey) }

// Exposed reports whether a tool has been added to the server.
func (s *Server) Exposed(toolName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exposed[toolName]
}

// Activate marks the skill active and exposes its capability tools. It
// returns the names that were newly activated.
func (s *Server) Activate(ctx context.Context, name string) ([]string, error) {
	if !s.registry.Enabled(name) {
		return nil, fmt.Errorf("%w: %s", skills.ErrSkillNotFound, name)
	}
	added := s.activate(name)
	if err := s.sync(ctx); err != nil {
		return added, err
	}
	if len(added) > 0 {
		slog.Info("skill activated", "skill", name, "via", "mcp")
		s.bus.Publish(events.NewTypedEventWithSession(events.SourceMCP, events.SkillActivatedPayload{
			Name:   name,
			Active: s.Active(),
		}, SessionKey))
	}
	return added, nil
}

// Run serves the client on the given transport until it disconnects.
func (s *Server) Run(ctx context.Context, transport mcpsdk.Transport) error {
	return s.server.Run(ctx, transport)
}

// sync adds every tool the current activation state makes visible and that
// has not been exposed yet. Tools are never removed.
func (s *Server) sync(ctx context.Context) error {
	var errs []error
	for _, t := range s.registry.ToolsForActiveSkills(s.Active()) {
		if err := s.expose(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) expose(ctx context.Context, t tool.InvokableTool) error {
	info, err := t.Info(ctx)
	if err != nil {
		return fmt.Errorf("tool info: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exposed[info.Name] {
		return nil
	}

	mcpTool, err := toolInfoToMCPTool(info)
	if err != nil {
		return err
	}

	var after func(context.Context) error
	if skill, ok := s.registry.SkillForTool(info.Name); ok {
		after = func(ctx context.Context) error {
			_, err := s.Activate(ctx, skill)
			return err
		}
	}

	s.server.AddTool(mcpTool, toolHandler(t, info.Name, after))
	s.exposed[info.Name] = true
	slog.Debug("mcp tool registered", "tool", info.Name)
	return nil
}
