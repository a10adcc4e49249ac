package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dohr-michael/mask/internal/agent"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/gateway/ws"
	"github.com/dohr-michael/mask/internal/sessions"
	"github.com/dohr-michael/mask/internal/skills"
)

var (
	errBadRequest        = errors.New("bad request")
	errTurnsDisabled     = errors.New("no chat model configured")
	errReloadUnsupported = errors.New("reload not configured")
)

// SkillChange is the result of an activation or deactivation.
type SkillChange struct {
	SessionID string   `json:"session_id"`
	Skill     string   `json:"skill"`
	Changed   bool     `json:"changed"`
	Active    []string `json:"active"`
}

// activateSkill runs the activation callback for name and folds the
// resulting delta into the session's persisted state.
func (s *Server) activateSkill(ctx context.Context, sessionID, name string) (*SkillChange, error) {
	sm := s.Skills()
	if !sm.Registry().Enabled(name) {
		return nil, fmt.Errorf("%w: %s", skills.ErrSkillNotFound, name)
	}
	delta := sm.ActivationCallback()(name)

	sess, changed, err := sessions.Update(ctx, s.store, s.locks, sessionID, func(sess *sessions.Session) bool {
		changed := false
		for _, n := range delta.ActivatedSkills {
			if sess.ActivateSkill(n) {
				changed = true
			}
		}
		return changed
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.bus.Publish(events.NewTypedEventWithSession(events.SourceGateway, events.SkillActivatedPayload{
			Name:   name,
			Active: sess.ActivatedSkills,
		}, sessionID))
	}
	return &SkillChange{SessionID: sessionID, Skill: name, Changed: changed, Active: sess.ActivatedSkills}, nil
}

// deactivateSkill is an administrative override of the monotonic reducer.
// It takes effect at the session's next turn.
func (s *Server) deactivateSkill(ctx context.Context, sessionID, name string) (*SkillChange, error) {
	sess, changed, err := sessions.Update(ctx, s.store, s.locks, sessionID, func(sess *sessions.Session) bool {
		return sess.DeactivateSkill(name)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.bus.Publish(events.NewTypedEventWithSession(events.SourceGateway, events.SkillDeactivatedPayload{
			Name:   name,
			Active: sess.ActivatedSkills,
		}, sessionID))
	}
	return &SkillChange{SessionID: sessionID, Skill: name, Changed: changed, Active: sess.ActivatedSkills}, nil
}

// SessionTools lists the tools an agent would see for the session.
type SessionTools struct {
	SessionID string   `json:"session_id"`
	Active    []string `json:"active"`
	Tools     []string `json:"tools"`
}

func (s *Server) sessionTools(ctx context.Context, sessionID string) (*SessionTools, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := &SessionTools{SessionID: sessionID, Active: sess.ActivatedSkills, Tools: []string{}}
	for _, t := range s.Skills().Tools(sess.SkillState(nil), s.turn.ExtraTools...) {
		out.Tools = append(out.Tools, skills.ToolName(ctx, t))
	}
	return out, nil
}

// SessionPrompt is the skills prompt injected for the session.
type SessionPrompt struct {
	SessionID string   `json:"session_id"`
	Active    []string `json:"active"`
	Prompt    string   `json:"prompt"`
}

func (s *Server) sessionPrompt(ctx context.Context, sessionID string) (*SessionPrompt, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionPrompt{
		SessionID: sessionID,
		Active:    sess.ActivatedSkills,
		Prompt:    s.Skills().Prompt(sess.ActivatedSkills),
	}, nil
}

func (s *Server) sendMessage(ctx context.Context, sessionID, content string) (*agent.TurnResult, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", errBadRequest)
	}
	runner, err := s.turnRunner()
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, sessionID, content)
}

// HandleRequest serves WebSocket request frames.
func (s *Server) HandleRequest(ctx context.Context, method ws.Method, params json.RawMessage) (any, error) {
	var p ws.SessionParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%w: invalid params", errBadRequest)
		}
	}
	if p.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", errBadRequest)
	}

	switch method {
	case ws.MethodActivateSkill:
		return s.activateSkill(ctx, p.SessionID, p.Skill)
	case ws.MethodDeactivateSkill:
		return s.deactivateSkill(ctx, p.SessionID, p.Skill)
	case ws.MethodListTools:
		return s.sessionTools(ctx, p.SessionID)
	case ws.MethodGetPrompt:
		return s.sessionPrompt(ctx, p.SessionID)
	case ws.MethodSendMessage:
		return s.sendMessage(ctx, p.SessionID, p.Content)
	default:
		return nil, fmt.Errorf("%w: unknown method %q", errBadRequest, method)
	}
}

var _ ws.Handler = (*Server)(nil)

func statusFor(err error) int {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound), errors.Is(err, skills.ErrSkillNotFound):
		return 404
	case errors.Is(err, sessions.ErrSessionExpired):
		return 410
	case errors.Is(err, errBadRequest):
		return 400
	case errors.Is(err, errTurnsDisabled), errors.Is(err, errReloadUnsupported):
		return 503
	case errors.Is(err, agent.ErrMaxRounds):
		return 502
	default:
		return 500
	}
}
