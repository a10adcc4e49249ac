package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/sessions"
	"github.com/dohr-michael/mask/internal/skills"
)

// DefaultMaxRounds bounds how many times a turn is resumed after a loader
// call unlocked new tools.
const DefaultMaxRounds = 8

// ErrMaxRounds is returned when the model keeps calling loader tools until
// the round limit is reached without producing an answer.
var ErrMaxRounds = errors.New("turn ended without an answer")

// TurnConfig configures a TurnRunner.
type TurnConfig struct {
	Model         model.ToolCallingChatModel
	Skills        *SkillMiddleware
	Store         sessions.Store
	Bus           *events.Bus
	Tracker       *ActivationTracker // optional, a private tracker is created when nil
	Locks         *sessions.Locks    // optional, shared with other writers of the same store
	Name          string
	Instruction   string
	MaxIterations int
	MaxRounds     int
	// ExtraTools are visible in every turn regardless of skill state.
	ExtraTools []tool.InvokableTool
	// Callbacks are attached to each turn's context and observe every
	// component run inside it.
	Callbacks []callbacks.Handler
}

// TurnRunner executes conversation turns against a session store.
type TurnRunner struct {
	cfg     TurnConfig
	tracker *ActivationTracker
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	// Activated lists the skills activated during this turn.
	Activated []string `json:"activated"`
	// Active is the full activated list after the turn.
	Active []string `json:"active"`
}

// NewTurnRunner validates cfg and returns a runner.
func NewTurnRunner(cfg TurnConfig) (*TurnRunner, error) {
	if cfg.Model == nil {
		return nil, errors.New("turn runner: model is required")
	}
	if cfg.Skills == nil {
		return nil, errors.New("turn runner: skill middleware is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("turn runner: session store is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewActivationTracker()
	}
	if cfg.Locks == nil {
		cfg.Locks = sessions.NewLocks()
	}
	return &TurnRunner{cfg: cfg, tracker: tracker}, nil
}

// Tracker returns the activation tracker shared by the runner's turns.
func (r *TurnRunner) Tracker() *ActivationTracker { return r.tracker }

// Run sends userMessage to the agent within the session, then persists the
// exchange and the activated skills. When the model calls a loader tool the
// run stops, the tool set is recomputed with the newly unlocked tools and the
// run resumes from the loader result.
func (r *TurnRunner) Run(ctx context.Context, sessionID, userMessage string) (*TurnResult, error) {
	sess, err := r.cfg.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := r.cfg.Store.LoadMessages(ctx, sessionID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	ctx = events.ContextWithSessionID(ctx, sessionID)
	if len(r.cfg.Callbacks) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{Name: r.cfg.Name, Type: "TurnRunner"}, r.cfg.Callbacks...)
	}
	r.tracker.Seed(sessionID, sess.ActivatedSkills)
	initial := r.tracker.Active(sessionID)

	r.cfg.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent,
		events.UserMessagePayload{Content: userMessage}, sessionID))

	msgs := append(sessions.ToSchemaMessages(history), schema.UserMessage(userMessage))

	var (
		content  string
		answered bool
	)
	for round := 0; round < r.cfg.MaxRounds; round++ {
		st := sess.SkillState(msgs)
		st.ActivatedSkills = r.tracker.Active(sessionID)

		produced, err := r.runRound(ctx, st.Messages, r.cfg.Skills.Tools(st, r.cfg.ExtraTools...))
		if err != nil {
			r.cfg.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent,
				events.AssistantMessagePayload{Error: err.Error()}, sessionID))
			return nil, err
		}
		msgs = append(msgs, produced...)

		if !endedOnLoader(produced) {
			content = finalContent(produced)
			answered = true
			break
		}
		slog.Debug("loader tool called, resuming with new tool set",
			"session_id", sessionID,
			"round", round+1,
			"active", r.tracker.Active(sessionID),
		)
	}

	active := r.tracker.Active(sessionID)
	if err := r.persist(ctx, sessionID, userMessage, content, active); err != nil {
		return nil, err
	}

	if !answered {
		err := fmt.Errorf("%w: %d rounds used", ErrMaxRounds, r.cfg.MaxRounds)
		r.cfg.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent,
			events.AssistantMessagePayload{Error: err.Error()}, sessionID))
		return nil, err
	}

	r.cfg.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent,
		events.AssistantMessagePayload{Content: content}, sessionID))

	var activated []string
	for _, name := range active {
		if !slices.Contains(initial, name) {
			activated = append(activated, name)
		}
	}
	return &TurnResult{
		SessionID: sessionID,
		Content:   content,
		Activated: activated,
		Active:    active,
	}, nil
}

func (r *TurnRunner) runRound(ctx context.Context, msgs []*schema.Message, tools []tool.InvokableTool) ([]*schema.Message, error) {
	var loaders []string
	for _, t := range tools {
		if lt, ok := t.(*skills.LoaderTool); ok {
			loaders = append(loaders, skills.LoaderToolName(lt.SkillName()))
		}
	}

	runner, err := NewAgent(ctx, r.cfg.Model, AgentOptions{
		Name:           r.cfg.Name,
		Instruction:    r.cfg.Instruction,
		MaxIterations:  r.cfg.MaxIterations,
		Tools:          tools,
		ReturnDirectly: loaders,
		Middlewares: []adk.AgentMiddleware{
			NewDisclosureMiddleware(DisclosureConfig{
				Skills:  r.cfg.Skills,
				Tracker: r.tracker,
				Bus:     r.cfg.Bus,
			}),
			{WrapToolCall: NewToolRecoveryMiddleware(ToolRecoveryConfig{Bus: r.cfg.Bus})},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	iter := runner.Run(ctx, msgs, adk.WithCheckPointID(uuid.New().String()))
	return collectMessages(iter)
}

// collectMessages drains the iterator and returns the messages the agent
// produced, streamed ones concatenated.
func collectMessages(iter *adk.AsyncIterator[*adk.AgentEvent]) ([]*schema.Message, error) {
	var produced []*schema.Message
	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		if event.Err != nil {
			return produced, event.Err
		}
		if event.Output == nil || event.Output.MessageOutput == nil {
			continue
		}
		mv := event.Output.MessageOutput
		if mv.IsStreaming && mv.MessageStream != nil {
			msg, err := schema.ConcatMessageStream(mv.MessageStream)
			if err != nil {
				return produced, fmt.Errorf("read stream: %w", err)
			}
			produced = append(produced, msg)
			continue
		}
		if mv.Message != nil {
			produced = append(produced, mv.Message)
		}
	}
	return produced, nil
}

// endedOnLoader reports whether the round stopped on a return-directly tool,
// which only loader tools are.
func endedOnLoader(produced []*schema.Message) bool {
	return len(produced) > 0 && produced[len(produced)-1].Role == schema.Tool
}

func finalContent(produced []*schema.Message) string {
	for i := len(produced) - 1; i >= 0; i-- {
		m := produced[i]
		if m.Role == schema.Assistant && m.Content != "" {
			return m.Content
		}
	}
	return ""
}

// persist appends the exchange and folds the activated skills into the
// session under the session lock, so concurrent writers never drop an
// activation.
func (r *TurnRunner) persist(ctx context.Context, sessionID, userMessage, content string, active []string) error {
	unlock := r.cfg.Locks.Lock(sessionID)
	defer unlock()

	store := r.cfg.Store
	if err := store.AppendMessage(ctx, sessionID, sessions.NewMessageFromSchema(schema.UserMessage(userMessage))); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	if content != "" {
		if err := store.AppendMessage(ctx, sessionID, sessions.NewMessageFromSchema(schema.AssistantMessage(content, nil))); err != nil {
			return fmt.Errorf("persist assistant message: %w", err)
		}
	}

	// Re-read: AppendMessage updated the counters.
	sess, err := store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	changed := false
	for _, name := range active {
		if sess.ActivateSkill(name) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return store.Save(ctx, sess)
}
