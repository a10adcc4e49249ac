package agent

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/mask/internal/events"
)

// skillsBaseKey marks, in schema.Message.Extra, a system message built by the
// disclosure middleware. The value holds the original system content, or nil
// when the message was inserted from scratch.
const skillsBaseKey = "mask_skills_base"

// DisclosureConfig configures the disclosure middleware.
type DisclosureConfig struct {
	Skills  *SkillMiddleware
	Tracker *ActivationTracker
	Bus     *events.Bus
}

// NewDisclosureMiddleware builds an AgentMiddleware that applies progressive
// disclosure inside the eino ReAct loop:
//   - before each chat model call the skills prompt for the session in ctx is
//     merged into the leading system message;
//   - after each successful loader tool call the skill is activated in the
//     tracker through the activation callback.
//
// The tool list itself is fixed per runner; Turn rebuilds it every turn.
func NewDisclosureMiddleware(cfg DisclosureConfig) adk.AgentMiddleware {
	activate := cfg.Skills.ActivationCallback()

	mw := adk.AgentMiddleware{}

	mw.BeforeChatModel = func(ctx context.Context, st *adk.ChatModelAgentState) error {
		sessionID := events.SessionIDFromContext(ctx)
		active := cfg.Tracker.Active(sessionID)
		prompt := cfg.Skills.Prompt(active)

		st.Messages = injectOnce(st.Messages, prompt)
		slog.Debug("skills prompt injected",
			"session_id", sessionID,
			"active", active,
			"length", len(prompt),
		)
		return nil
	}

	mw.WrapToolCall = compose.ToolMiddleware{
		Invokable: func(next compose.InvokableToolEndpoint) compose.InvokableToolEndpoint {
			return func(ctx context.Context, input *compose.ToolInput) (*compose.ToolOutput, error) {
				out, err := next(ctx, input)
				if err != nil {
					return out, err
				}
				name, ok := cfg.Skills.Registry().SkillForTool(input.Name)
				if !ok {
					return out, nil
				}
				sessionID := events.SessionIDFromContext(ctx)
				added := cfg.Tracker.Apply(sessionID, activate(name))
				if len(added) > 0 {
					cfg.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent,
						events.SkillActivatedPayload{Name: name, Active: cfg.Tracker.Active(sessionID)},
						sessionID))
				}
				return out, nil
			}
		},
	}

	return mw
}

// injectOnce injects prompt like InjectSkillsPrompt, first undoing a previous
// injection so repeated model calls within a turn do not stack prompts.
func injectOnce(messages []*schema.Message, prompt string) []*schema.Message {
	if len(messages) > 0 && messages[0] != nil && messages[0].Role == schema.System {
		if base, ok := messages[0].Extra[skillsBaseKey]; ok {
			rest := messages[1:]
			if orig, isStr := base.(string); isStr {
				messages = append([]*schema.Message{schema.SystemMessage(orig)}, rest...)
			} else {
				messages = rest
			}
		}
	}

	var base any
	if len(messages) > 0 && messages[0] != nil && messages[0].Role == schema.System {
		base = messages[0].Content
	}
	out := InjectSkillsPrompt(messages, prompt)
	if prompt != "" {
		out[0].Extra = map[string]any{skillsBaseKey: base}
	}
	return out
}
