package agent

import (
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/mask/internal/skills"
	"github.com/dohr-michael/mask/internal/state"
)

// SkillsPromptSeparator joins the skills prompt and an existing system message.
const SkillsPromptSeparator = "\n\n---\n\n"

// BuildSkillsPrompt renders the skills overview for the model: every enabled
// skill with its ACTIVE/available status, followed by the instructions of
// the active skills when includeInstructions is set. It returns "" when no
// skill is registered and none is active.
func BuildSkillsPrompt(reg *skills.Registry, active []string, includeInstructions bool) string {
	var lines []string

	if summary := reg.Summary(); len(summary) > 0 {
		lines = append(lines,
			"## Available Skills",
			"",
			"You have access to the following skills. Use the corresponding ",
			"`use_<skill_name>` tool to activate a skill and receive detailed ",
			"instructions for its use.",
			"",
		)
		activeSet := toSet(active)
		for _, s := range summary {
			if !s.Enabled {
				continue
			}
			status := "available"
			if activeSet[s.Name] {
				status = "ACTIVE"
			}
			lines = append(lines, "- **"+s.Name+"** ("+status+"): "+s.Description)
		}
		lines = append(lines, "")
	}

	if len(active) > 0 && includeInstructions {
		lines = append(lines, "## Active Skill Instructions", "")
		if instr := reg.ActiveInstructions(active); instr != "" {
			lines = append(lines, instr)
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// InjectSkillsPrompt returns a new message list with prompt placed in front.
// A leading system message is replaced by a new one whose content is the
// prompt, the separator, then the original content; otherwise a new system
// message is prepended. The input slice and its messages are never modified.
func InjectSkillsPrompt(messages []*schema.Message, prompt string) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages)+1)
	if prompt == "" {
		return append(out, messages...)
	}
	if len(messages) > 0 && messages[0] != nil && messages[0].Role == schema.System {
		out = append(out, schema.SystemMessage(prompt+SkillsPromptSeparator+messages[0].Content))
		return append(out, messages[1:]...)
	}
	out = append(out, schema.SystemMessage(prompt))
	return append(out, messages...)
}

// SkillMiddleware derives the prompt and visible tools for a conversation
// from its skill state.
type SkillMiddleware struct {
	registry            *skills.Registry
	includeInstructions bool
}

// SkillMiddlewareOption customizes a SkillMiddleware.
type SkillMiddlewareOption func(*SkillMiddleware)

// WithInstructions controls whether active skill instructions are part of
// the injected prompt. Enabled by default.
func WithInstructions(include bool) SkillMiddlewareOption {
	return func(m *SkillMiddleware) { m.includeInstructions = include }
}

// NewSkillMiddleware creates a SkillMiddleware over reg.
func NewSkillMiddleware(reg *skills.Registry, opts ...SkillMiddlewareOption) *SkillMiddleware {
	m := &SkillMiddleware{registry: reg, includeInstructions: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the underlying skill registry.
func (m *SkillMiddleware) Registry() *skills.Registry { return m.registry }

// Prompt builds the skills prompt for the given active skills.
func (m *SkillMiddleware) Prompt(active []string) string {
	return BuildSkillsPrompt(m.registry, active, m.includeInstructions)
}

// PrepareMessages returns the state messages with the skills prompt injected.
// The state itself is left untouched.
func (m *SkillMiddleware) PrepareMessages(st state.SkillState) []*schema.Message {
	return InjectSkillsPrompt(st.Messages, m.Prompt(st.ActivatedSkills))
}

// Tools returns every loader tool, the capability tools of the active skills
// and the additional non-skill tools, which are always visible.
func (m *SkillMiddleware) Tools(st state.SkillState, additional ...tool.InvokableTool) []tool.InvokableTool {
	tools := m.registry.ToolsForActiveSkills(st.ActivatedSkills)
	return append(tools, additional...)
}

// ActivationCallback returns the function that turns a loader invocation into
// a state delta. Unknown skills yield an empty delta.
func (m *SkillMiddleware) ActivationCallback() func(name string) state.Delta {
	return func(name string) state.Delta {
		if !m.registry.Has(name) {
			slog.Warn("attempted to activate unknown skill", "skill", name)
			return state.Delta{}
		}
		slog.Info("activating skill", "skill", name)
		return state.Delta{ActivatedSkills: []string{name}}
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
