// Package agent wires progressive skill disclosure into the eino ADK: it
// builds the skills prompt, filters the visible tools, records activations
// and runs conversation turns.
package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/mask/internal/config"
)

// DefaultInstruction is the system prompt used when none is configured.
const DefaultInstruction = `You are a helpful assistant with access to a set of skills.
Skills are listed in this prompt. Call a skill's loader tool before relying on it:
the loader returns the skill's instructions and unlocks its tools for the rest of the conversation.
Only call tools that are currently available to you.`

// LoadInstruction returns the agent system prompt: the configured one, else
// prompts/system.md under MASK_PATH (YAML header stripped), else
// DefaultInstruction.
func LoadInstruction(cfg config.AgentConfig) string {
	if s := strings.TrimSpace(cfg.SystemPrompt); s != "" {
		return s
	}
	data, err := os.ReadFile(filepath.Join(config.MaskPath(), "prompts", "system.md"))
	if err != nil {
		return DefaultInstruction
	}
	content := stripFrontmatter(string(data))
	if content == "" {
		return DefaultInstruction
	}
	return content
}

func stripFrontmatter(content string) string {
	if strings.HasPrefix(content, "---") {
		if parts := strings.SplitN(content, "---", 3); len(parts) == 3 {
			return strings.TrimSpace(parts[2])
		}
	}
	return strings.TrimSpace(content)
}

// AgentOptions configures NewAgent.
type AgentOptions struct {
	Name          string
	Instruction   string
	MaxIterations int // 0 = ADK default
	Tools         []tool.InvokableTool
	Middlewares   []adk.AgentMiddleware
	// ReturnDirectly names tools whose result ends the run immediately.
	ReturnDirectly []string
	Streaming      bool
}

// NewAgent creates a ChatModelAgent wrapped in a Runner. eino freezes a
// runner's tool set after its first Run, so callers build one per turn.
func NewAgent(ctx context.Context, chatModel model.ToolCallingChatModel, opts AgentOptions) (*adk.Runner, error) {
	name := opts.Name
	if name == "" {
		name = "mask"
	}
	instruction := opts.Instruction
	if instruction == "" {
		instruction = DefaultInstruction
	}

	cfg := &adk.ChatModelAgentConfig{
		Name:          name,
		Description:   "Assistant with progressively disclosed skills",
		Instruction:   instruction,
		Model:         chatModel,
		MaxIterations: opts.MaxIterations,
		Middlewares:   opts.Middlewares,
	}

	// Registering tools enables the ReAct loop.
	if len(opts.Tools) > 0 {
		baseTools := make([]tool.BaseTool, len(opts.Tools))
		for i, t := range opts.Tools {
			baseTools[i] = t
		}
		cfg.ToolsConfig.Tools = baseTools
	}
	if len(opts.ReturnDirectly) > 0 {
		cfg.ToolsConfig.ReturnDirectly = make(map[string]bool, len(opts.ReturnDirectly))
		for _, n := range opts.ReturnDirectly {
			cfg.ToolsConfig.ReturnDirectly[n] = true
		}
	}

	agent, err := adk.NewChatModelAgent(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return adk.NewRunner(ctx, adk.RunnerConfig{
		Agent:           agent,
		EnableStreaming: opts.Streaming,
	}), nil
}
