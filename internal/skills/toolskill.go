package skills

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
)

// ToolSkill is a programmatic skill: metadata, optional instructions and a
// fixed set of capability tools built once at construction.
type ToolSkill struct {
	meta         *Metadata
	instructions string
	tools        []tool.InvokableTool
	loader       *LoaderTool
	closer       func(context.Context) error
}

var (
	_ Skill  = (*ToolSkill)(nil)
	_ Closer = (*ToolSkill)(nil)
)

// NewToolSkill builds a programmatic skill. An empty instructions string
// falls back to DefaultInstructions.
func NewToolSkill(meta *Metadata, instructions string, tools ...tool.InvokableTool) *ToolSkill {
	s := &ToolSkill{
		meta:         meta,
		instructions: instructions,
		tools:        append([]tool.InvokableTool(nil), tools...),
	}
	s.loader = newLoaderTool(meta, s.Instructions)
	return s
}

// WithCloser registers a release hook run by Close.
func (s *ToolSkill) WithCloser(fn func(context.Context) error) *ToolSkill {
	s.closer = fn
	return s
}

func (s *ToolSkill) Metadata() *Metadata { return s.meta }

func (s *ToolSkill) Kind() Kind { return KindProgrammatic }

// Tools returns the capability tools. The returned slice is a copy; the
// tool values are the same on every call.
func (s *ToolSkill) Tools() []tool.InvokableTool {
	return append([]tool.InvokableTool(nil), s.tools...)
}

func (s *ToolSkill) LoaderTool() tool.InvokableTool { return s.loader }

func (s *ToolSkill) Instructions() string {
	if s.instructions == "" {
		return DefaultInstructions(s.meta)
	}
	return s.instructions
}

// Close runs the release hook, if any.
func (s *ToolSkill) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer(ctx)
}
