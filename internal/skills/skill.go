package skills

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
)

// Kind distinguishes declarative skills from programmatic ones.
type Kind string

const (
	KindMarkdown     Kind = "markdown"
	KindProgrammatic Kind = "programmatic"
)

// Skill is a named bundle of instructions, capability tools and a loader
// tool. Tools and LoaderTool return the same tool values on every call.
type Skill interface {
	Metadata() *Metadata
	Tools() []tool.InvokableTool
	LoaderTool() tool.InvokableTool
	Instructions() string
	Kind() Kind
}

// Closer is implemented by skills holding resources (e.g. a WASM module).
type Closer interface {
	Close(ctx context.Context) error
}

// DefaultInstructions is used by programmatic skills that provide none.
func DefaultInstructions(meta *Metadata) string {
	return fmt.Sprintf("# %s\n\n%s", meta.Name, meta.Description)
}
