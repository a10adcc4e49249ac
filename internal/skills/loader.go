package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// LoaderToolPrefix starts the name of every loader tool.
const LoaderToolPrefix = "use_"

// LoaderToolName returns the loader tool name for a skill: use_ followed by
// the skill name with hyphens replaced by underscores.
func LoaderToolName(skillName string) string {
	return LoaderToolPrefix + strings.ReplaceAll(skillName, "-", "_")
}

// LoaderTool is the parameterless tool the agent calls to activate a skill.
// Running it only returns the skill instructions; activation is recorded by
// the caller from the tool name.
type LoaderTool struct {
	skillName    string
	description  string
	instructions func() string
}

var _ tool.InvokableTool = (*LoaderTool)(nil)

func newLoaderTool(meta *Metadata, instructions func() string) *LoaderTool {
	return &LoaderTool{
		skillName:    meta.Name,
		description:  fmt.Sprintf("Activate the %s skill. %s", meta.Name, meta.Description),
		instructions: instructions,
	}
}

// SkillName returns the name of the skill this loader activates.
func (t *LoaderTool) SkillName() string { return t.skillName }

// Info returns the ToolInfo for Eino registration.
func (t *LoaderTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: LoaderToolName(t.skillName),
		Desc: t.description,
	}, nil
}

// InvokableRun returns the skill instructions. Arguments are ignored.
func (t *LoaderTool) InvokableRun(_ context.Context, _ string, _ ...tool.Option) (string, error) {
	return t.instructions(), nil
}
