package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/skills"
	"github.com/dohr-michael/mask/internal/state"
)

// NewPromptCommand returns the prompt subcommand.
func NewPromptCommand() *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Print the skills prompt and visible tools for a set of active skills",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "active",
				Usage: "Skills to treat as activated (comma-separated or repeated)",
			},
		},
		Action: runPrompt,
	}
}

func runPrompt(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := loadSkills(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer reg.Close(ctx)

	var active []string
	for _, v := range cmd.StringSlice("active") {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !reg.Enabled(name) {
				return fmt.Errorf("%w: %s", skills.ErrSkillNotFound, name)
			}
			active = append(active, name)
		}
	}
	active = state.MergeActivated(nil, active)

	sm := newSkillMiddleware(cfg, reg)
	prompt := sm.Prompt(active)
	if prompt == "" {
		fmt.Println("(no enabled skills)")
	} else {
		fmt.Print(prompt)
	}

	fmt.Println()
	fmt.Println(styled(styleHeading, "Visible tools"))
	for _, t := range sm.Tools(state.SkillState{ActivatedSkills: active}) {
		name := skills.ToolName(ctx, t)
		if owner, ok := reg.SkillForTool(name); ok {
			fmt.Printf("  %s  %s\n", name, styled(styleDisabled, "(loader for "+owner+")"))
			continue
		}
		fmt.Printf("  %s\n", name)
	}
	return nil
}
