package commands

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/skills"
	"github.com/dohr-michael/mask/internal/skills/builtin"
)

// NewSkillsCommand returns the skills subcommand.
func NewSkillsCommand() *cli.Command {
	return &cli.Command{
		Name:  "skills",
		Usage: "Inspect discovered skills",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List registered skills",
				Action: runSkillsList,
			},
			{
				Name:      "show",
				Usage:     "Show a skill's metadata, tools and instructions",
				ArgsUsage: "<name>",
				Action:    runSkillsShow,
			},
			{
				Name:      "validate",
				Usage:     "Load skill directories and report problems",
				ArgsUsage: "<dir>...",
				Action:    runSkillsValidate,
			},
		},
		DefaultCommand: "list",
	}
}

func runSkillsList(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := loadSkills(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer reg.Close(ctx)

	list := reg.Summary()
	if len(list) == 0 {
		fmt.Println("No skills found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tSOURCE\tTOOLS\tLOADER\tSTATUS")
	for _, s := range list {
		status := styled(styleEnabled, "enabled")
		if !s.Enabled {
			status = styled(styleDisabled, "disabled")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", s.Name, s.Kind, s.Source, len(s.Tools), s.Loader, status)
	}
	return w.Flush()
}

func runSkillsShow(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: mask skills show <name>")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := loadSkills(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer reg.Close(ctx)

	idx := slices.IndexFunc(reg.Summary(), func(s skills.Summary) bool { return s.Name == name })
	if idx < 0 {
		return fmt.Errorf("%w: %s", skills.ErrSkillNotFound, name)
	}
	s := reg.Summary()[idx]
	instr, err := reg.SkillInstructions(name)
	if err != nil {
		return err
	}

	fmt.Println(styled(styleHeading, s.Name) + " " + s.Version)
	fmt.Println(s.Description)
	fmt.Printf("kind: %s  source: %s  enabled: %t\n", s.Kind, s.Source, s.Enabled)
	if s.Path != "" {
		fmt.Printf("path: %s\n", s.Path)
	}
	if len(s.Tags) > 0 {
		fmt.Printf("tags: %s\n", strings.Join(s.Tags, ", "))
	}
	fmt.Printf("loader: %s\n", s.Loader)
	if len(s.Tools) > 0 {
		fmt.Printf("tools: %s\n", strings.Join(s.Tools, ", "))
	}
	if instr != "" {
		fmt.Println()
		fmt.Print(renderMarkdown(instr))
	}
	return nil
}

func runSkillsValidate(ctx context.Context, cmd *cli.Command) error {
	dirs := cmd.Args().Slice()
	if len(dirs) == 0 {
		return fmt.Errorf("usage: mask skills validate <dir>...")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	set := skills.NewProviderSet()
	if err := builtin.Register(set, cfg); err != nil {
		return err
	}
	reg := skills.NewRegistry(skills.WithProviders(set))

	var failed []string
	for _, dir := range dirs {
		s, err := reg.LoadSkillDir(ctx, dir, skills.SourceLocal)
		if err != nil {
			failed = append(failed, dir)
			fmt.Printf("%s %s: %v\n", styled(styleError, "FAIL"), dir, err)
			continue
		}
		meta := s.Metadata()
		fmt.Printf("%s %s: %s (%s, %d tools)\n", styled(styleActive, "ok  "), dir, meta.Name, s.Kind(), len(s.Tools()))
		if c, ok := s.(skills.Closer); ok {
			_ = c.Close(ctx)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d skill directories failed validation", len(failed), len(dirs))
	}
	return nil
}
