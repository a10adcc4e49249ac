package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/agent"
	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/sessions"
	"github.com/dohr-michael/mask/internal/skills"
	"github.com/dohr-michael/mask/internal/skills/builtin"
)

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (sessions.Store, error) {
	store, err := sessions.Open(ctx, cfg.Sessions)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

func loadSkills(ctx context.Context, cfg *config.Config, bus *events.Bus) (*skills.Registry, error) {
	reg, err := builtin.Load(ctx, cfg, bus)
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	return reg, nil
}

func newSkillMiddleware(cfg *config.Config, reg *skills.Registry) *agent.SkillMiddleware {
	return agent.NewSkillMiddleware(reg, agent.WithInstructions(cfg.Skills.InstructionsEnabled()))
}
