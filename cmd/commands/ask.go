package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/agent"
	maskcb "github.com/dohr-michael/mask/internal/callbacks"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/models"
	"github.com/dohr-michael/mask/internal/sessions"
	"github.com/dohr-michael/mask/internal/skills"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a message to the agent and print the response",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "Session ID to resume (empty = new session)",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model provider name (empty = models.default)",
			},
			&cli.StringSliceFlag{
				Name:  "skill",
				Usage: "Skills to activate before the turn",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print tool calls and skill activations to stderr",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Response timeout in seconds",
				Value: 300,
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	message := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if message == "" {
		return fmt.Errorf("usage: mask ask <message>")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cmd.Int("timeout"))*time.Second)
	defer cancel()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	if cmd.Bool("verbose") {
		unsub := bus.Subscribe(printActivity, events.EventToolCall, events.EventSkillActivated)
		defer unsub()
	}

	reg, err := loadSkills(ctx, cfg, bus)
	if err != nil {
		return err
	}
	defer reg.Close(ctx)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	modelName := cmd.String("model")
	chat, err := models.NewRegistry(cfg.Models).Resolve(ctx, modelName)
	if err != nil {
		return models.HandleError(err)
	}

	sess, err := askSession(ctx, store, cmd.String("session"), modelName, cfg.Sessions.TTL.Duration())
	if err != nil {
		return err
	}
	for _, name := range cmd.StringSlice("skill") {
		if !reg.Enabled(name) {
			return fmt.Errorf("%w: %s", skills.ErrSkillNotFound, name)
		}
		sess.ActivateSkill(name)
	}
	if err := store.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	runner, err := agent.NewTurnRunner(agent.TurnConfig{
		Model:         chat,
		Skills:        newSkillMiddleware(cfg, reg),
		Store:         store,
		Bus:           bus,
		Name:          cfg.Agent.Name,
		Instruction:   agent.LoadInstruction(cfg.Agent),
		MaxIterations: cfg.Agent.MaxIterations,
		Callbacks:     []callbacks.Handler{maskcb.NewModelEventHandler(bus)},
	})
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, sess.ID, message)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout waiting for response")
		}
		return models.HandleError(err)
	}

	fmt.Print(renderMarkdown(res.Content))
	if len(res.Activated) > 0 {
		fmt.Fprintf(os.Stderr, "activated: %s\n", strings.Join(res.Activated, ", "))
	}
	return nil
}

// askSession resumes id, or creates a session and reports its ID on stderr.
func askSession(ctx context.Context, store sessions.Store, id, modelName string, ttl time.Duration) (*sessions.Session, error) {
	if id != "" {
		return store.Get(ctx, id)
	}
	opts := []sessions.CreateOption{sessions.WithTTL(ttl)}
	if modelName != "" {
		opts = append(opts, sessions.WithModel(modelName))
	}
	sess, err := store.Create(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	fmt.Fprintf(os.Stderr, "session: %s\n", sess.ID)
	return sess, nil
}

func printActivity(e events.Event) {
	switch e.Type {
	case events.EventToolCall:
		p, ok := events.ExtractPayload[events.ToolCallPayload](e)
		if !ok {
			return
		}
		if p.Status == events.ToolStatusFailed {
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", styleError.Render("✗"), p.Name, p.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "→ %s (%s)\n", p.Name, p.Duration.Round(time.Millisecond))
	case events.EventSkillActivated:
		if p, ok := events.ExtractPayload[events.SkillActivatedPayload](e); ok {
			fmt.Fprintf(os.Stderr, "%s %s\n", styleActive.Render("+ skill"), p.Name)
		}
	}
}
