package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/config"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "mask",
		Usage:   "Agent skills with progressive disclosure",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd.Bool("debug"), slog.LevelInfo)
			return ctx, nil
		},
		Commands: []*cli.Command{
			NewInitCommand(),
			NewSkillsCommand(),
			NewPromptCommand(),
			NewSessionsCommand(),
			NewAskCommand(),
			NewServeCommand(),
			NewMCPServeCommand(),
			NewStatusCommand(),
		},
	}
}

// setupLogging installs a stderr text handler. stdout stays free for
// command output and the MCP stdio transport.
func setupLogging(debug bool, level slog.Level) {
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
