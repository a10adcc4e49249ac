package commands

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/events"
	maskmcp "github.com/dohr-michael/mask/internal/mcp"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp-serve",
		Usage: "Expose skills as an MCP server over stdio",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "activate",
				Usage: "Skills whose tools are exposed from the start",
			},
		},
		Action: runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP stdio transport
	setupLogging(cmd.Bool("debug"), slog.LevelWarn)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	reg, err := loadSkills(ctx, cfg, bus)
	if err != nil {
		return err
	}
	defer reg.Close(ctx)

	server, err := maskmcp.NewServer(ctx, reg, maskmcp.Options{
		Version:  Version,
		Activate: cmd.StringSlice("activate"),
		Bus:      bus,
	})
	if err != nil {
		return err
	}

	slog.Debug("starting MCP server", "skills", reg.Len(), "active", server.Active())
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
