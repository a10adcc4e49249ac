package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/agent"
	maskcb "github.com/dohr-michael/mask/internal/callbacks"
	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/gateway"
	"github.com/dohr-michael/mask/internal/heartbeat"
	"github.com/dohr-michael/mask/internal/models"
	"github.com/dohr-michael/mask/internal/scheduler"
	"github.com/dohr-michael/mask/internal/storage"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the mask gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model provider for agent turns (empty = models.default)",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	if cfg.Events.LogDir != "" {
		evlog := storage.NewEventLogger(config.ExpandHome(cfg.Events.LogDir), bus)
		defer evlog.Close()
	}

	reg, err := loadSkills(ctx, cfg, bus)
	if err != nil {
		return err
	}
	slog.Info("skills loaded", "count", reg.Len())

	store, err := openStore(ctx, cfg)
	if err != nil {
		reg.Close(ctx)
		return err
	}
	defer store.Close()

	sched := scheduler.New()
	if spec := cfg.Sessions.Cleanup; spec != "" {
		if err := sched.Add("sessions.cleanup", spec, scheduler.CleanupSessions(store)); err != nil {
			reg.Close(ctx)
			return fmt.Errorf("sessions.cleanup: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	turn := agent.TurnConfig{
		Name:          cfg.Agent.Name,
		Instruction:   agent.LoadInstruction(cfg.Agent),
		MaxIterations: cfg.Agent.MaxIterations,
		Callbacks:     []callbacks.Handler{maskcb.NewModelEventHandler(bus)},
	}
	chat, err := models.NewRegistry(cfg.Models).Resolve(ctx, cmd.String("model"))
	switch {
	case err == nil:
		turn.Model = chat
	case errors.Is(err, models.ErrNoDefaultModel):
		slog.Warn("no model configured, agent turns disabled")
	default:
		reg.Close(ctx)
		return fmt.Errorf("init model: %w", models.HandleError(err))
	}

	reloader := config.NewReloader(configPath, config.DotenvPath(), cfg)
	reloader.OnReload(func(prev, next *config.Config) {
		if !reflect.DeepEqual(prev.Models, next.Models) || prev.Agent != next.Agent {
			slog.Warn("model and agent settings take effect after restart")
		}
	})

	server := gateway.NewServer(gateway.Options{
		Host:   cfg.Gateway.Host,
		Port:   cfg.Gateway.Port,
		Bus:    bus,
		Store:  store,
		Skills: newSkillMiddleware(cfg, reg),
		Turn:   turn,
		Reload: func(ctx context.Context) (*agent.SkillMiddleware, error) {
			if err := reloader.Reload(); err != nil {
				return nil, err
			}
			next := reloader.Current()
			reg, err := loadSkills(ctx, next, bus)
			if err != nil {
				return nil, err
			}
			return newSkillMiddleware(next, reg), nil
		},
	})
	defer func() {
		server.Skills().Registry().Close(context.Background())
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	hb := heartbeat.NewWriter(config.HeartbeatPath(), addr,
		heartbeat.WithSkillCount(func() int { return server.Skills().Registry().Len() }))
	hb.Start()
	defer hb.Stop()

	for {
		select {
		case <-hup:
			if err := server.Reload(ctx); err != nil {
				slog.Error("reload failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	}
}
