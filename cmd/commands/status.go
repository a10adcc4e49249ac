package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether a mask gateway is running",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), 4*heartbeat.DefaultInterval)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Gateway: %s on %s (PID %d, uptime %s, %d skills)\n",
					styled(styleActive, "ALIVE"), hb.Addr, hb.PID, hb.Uptime, hb.Skills)
			case heartbeat.StatusStale:
				fmt.Printf("Gateway: %s (PID %d, last heartbeat %s ago)\n",
					styled(styleError, "STALE"), hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Gateway: NOT RUNNING")
			}
			return nil
		},
	}
}
