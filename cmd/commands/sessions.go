package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/sessions"
	"github.com/dohr-michael/mask/internal/skills"
	"github.com/dohr-michael/mask/internal/storage"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage conversation sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sessions",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show a session and its messages",
				ArgsUsage: "<session_id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Show at most N messages (0 = all)"},
				},
				Action: runSessionsShow,
			},
			{
				Name:      "events",
				Usage:     "Show the logged events of a session (requires events.log_dir)",
				ArgsUsage: "<session_id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Show the last N events (0 = all)", Value: 50},
				},
				Action: runSessionsEvents,
			},
			{
				Name:      "activate",
				Usage:     "Activate a skill in a session",
				ArgsUsage: "<session_id> <skill>",
				Action:    runSessionsActivate,
			},
			{
				Name:      "deactivate",
				Usage:     "Deactivate a skill in a session (effective from the next turn)",
				ArgsUsage: "<session_id> <skill>",
				Action:    runSessionsDeactivate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a session",
				ArgsUsage: "<session_id>",
				Action:    runSessionsDelete,
			},
			{
				Name:   "cleanup",
				Usage:  "Remove expired sessions",
				Action: runSessionsCleanup,
			},
		},
		DefaultCommand: "list",
	}
}

// withStore opens the configured session store for the duration of fn.
func withStore(ctx context.Context, cmd *cli.Command, fn func(sessions.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runSessionsList(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, cmd, func(store sessions.Store) error {
		list, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tMESSAGES\tUPDATED\tSKILLS\tTITLE")
		for _, s := range list {
			title := s.Title
			if title == "" {
				title = "-"
			}
			active := strings.Join(s.ActivatedSkills, ",")
			if active == "" {
				active = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				s.ID,
				s.Status,
				s.MessageCount,
				s.UpdatedAt.Format("2006-01-02 15:04"),
				active,
				title,
			)
		}
		return w.Flush()
	})
}

func runSessionsShow(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: mask sessions show <session_id>")
	}

	return withStore(ctx, cmd, func(store sessions.Store) error {
		sess, err := store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Println(styled(styleHeading, sess.ID))
		if sess.Title != "" {
			fmt.Printf("title:   %s\n", sess.Title)
		}
		fmt.Printf("status:  %s\n", sess.Status)
		fmt.Printf("created: %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))
		if sess.ExpiresAt != nil {
			fmt.Printf("expires: %s\n", sess.ExpiresAt.Format("2006-01-02 15:04:05"))
		}
		if sess.Model != "" {
			fmt.Printf("model:   %s\n", sess.Model)
		}
		if len(sess.ActivatedSkills) > 0 {
			fmt.Printf("skills:  %s\n", styled(styleActive, strings.Join(sess.ActivatedSkills, ", ")))
		}
		fmt.Println()

		msgs, err := store.LoadMessages(ctx, sessionID, cmd.Int("limit"), 0)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		if len(msgs) == 0 {
			fmt.Println("No messages in this session.")
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s: %s\n", m.Ts.Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	})
}

func runSessionsEvents(_ context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: mask sessions events <session_id>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Events.LogDir == "" {
		return fmt.Errorf("event log disabled: set events.log_dir")
	}

	list, err := storage.ReadLog(config.ExpandHome(cfg.Events.LogDir), sessionID, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No events logged for this session.")
		return nil
	}
	for _, e := range list {
		payload, _ := json.Marshal(e.Payload)
		fmt.Printf("[%s] %-18s %s %s\n", e.Timestamp.Format("15:04:05"), e.Type, e.Source, payload)
	}
	return nil
}

func sessionSkillArgs(cmd *cli.Command, verb string) (string, string, error) {
	args := cmd.Args()
	if args.Len() != 2 {
		return "", "", fmt.Errorf("usage: mask sessions %s <session_id> <skill>", verb)
	}
	return args.Get(0), args.Get(1), nil
}

func runSessionsActivate(ctx context.Context, cmd *cli.Command) error {
	sessionID, name, err := sessionSkillArgs(cmd, "activate")
	if err != nil {
		return err
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
	if !reg.Enabled(name) {
		return fmt.Errorf("%w: %s", skills.ErrSkillNotFound, name)
	}

	return withStore(ctx, cmd, func(store sessions.Store) error {
		sess, err := store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if !sess.ActivateSkill(name) {
			fmt.Printf("%s already active in %s\n", name, sessionID)
			return nil
		}
		if err := store.Save(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Printf("activated %s in %s\n", name, sessionID)
		return nil
	})
}

func runSessionsDeactivate(ctx context.Context, cmd *cli.Command) error {
	sessionID, name, err := sessionSkillArgs(cmd, "deactivate")
	if err != nil {
		return err
	}
	return withStore(ctx, cmd, func(store sessions.Store) error {
		sess, err := store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if !sess.DeactivateSkill(name) {
			fmt.Printf("%s not active in %s\n", name, sessionID)
			return nil
		}
		if err := store.Save(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Printf("deactivated %s in %s\n", name, sessionID)
		return nil
	})
}

func runSessionsDelete(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: mask sessions delete <session_id>")
	}
	return withStore(ctx, cmd, func(store sessions.Store) error {
		if err := store.Delete(ctx, sessionID); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", sessionID)
		return nil
	})
}

func runSessionsCleanup(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, cmd, func(store sessions.Store) error {
		n, err := store.CleanupExpired(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Printf("removed %d expired session(s)\n", n)
		return nil
	})
}
