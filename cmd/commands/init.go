package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/mask/internal/config"
)

const defaultConfig = `{
  // Skill roots, discovered in order. Globs are allowed.
  "skills": {
    "dirs": [{ "path": %s, "source": "user" }],
    "builtin": ["pdf-processing", "web-search"],
    "disabled": [],
    "include_instructions": true
  },
  "sessions": {
    "backend": "file", // "file", "memory" or "sqlite"
    "ttl": "720h",
    "cleanup": "@hourly"
  },
  "models": {
    "default": "main",
    "providers": {
      "main": {
        "driver": "claude",
        "model": "claude-sonnet-4-20250514",
        "auth": { "api_key": "${{ .Env.ANTHROPIC_API_KEY }}" }
      },
      "local": {
        "driver": "ollama",
        "model": "qwen3:8b"
      }
    }
  },
  "gateway": { "host": "127.0.0.1", "port": 18430 },
  "events": { "buffer_size": 1024, "log_dir": "~/.mask/events" },
  "web_search": { "provider": "duckduckgo", "max_results": 5 }
}
`

const defaultDotenv = `# Loaded by mask at startup. Existing environment variables win.
# ANTHROPIC_API_KEY=
# OPENAI_API_KEY=
# GEMINI_API_KEY=
`

const exampleSkill = `---
name: release-notes
description: Draft release notes from a list of merged changes.
version: 1.0.0
tags: [writing]
---

# Release notes

1. Group the changes into Features, Fixes and Internal.
2. Write one line per change, in the imperative mood.
3. Put breaking changes first, under a **Breaking** heading.
`

// NewInitCommand returns the init subcommand.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the mask home with a default config and an example skill",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite existing files",
			},
		},
		Action: runInit,
	}
}

func runInit(_ context.Context, cmd *cli.Command) error {
	force := cmd.Bool("force")
	home := config.MaskPath()

	files := []struct {
		path    string
		content string
		mode    os.FileMode
	}{
		{cmd.String("config"), fmt.Sprintf(defaultConfig, jsonString(config.SkillsPath())), 0o644},
		{config.DotenvPath(), defaultDotenv, 0o600},
		{filepath.Join(config.SkillsPath(), "release-notes", "SKILL.md"), exampleSkill, 0o644},
	}

	for _, dir := range []string{home, config.SkillsPath(), config.SessionsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	for _, f := range files {
		created, err := writeFileIfAbsent(f.path, f.content, f.mode, force)
		if err != nil {
			return err
		}
		status := "exists "
		if created {
			status = "created"
		}
		fmt.Printf("%s %s\n", status, f.path)
	}
	return nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func writeFileIfAbsent(path, content string, mode os.FileMode, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
