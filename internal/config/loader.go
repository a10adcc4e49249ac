package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := UnmarshalJSONC(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the default config.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		applyDefaults(cfg)
		return cfg, nil
	}
	return cfg, err
}

// UnmarshalJSONC expands env templates, strips comments and trailing commas,
// then decodes data into v.
func UnmarshalJSONC(data []byte, v any) error {
	std, err := hujson.Standardize([]byte(expandEnvTemplates(string(data))))
	if err != nil {
		return err
	}
	return json.Unmarshal(std, v)
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if len(cfg.Skills.Dirs) == 0 {
		cfg.Skills.Dirs = []SkillDirConfig{{Path: SkillsPath(), Source: "user"}}
	}
	for i := range cfg.Skills.Dirs {
		if cfg.Skills.Dirs[i].Source == "" {
			cfg.Skills.Dirs[i].Source = "local"
		}
	}

	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = "file"
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = SessionsPath()
	}
	if cfg.Sessions.TTL > 0 && cfg.Sessions.Cleanup == "" {
		cfg.Sessions.Cleanup = "*/15 * * * *"
	}
	if cfg.Sessions.Backend == "sqlite" && cfg.Sessions.DSN == "" {
		cfg.Sessions.DSN = filepath.Join(MaskPath(), "sessions.db")
	}

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}

	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "mask"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 20
	}

	if cfg.WebSearch.Provider == "" {
		cfg.WebSearch.Provider = "duckduckgo"
	}
	if cfg.WebSearch.MaxResults == 0 {
		cfg.WebSearch.MaxResults = 5
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
