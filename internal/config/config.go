// Package config loads the mask configuration from a JSONC file.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config is the root configuration for mask.
type Config struct {
	Skills    SkillsConfig    `json:"skills"`
	Sessions  SessionsConfig  `json:"sessions"`
	Models    ModelsConfig    `json:"models"`
	Agent     AgentConfig     `json:"agent"`
	Gateway   GatewayConfig   `json:"gateway"`
	Events    EventsConfig    `json:"events"`
	WebSearch WebSearchConfig `json:"web_search"`
}

// SkillsConfig configures skill discovery and disclosure.
type SkillsConfig struct {
	Dirs     []SkillDirConfig `json:"dirs"`     // default: [$MASK_PATH/skills]
	Disabled []string         `json:"disabled"` // skill names registered but hidden from the agent
	Builtin  []string         `json:"builtin"`  // linked providers registered without a skill dir

	// IncludeInstructions controls whether active skill instructions are
	// appended to the skills prompt (default true).
	IncludeInstructions *bool `json:"include_instructions,omitempty"`

	// Providers holds per-provider config merged under skill.jsonc config.
	Providers map[string]map[string]string `json:"providers,omitempty"`
}

// InstructionsEnabled reports the effective IncludeInstructions value.
func (c SkillsConfig) InstructionsEnabled() bool {
	return c.IncludeInstructions == nil || *c.IncludeInstructions
}

// SkillDirConfig is a skill root directory (or glob) and its source label.
// It also unmarshals from a bare JSON string.
type SkillDirConfig struct {
	Path   string `json:"path"`
	Source string `json:"source,omitempty"` // "local", "user" or "project"
}

func (d *SkillDirConfig) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = SkillDirConfig{Path: s}
		return nil
	}
	type plain SkillDirConfig
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("skill dir: %w", err)
	}
	*d = SkillDirConfig(p)
	return nil
}

// SessionsConfig selects and configures the session store.
type SessionsConfig struct {
	Backend string   `json:"backend"` // "file", "memory" or "sqlite"
	Dir     string   `json:"dir,omitempty"`
	DSN     string   `json:"dsn,omitempty"`
	TTL     Duration `json:"ttl,omitempty"` // 0 = sessions never expire
	// Cleanup is the cron spec for removing expired sessions while the
	// gateway runs. Empty disables the job.
	Cleanup string `json:"cleanup,omitempty"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "claude", "openai", "ollama", "gemini"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${VAR} reference
	Token  string `json:"token,omitempty"`   // Bearer token, takes priority over APIKey
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogDir     string `json:"log_dir,omitempty"` // JSONL event log, empty = disabled
}

// AgentConfig holds agent settings.
type AgentConfig struct {
	Name          string `json:"name,omitempty"`
	SystemPrompt  string `json:"system_prompt,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// WebSearchConfig configures the built-in web-search skill.
type WebSearchConfig struct {
	Provider       string   `json:"provider"` // "duckduckgo", "google" or "bing"
	MaxResults     int      `json:"max_results"`
	Timeout        Duration `json:"timeout,omitempty"`
	GoogleAPIKey   string   `json:"google_api_key,omitempty"`
	GoogleEngineID string   `json:"google_engine_id,omitempty"`
	BingAPIKey     string   `json:"bing_api_key,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
