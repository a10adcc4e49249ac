package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/mask/internal/config"
)

// CreateModel creates a model.ToolCallingChatModel from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	driver := normalizeDriver(cfg.Driver)
	if driver == "ollama" {
		return NewOllama(ctx, cfg)
	}

	var auth ResolvedAuth
	switch driver {
	case "openai", "claude", "gemini":
		var err error
		if auth, err = ResolveAuth(cfg); err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
	}

	switch driver {
	case "openai":
		return NewOpenAI(ctx, cfg, auth)
	case "claude":
		return NewClaude(ctx, cfg, auth)
	case "gemini":
		return NewGemini(ctx, cfg, auth)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

// normalizeDriver maps driver aliases to their canonical name.
func normalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "anthropic":
		return "claude"
	case "google":
		return "gemini"
	default:
		return d
	}
}

// optFloat32 reads a numeric option from the free-form provider options.
func optFloat32(opts map[string]any, key string) (float32, bool) {
	switch v := opts[key].(type) {
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	}
	return 0, false
}

func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
