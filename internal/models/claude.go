package models

import (
	"context"
	"errors"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/mask/internal/config"
)

const defaultClaudeMaxTokens = 4096

// NewClaude creates an Anthropic Claude ChatModel.
func NewClaude(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	if auth.Kind == AuthBearerToken {
		return nil, errors.New("claude driver: bearer tokens are not supported, use an api key")
	}

	modelConfig := &claude.Config{
		APIKey:    auth.Value,
		Model:     cfg.Model,
		MaxTokens: defaultClaudeMaxTokens,
	}
	if cfg.MaxTokens > 0 {
		modelConfig.MaxTokens = cfg.MaxTokens
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		modelConfig.BaseURL = &baseURL
	}
	if temp, ok := optFloat32(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &temp
	}

	return claude.NewChatModel(ctx, modelConfig)
}
