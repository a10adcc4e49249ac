package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/mask/internal/config"
)

// NewOpenAI creates an OpenAI (or OpenAI-compatible) ChatModel.
func NewOpenAI(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:  auth.Value,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: timeoutOr(cfg, 60*time.Second),
	}

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}
	if temp, ok := optFloat32(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &temp
	}

	return einoopenai.NewChatModel(ctx, modelConfig)
}

func timeoutOr(cfg config.ProviderConfig, fallback time.Duration) time.Duration {
	if d := cfg.Timeout.Duration(); d > 0 {
		return d
	}
	return fallback
}
