package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/dohr-michael/mask/internal/config"
)

// NewGemini creates a Google Gemini ChatModel. Setting the "project" option
// switches the client to the Vertex AI backend.
func NewGemini(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	if auth.Kind == AuthBearerToken {
		return nil, errors.New("gemini driver: bearer tokens are not supported, use an api key")
	}

	clientConfig := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  auth.Value,
	}
	if project := optString(cfg.Options, "project"); project != "" {
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = project
		clientConfig.Location = optString(cfg.Options, "location")
		clientConfig.APIKey = ""
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	modelConfig := &gemini.Config{
		Client: client,
		Model:  cfg.Model,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}
	if temp, ok := optFloat32(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &temp
	}

	return gemini.NewChatModel(ctx, modelConfig)
}
