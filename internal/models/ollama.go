package models

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/mask/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// NewOllama creates a new Ollama ChatModel.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	modelConfig := &einoollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   cfg.Model,
	}

	modelConfig.Timeout = timeoutOr(cfg, 300*time.Second)

	opts := &einoollama.Options{}

	if cfg.MaxTokens > 0 {
		opts.NumPredict = cfg.MaxTokens
	}

	if v, ok := optFloat32(cfg.Options, "temperature"); ok {
		opts.Temperature = v
	}
	if v, ok := optFloat32(cfg.Options, "top_p"); ok {
		opts.TopP = v
	}
	if v, ok := optFloat32(cfg.Options, "num_ctx"); ok {
		opts.NumCtx = int(v)
	}
	if v, ok := optFloat32(cfg.Options, "num_predict"); ok {
		opts.NumPredict = int(v)
	}
	if v, ok := optFloat32(cfg.Options, "top_k"); ok {
		opts.TopK = int(v)
	}

	modelConfig.Options = opts

	modelConfig.HTTPClient = &http.Client{
		Timeout:   modelConfig.Timeout,
		Transport: &ollamaTransport{inner: http.DefaultTransport, provider: "ollama"},
	}

	return einoollama.NewChatModel(ctx, modelConfig)
}

// ollamaTransport turns transport failures, error statuses and non-JSON
// bodies (a proxy's "no available server" page) into ErrModelUnavailable.
type ollamaTransport struct {
	inner    http.RoundTripper
	provider string
}

func (t *ollamaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}

	ct := resp.Header.Get("Content-Type")
	// application/json and application/x-ndjson both contain "json".
	if resp.StatusCode >= 400 || (ct != "" && !strings.Contains(ct, "json")) {
		return nil, t.unavailable(resp)
	}

	return resp, nil
}

func (t *ollamaTransport) unavailable(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &ErrModelUnavailable{
		Provider: t.provider,
		Body:     strings.TrimSpace(string(body)),
	}
}
