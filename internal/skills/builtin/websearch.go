package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cloudwego/eino-ext/components/tool/bingsearch"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/skills"
)

const webSearchInstructions = `# Web search

Use web_search to find current information, then web_fetch to read the
most relevant pages. Cite the URLs you used in your answer. Prefer a few
precise queries over many broad ones.`

const (
	defaultFetchTimeout = 30 * time.Second
	defaultFetchMaxKB   = 512
)

// webSearchProvider builds the web-search skill. Provider config keys
// (provider, max_results, timeout, google_api_key, google_engine_id,
// bing_api_key, fetch_max_kb) override the web_search config section.
type webSearchProvider struct {
	defaults config.WebSearchConfig
}

func (p *webSearchProvider) NewSkill(ctx context.Context, opts skills.ProviderOptions) (skills.Skill, error) {
	cfg, err := p.resolve(opts.Config)
	if err != nil {
		return nil, err
	}

	search, err := newSearchTool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	maxKB := defaultFetchMaxKB
	if v := opts.Config["fetch_max_kb"]; v != "" {
		if maxKB, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("fetch_max_kb: %w", err)
		}
	}
	timeout := cfg.Timeout.Duration()
	if timeout == 0 {
		timeout = defaultFetchTimeout
	}
	fetch := newWebFetchTool(&http.Client{Timeout: timeout}, maxKB)

	meta, err := skills.NewMetadata(WebSearch, "Search the web and read pages for up-to-date information",
		skills.WithTags("web", "search"),
		skills.WithSource(opts.Source),
		skills.WithPath(opts.Dir),
	)
	if err != nil {
		return nil, err
	}
	return skills.NewToolSkill(meta, webSearchInstructions, search, fetch), nil
}

func (p *webSearchProvider) resolve(overrides map[string]string) (config.WebSearchConfig, error) {
	cfg := p.defaults
	for key, value := range overrides {
		switch key {
		case "provider":
			cfg.Provider = value
		case "max_results":
			n, err := strconv.Atoi(value)
			if err != nil {
				return cfg, fmt.Errorf("max_results: %w", err)
			}
			cfg.MaxResults = n
		case "timeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return cfg, fmt.Errorf("timeout: %w", err)
			}
			cfg.Timeout = config.Duration(d)
		case "google_api_key":
			cfg.GoogleAPIKey = value
		case "google_engine_id":
			cfg.GoogleEngineID = value
		case "bing_api_key":
			cfg.BingAPIKey = value
		}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return cfg, nil
}

// newSearchTool creates the web_search tool for the configured provider.
// Supported: "duckduckgo" (default, no API key), "google", "bing".
func newSearchTool(ctx context.Context, cfg config.WebSearchConfig) (tool.InvokableTool, error) {
	switch cfg.Provider {
	case "", "duckduckgo":
		slog.Debug("web_search: using DuckDuckGo provider")
		return duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   "web_search",
			ToolDesc:   "Search the web using DuckDuckGo. Returns titles, URLs, and summaries.",
			MaxResults: cfg.MaxResults,
			Timeout:    cfg.Timeout.Duration(),
		})
	case "google":
		if cfg.GoogleAPIKey == "" || cfg.GoogleEngineID == "" {
			return nil, fmt.Errorf("web_search: google provider requires google_api_key and google_engine_id")
		}
		slog.Debug("web_search: using Google provider")
		return googlesearch.NewTool(ctx, &googlesearch.Config{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleEngineID,
			Num:            cfg.MaxResults,
			ToolName:       "web_search",
			ToolDesc:       "Search the web using Google. Returns titles, URLs, and snippets.",
		})
	case "bing":
		if cfg.BingAPIKey == "" {
			return nil, fmt.Errorf("web_search: bing provider requires bing_api_key")
		}
		slog.Debug("web_search: using Bing provider")
		return bingsearch.NewTool(ctx, &bingsearch.Config{
			APIKey:     cfg.BingAPIKey,
			MaxResults: cfg.MaxResults,
			ToolName:   "web_search",
			ToolDesc:   "Search the web using Bing. Returns titles, URLs, and descriptions.",
			Timeout:    cfg.Timeout.Duration(),
		})
	default:
		return nil, fmt.Errorf("web_search: unknown provider %q", cfg.Provider)
	}
}

type webFetchInput struct {
	URL string `json:"url"`
}

type webFetchOutput struct {
	URL     string `json:"url"`
	Status  int    `json:"status"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

func newWebFetchTool(client *http.Client, maxKB int) tool.InvokableTool {
	maxBytes := int64(maxKB) * 1024
	return skills.NewFuncTool(skills.ToolSpec{
		Name:        "web_fetch",
		Description: "Fetch a URL and return its text content. Content is truncated to the configured max size.",
		Parameters: map[string]skills.ParamSpec{
			"url": {Type: "string", Description: "The http(s) URL to fetch", Required: true},
		},
	}, func(ctx context.Context, argumentsInJSON string) (string, error) {
		var input webFetchInput
		if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
			return "", fmt.Errorf("parse input: %w", err)
		}
		if !strings.HasPrefix(input.URL, "https://") && !strings.HasPrefix(input.URL, "http://") {
			return "", fmt.Errorf("url must be http or https, got %q", input.URL)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", "mask/1.0 (web_fetch)")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain,*/*")

		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		body := io.LimitReader(resp.Body, maxBytes)
		out := webFetchOutput{URL: input.URL, Status: resp.StatusCode}

		if strings.Contains(resp.Header.Get("Content-Type"), "html") {
			doc, err := goquery.NewDocumentFromReader(body)
			if err != nil {
				return "", fmt.Errorf("parse html: %w", err)
			}
			doc.Find("script, style, noscript").Remove()
			out.Title = strings.TrimSpace(doc.Find("title").First().Text())
			out.Content = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
		} else {
			raw, err := io.ReadAll(body)
			if err != nil {
				return "", fmt.Errorf("read body: %w", err)
			}
			out.Content = string(raw)
		}

		data, err := json.Marshal(out)
		if err != nil {
			return "", fmt.Errorf("marshal result: %w", err)
		}
		return string(data), nil
	})
}
