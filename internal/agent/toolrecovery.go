package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/skills"
)

// DefaultMaxToolRetries is the number of consecutive failures of one tool
// within a session that are turned into textual results before the error is
// propagated and the agent loop stops.
const DefaultMaxToolRetries = 3

// ToolRecoveryConfig configures the tool-call middleware.
type ToolRecoveryConfig struct {
	// MaxRetries is the number of recoverable errors per session and tool.
	// Zero means DefaultMaxToolRetries.
	MaxRetries int
	// Bus receives a tool.call event for every invocation. Optional.
	Bus *events.Bus
}

// NewToolRecoveryMiddleware returns an eino ToolMiddleware that reports each
// tool call on the event bus and converts tool errors into textual results so
// the model can adjust its arguments. A success resets the failure count.
func NewToolRecoveryMiddleware(cfg ToolRecoveryConfig) compose.ToolMiddleware {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxToolRetries
	}

	var mu sync.Mutex
	failures := make(map[string]int) // sessionID + "/" + tool → consecutive failures

	return compose.ToolMiddleware{
		Invokable: func(next compose.InvokableToolEndpoint) compose.InvokableToolEndpoint {
			return func(ctx context.Context, input *compose.ToolInput) (*compose.ToolOutput, error) {
				sessionID := events.SessionIDFromContext(ctx)
				key := sessionID + "/" + input.Name

				start := time.Now()
				out, err := next(ctx, input)
				payload := events.ToolCallPayload{
					Status:   events.ToolStatusCompleted,
					Name:     input.Name,
					Loader:   strings.HasPrefix(input.Name, skills.LoaderToolPrefix),
					Duration: time.Since(start),
				}

				if err == nil {
					mu.Lock()
					delete(failures, key)
					mu.Unlock()
					cfg.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, payload, sessionID))
					// Providers reject tool messages with empty content.
					if out != nil && out.Result == "" {
						out.Result = "[OK]"
					}
					return out, nil
				}

				payload.Status = events.ToolStatusFailed
				payload.Error = err.Error()
				cfg.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, payload, sessionID))

				mu.Lock()
				failures[key]++
				count := failures[key]
				mu.Unlock()

				if count >= maxRetries {
					slog.Error("tool failed too many times, stopping",
						"tool", input.Name,
						"session_id", sessionID,
						"attempt", count,
						"error", err,
					)
					return nil, err
				}

				slog.Warn("tool failed, returning error to model",
					"tool", input.Name,
					"session_id", sessionID,
					"attempt", count,
					"max", maxRetries,
					"error", err,
				)
				return &compose.ToolOutput{Result: formatToolError(input.Name, count, maxRetries, err)}, nil
			}
		},
	}
}

func formatToolError(toolName string, attempt, maxRetries int, err error) string {
	return fmt.Sprintf(
		"[TOOL_ERROR] Tool %q failed (attempt %d/%d): %s\nRetry with different arguments, or tell the user what went wrong.",
		toolName, attempt, maxRetries, err,
	)
}
