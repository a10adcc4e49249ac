// Package callbacks bridges eino callbacks to the event bus.
package callbacks

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	ub "github.com/cloudwego/eino/utils/callbacks"

	"github.com/dohr-michael/mask/internal/events"
)

// maxErrorLen bounds error strings carried in events.
const maxErrorLen = 1000

// NewModelEventHandler returns a handler publishing a model.call event for
// every chat model request, response and error. Tool calls are reported by
// the tool middleware, not here.
func NewModelEventHandler(bus *events.Bus) callbacks.Handler {
	publish := func(ctx context.Context, payload events.ModelCallPayload) {
		bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, payload, events.SessionIDFromContext(ctx)))
	}

	handler := &ub.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			publish(ctx, events.ModelCallPayload{
				Phase:        events.ModelCallRequest,
				Model:        info.Name,
				MessageCount: len(input.Messages),
				Tools:        toolNames(input.Tools),
			})
			return ctx
		},
		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
			payload := events.ModelCallPayload{
				Phase: events.ModelCallResponse,
				Model: info.Name,
			}
			if u := usage(output); u != nil {
				payload.TokensInput = u.PromptTokens
				payload.TokensOutput = u.CompletionTokens
			}
			publish(ctx, payload)
			return ctx
		},
		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			publish(ctx, events.ModelCallPayload{
				Phase: events.ModelCallError,
				Model: info.Name,
				Error: truncate(err.Error(), maxErrorLen),
			})
			return ctx
		},
	}

	return ub.NewHandlerHelper().ChatModel(handler).Handler()
}

func toolNames(tools []*schema.ToolInfo) []string {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

func usage(output *model.CallbackOutput) *schema.TokenUsage {
	if output == nil || output.Message == nil || output.Message.ResponseMeta == nil {
		return nil
	}
	return output.Message.ResponseMeta.Usage
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
