// Package mcp exposes the skill registry as a Model Context Protocol server
// with progressive disclosure: clients first see one loader tool per skill,
// and a skill's capability tools appear once its loader has been called.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolInfoToMCPTool converts an Eino tool description to an mcp.Tool whose
// input schema is a JSON Schema object.
func toolInfoToMCPTool(info *schema.ToolInfo) (*mcpsdk.Tool, error) {
	inputSchema := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}

	if info.ParamsOneOf != nil {
		js, err := info.ParamsOneOf.ToJSONSchema()
		if err != nil {
			return nil, fmt.Errorf("tool %s: json schema: %w", info.Name, err)
		}
		if js != nil {
			raw, err := json.Marshal(js)
			if err != nil {
				return nil, fmt.Errorf("tool %s: marshal schema: %w", info.Name, err)
			}
			var m map[string]any
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("tool %s: decode schema: %w", info.Name, err)
			}
			for k, v := range m {
				inputSchema[k] = v
			}
			inputSchema["type"] = "object"
		}
	}

	return &mcpsdk.Tool{
		Name:        info.Name,
		Description: info.Desc,
		InputSchema: inputSchema,
	}, nil
}

// toolHandler adapts an invokable tool to an MCP tool handler. Tool failures
// are reported as error results so the client can recover.
func toolHandler(t tool.InvokableTool, name string, after func(ctx context.Context) error) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := "{}"
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}
		result, err := t.InvokableRun(ctx, args)
		if err == nil && after != nil {
			err = after(ctx)
		}
		if err != nil {
			return errorResult(name, err), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: result}},
		}, nil
	}
}

func errorResult(name string, err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("tool %s: %v", name, err)}},
	}
}
