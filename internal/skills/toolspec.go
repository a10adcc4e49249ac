package skills

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// ToolSpec describes a single capability tool interface.
type ToolSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters,omitempty"`
	Func        string               `json:"func,omitempty"` // WASM export name (default: "handle")
}

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Type        string               `json:"type"` // "string", "number", "boolean", "integer", "array", "object"
	Description string               `json:"description"`
	Required    bool                 `json:"required"`
	Enum        []string             `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Items       *ParamSpec           `json:"items,omitempty"`
	Properties  map[string]ParamSpec `json:"properties,omitempty"`
}

// ToolInfo converts a ToolSpec to an Eino schema.ToolInfo.
func (s *ToolSpec) ToolInfo() *schema.ToolInfo {
	info := &schema.ToolInfo{
		Name: s.Name,
		Desc: s.Description,
	}
	if len(s.Parameters) > 0 {
		info.ParamsOneOf = schema.NewParamsOneOfByParams(paramInfos(s.Parameters))
	}
	return info
}

func paramInfos(specs map[string]ParamSpec) map[string]*schema.ParameterInfo {
	params := make(map[string]*schema.ParameterInfo, len(specs))
	for name, p := range specs {
		params[name] = p.parameterInfo()
	}
	return params
}

func (p ParamSpec) parameterInfo() *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type:     paramTypeToDataType(p.Type),
		Desc:     p.Description,
		Required: p.Required,
		Enum:     p.Enum,
	}
	if p.Items != nil {
		info.ElemInfo = p.Items.parameterInfo()
	}
	if len(p.Properties) > 0 {
		info.SubParams = paramInfos(p.Properties)
	}
	return info
}

// paramTypeToDataType maps string type names to Eino DataType constants.
func paramTypeToDataType(t string) schema.DataType {
	switch t {
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}

// HandlerFunc runs a capability tool with its raw JSON arguments.
type HandlerFunc func(ctx context.Context, argumentsInJSON string) (string, error)

// FuncTool adapts a ToolSpec and a Go handler to tool.InvokableTool.
type FuncTool struct {
	spec    ToolSpec
	handler HandlerFunc
}

var _ tool.InvokableTool = (*FuncTool)(nil)

// NewFuncTool creates a capability tool backed by handler.
func NewFuncTool(spec ToolSpec, handler HandlerFunc) *FuncTool {
	return &FuncTool{spec: spec, handler: handler}
}

// Info returns the ToolInfo for Eino registration.
func (t *FuncTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.spec.ToolInfo(), nil
}

// InvokableRun calls the handler.
func (t *FuncTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	out, err := t.handler(ctx, argumentsInJSON)
	if err != nil {
		return "", fmt.Errorf("tool %q: %w", t.spec.Name, err)
	}
	return out, nil
}

// ToolName returns the name reported by t.Info, or "" when Info fails.
func ToolName(ctx context.Context, t tool.BaseTool) string {
	info, err := t.Info(ctx)
	if err != nil || info == nil {
		return ""
	}
	return info.Name
}
