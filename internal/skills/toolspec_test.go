package skills

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestToolSpec_ToolInfo(t *testing.T) {
	spec := ToolSpec{
		Name:        "extract_text",
		Description: "Extract text from a PDF",
		Parameters: map[string]ParamSpec{
			"path":  {Type: "string", Description: "PDF path", Required: true},
			"pages": {Type: "array", Items: &ParamSpec{Type: "integer"}},
			"mode":  {Type: "string", Enum: []string{"fast", "accurate"}},
			"opts": {Type: "object", Properties: map[string]ParamSpec{
				"ocr": {Type: "boolean"},
			}},
		},
	}

	info := spec.ToolInfo()
	if info.Name != "extract_text" || info.Desc != "Extract text from a PDF" {
		t.Errorf("unexpected info %+v", info)
	}
	if info.ParamsOneOf == nil {
		t.Fatal("expected parameters")
	}

	js, err := info.ParamsOneOf.ToJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	if len(js.Required) != 1 || js.Required[0] != "path" {
		t.Errorf("unexpected required %v", js.Required)
	}
}

func TestToolSpec_NoParams(t *testing.T) {
	info := (&ToolSpec{Name: "ping"}).ToolInfo()
	if info.ParamsOneOf != nil {
		t.Error("expected no parameters")
	}
}

func TestParamTypeToDataType(t *testing.T) {
	tests := map[string]schema.DataType{
		"string":  schema.String,
		"number":  schema.Number,
		"integer": schema.Integer,
		"boolean": schema.Boolean,
		"array":   schema.Array,
		"object":  schema.Object,
		"unknown": schema.String,
	}
	for in, want := range tests {
		if got := paramTypeToDataType(in); got != want {
			t.Errorf("paramTypeToDataType(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFuncTool(t *testing.T) {
	ft := NewFuncTool(ToolSpec{Name: "echo"}, func(_ context.Context, args string) (string, error) {
		if args == "fail" {
			return "", errors.New("boom")
		}
		return "echo:" + args, nil
	})

	out, err := ft.InvokableRun(context.Background(), `{"a":1}`)
	if err != nil || out != `echo:{"a":1}` {
		t.Errorf("unexpected result %q, %v", out, err)
	}

	if _, err := ft.InvokableRun(context.Background(), "fail"); err == nil {
		t.Error("expected error")
	}
	if ToolName(context.Background(), ft) != "echo" {
		t.Error("unexpected tool name")
	}
}
