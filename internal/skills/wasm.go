package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	extism "github.com/extism/go-sdk"
)

// hostNamespace is the import module for host functions seen by WASM skills.
const hostNamespace = "mask"

// wasmModule is one instantiated WASM skill module. Extism plugins are not
// safe for concurrent calls, hence the mutex.
type wasmModule struct {
	mu     sync.Mutex
	name   string
	plugin *extism.Plugin
}

func (m *wasmModule) call(fn string, input []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, out, err := m.plugin.Call(fn, input)
	return out, err
}

func (m *wasmModule) close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plugin.Close(ctx)
}

// WasmTool adapts one export of a WASM skill module to tool.InvokableTool.
type WasmTool struct {
	spec   ToolSpec
	module *wasmModule
}

var _ tool.InvokableTool = (*WasmTool)(nil)

// Info returns the ToolInfo for Eino registration.
func (t *WasmTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.spec.ToolInfo(), nil
}

// InvokableRun calls the WASM export named in spec.Func with the JSON arguments.
func (t *WasmTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	out, err := t.module.call(t.spec.Func, []byte(argumentsInJSON))
	if err != nil {
		return "", fmt.Errorf("skill %q func %q: %w", t.module.name, t.spec.Func, err)
	}
	return string(out), nil
}

// loadWasmSkill instantiates the module named by m.WasmPath and wraps its
// exports as the capability tools of a ToolSkill.
func loadWasmSkill(ctx context.Context, dir string, source Source, m *Manifest, instructions string) (*ToolSkill, error) {
	manifestPath := filepath.Join(dir, ManifestFileName)

	meta, err := m.metadata(dir, source)
	if err != nil {
		return nil, loadErr(manifestPath, "invalid metadata", err)
	}

	wasmPath := m.WasmPath
	if !filepath.IsAbs(wasmPath) {
		wasmPath = filepath.Join(dir, wasmPath)
	}
	if _, err := os.Stat(wasmPath); err != nil {
		return nil, loadErr(manifestPath, "wasm module not found", err)
	}
	if !isWithinRoot(dir, wasmPath) {
		return nil, loadErr(manifestPath, "wasm_path escapes the skill directory", nil)
	}

	kv := newKVStore()
	hostFns := newHostFunctions(meta.Name, kv, m.Config, m.Capabilities.KV)

	plugin, err := extism.NewPlugin(ctx, extismManifest(m, wasmPath), extism.PluginConfig{EnableWasi: true}, hostFns)
	if err != nil {
		return nil, loadErr(manifestPath, "instantiate wasm module", err)
	}

	for _, ts := range m.Tools {
		if !plugin.FunctionExists(ts.Func) {
			plugin.Close(ctx)
			return nil, loadErr(manifestPath, fmt.Sprintf("module is missing export %q", ts.Func), nil)
		}
	}

	module := &wasmModule{name: meta.Name, plugin: plugin}
	tools := make([]tool.InvokableTool, len(m.Tools))
	for i, ts := range m.Tools {
		tools[i] = &WasmTool{spec: ts, module: module}
	}

	slog.Info("wasm skill loaded", "skill", meta.Name, "wasm", wasmPath, "tools", len(tools))
	return NewToolSkill(meta, instructions, tools...).WithCloser(module.close), nil
}

// kvStore is the per-module key-value store behind kv_get and kv_set.
type kvStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newKVStore() *kvStore {
	return &kvStore{data: make(map[string][]byte)}
}

func (s *kvStore) get(key string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key]
}

func (s *kvStore) set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

type hostLogMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type hostKVRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// newHostFunctions builds the functions a WASM skill may import from the
// "mask" namespace. kv_get and kv_set are only exported when kvEnabled.
func newHostFunctions(skillName string, kv *kvStore, skillConfig map[string]string, kvEnabled bool) []extism.HostFunction {
	logger := slog.With("skill", skillName)

	logFn := extism.NewHostFunctionWithStack(
		"log",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			input, err := p.ReadBytes(stack[0])
			if err != nil {
				logger.Error("host: read log input", "error", err)
				return
			}
			var msg hostLogMessage
			if err := json.Unmarshal(input, &msg); err != nil {
				logger.Warn("host: invalid log message", "raw", string(input))
				return
			}
			logger.Log(ctx, parseLogLevel(msg.Level), msg.Message)
		},
		[]extism.ValueType{extism.ValueTypePTR},
		nil,
	)
	logFn.SetNamespace(hostNamespace)

	getConfigFn := extism.NewHostFunctionWithStack(
		"get_config",
		func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
			key, err := p.ReadString(stack[0])
			if err != nil {
				logger.Error("host: get_config read key", "error", err)
				stack[0] = 0
				return
			}
			offset, err := p.WriteString(skillConfig[key])
			if err != nil {
				logger.Error("host: get_config write result", "error", err)
				stack[0] = 0
				return
			}
			stack[0] = offset
		},
		[]extism.ValueType{extism.ValueTypePTR},
		[]extism.ValueType{extism.ValueTypePTR},
	)
	getConfigFn.SetNamespace(hostNamespace)

	fns := []extism.HostFunction{logFn, getConfigFn}
	if !kvEnabled {
		return fns
	}

	kvGetFn := extism.NewHostFunctionWithStack(
		"kv_get",
		func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
			key, err := p.ReadString(stack[0])
			if err != nil {
				logger.Error("host: kv_get read key", "error", err)
				stack[0] = 0
				return
			}
			value := kv.get(key)
			if value == nil {
				value = []byte{}
			}
			offset, err := p.WriteBytes(value)
			if err != nil {
				logger.Error("host: kv_get write result", "error", err)
				stack[0] = 0
				return
			}
			stack[0] = offset
		},
		[]extism.ValueType{extism.ValueTypePTR},
		[]extism.ValueType{extism.ValueTypePTR},
	)
	kvGetFn.SetNamespace(hostNamespace)

	kvSetFn := extism.NewHostFunctionWithStack(
		"kv_set",
		func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
			input, err := p.ReadBytes(stack[0])
			if err != nil {
				logger.Error("host: kv_set read input", "error", err)
				return
			}
			var req hostKVRequest
			if err := json.Unmarshal(input, &req); err != nil {
				logger.Error("host: kv_set parse", "error", err)
				return
			}
			kv.set(req.Key, []byte(req.Value))
		},
		[]extism.ValueType{extism.ValueTypePTR},
		nil,
	)
	kvSetFn.SetNamespace(hostNamespace)

	return append(fns, kvGetFn, kvSetFn)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
