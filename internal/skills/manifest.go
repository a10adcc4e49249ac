package skills

import (
	"fmt"
	"os"

	"github.com/dohr-michael/mask/internal/config"
)

// ManifestFileName marks a programmatic skill directory.
const ManifestFileName = "skill.jsonc"

// Manifest describes a programmatic skill. Exactly one of Provider and
// WasmPath selects the implementation.
type Manifest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Version      string            `json:"version"`
	Tags         []string          `json:"tags"`
	Enabled      *bool             `json:"enabled,omitempty"`
	Provider     string            `json:"provider,omitempty"`  // linked provider name
	WasmPath     string            `json:"wasm_path,omitempty"` // relative to the skill dir
	Tools        []ToolSpec        `json:"tools,omitempty"`     // WASM exports
	Capabilities CapabilitySet     `json:"capabilities"`
	Config       map[string]string `json:"config,omitempty"`
}

// LoadManifest reads and validates a skill.jsonc file. Env templates
// (${{ .Env.VAR }}) are expanded.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadErr(path, "read manifest", err)
	}

	var m Manifest
	if err := config.UnmarshalJSONC(data, &m); err != nil {
		return nil, loadErr(path, "parse manifest", err)
	}

	switch {
	case m.Provider != "" && m.WasmPath != "":
		return nil, loadErr(path, "ambiguous implementation: both provider and wasm_path are set", nil)
	case m.Provider == "" && m.WasmPath == "":
		return nil, loadErr(path, "no implementation: provider or wasm_path is required", nil)
	}

	if m.WasmPath != "" {
		if m.Name == "" || m.Description == "" {
			return nil, loadErr(path, "wasm skills require name and description", nil)
		}
		if len(m.Tools) == 0 {
			return nil, loadErr(path, "wasm skills require at least one tool", nil)
		}
		for i := range m.Tools {
			if m.Tools[i].Func == "" {
				m.Tools[i].Func = "handle"
			}
			if m.Tools[i].Name == "" {
				return nil, loadErr(path, fmt.Sprintf("tool at index %d must have a name", i), nil)
			}
		}
	}

	return &m, nil
}

// metadata builds skill metadata from the manifest fields.
func (m *Manifest) metadata(dir string, source Source) (*Metadata, error) {
	opts := []MetadataOption{
		WithVersion(m.Version),
		WithTags(m.Tags...),
		WithSource(source),
		WithPath(dir),
	}
	if m.Enabled != nil {
		opts = append(opts, WithEnabled(*m.Enabled))
	}
	return NewMetadata(m.Name, m.Description, opts...)
}
