package skills

import (
	extism "github.com/extism/go-sdk"
)

// CapabilitySet defines what a WASM skill may do (deny-by-default).
type CapabilitySet struct {
	HTTP       *HTTPCapability `json:"http,omitempty"`
	KV         bool            `json:"kv"`
	Filesystem *FSCapability   `json:"filesystem,omitempty"`
	Memory     *MemoryLimit    `json:"memory,omitempty"`
	Timeout    int             `json:"timeout,omitempty"` // milliseconds
}

// HTTPCapability allows network access to specific hosts.
type HTTPCapability struct {
	AllowedHosts []string `json:"allowed_hosts"`
}

// FSCapability allows filesystem access to specific paths.
type FSCapability struct {
	AllowedPaths map[string]string `json:"allowed_paths"` // host path → guest path
}

// MemoryLimit constrains WASM memory usage.
type MemoryLimit struct {
	MaxPages uint32 `json:"max_pages"` // 1 page = 64 KiB
}

// extismManifest converts a skill manifest into an extism.Manifest. Only
// explicitly granted hosts, paths and limits are set.
func extismManifest(m *Manifest, wasmPath string) extism.Manifest {
	em := extism.Manifest{
		Wasm:   []extism.Wasm{extism.WasmFile{Path: wasmPath}},
		Config: m.Config,
	}

	caps := m.Capabilities
	if caps.HTTP != nil && len(caps.HTTP.AllowedHosts) > 0 {
		em.AllowedHosts = caps.HTTP.AllowedHosts
	}
	if caps.Filesystem != nil && len(caps.Filesystem.AllowedPaths) > 0 {
		em.AllowedPaths = caps.Filesystem.AllowedPaths
	}
	if caps.Memory != nil && caps.Memory.MaxPages > 0 {
		em.Memory = &extism.ManifestMemory{MaxPages: caps.Memory.MaxPages}
	}
	if caps.Timeout > 0 {
		em.Timeout = uint64(caps.Timeout)
	}
	return em
}
