package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestReloader_Current(t *testing.T) {
	cfg := &Config{}
	cfg.Gateway.Port = 9999

	r := NewReloader("", "", cfg)
	got := r.Current()
	if got.Gateway.Port != 9999 {
		t.Errorf("Current().Gateway.Port = %d, want 9999", got.Gateway.Port)
	}
}

func TestReloader_Reload(t *testing.T) {
	dir := t.TempDir()
	dotenvPath := filepath.Join(dir, ".env")
	configPath := filepath.Join(dir, "config.jsonc")

	if err := os.WriteFile(dotenvPath, []byte("MASK_TEST_SKILLS=initial\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MASK_TEST_SKILLS", "stale")

	configContent := `{
		// skills dir comes from the environment
		"skills": {"dirs": ["/srv/${{ .Env.MASK_TEST_SKILLS }}"]},
	}`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := &Config{}
	r := NewReloader(configPath, dotenvPath, initial)

	var callCount atomic.Int32
	var prevSeen *Config
	r.OnReload(func(prev, next *Config) {
		callCount.Add(1)
		prevSeen = prev
	})

	if err := os.WriteFile(dotenvPath, []byte("MASK_TEST_SKILLS=reloaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if callCount.Load() != 1 {
		t.Errorf("listener called %d times, want 1", callCount.Load())
	}
	if prevSeen != initial {
		t.Error("listener did not receive the previous config")
	}

	got := r.Current()
	if got == initial {
		t.Fatal("Current() still returns initial config after reload")
	}
	if len(got.Skills.Dirs) != 1 || got.Skills.Dirs[0].Path != "/srv/reloaded" {
		t.Errorf("unexpected skill dirs %+v", got.Skills.Dirs)
	}
}

func TestReloader_ReloadMissingDotenv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	dotenvPath := filepath.Join(dir, ".env")

	if err := os.WriteFile(configPath, []byte(`{"gateway": {"port": 18431}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReloader(configPath, dotenvPath, &Config{})
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload with missing .env: %v", err)
	}
	if r.Current().Gateway.Port != 18431 {
		t.Errorf("unexpected port %d", r.Current().Gateway.Port)
	}
}

func TestReloader_ReloadInvalidKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{"gateway": `), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := &Config{}
	r := NewReloader(configPath, "", initial)
	if err := r.Reload(); err == nil {
		t.Fatal("expected error for invalid config")
	}
	if r.Current() != initial {
		t.Error("invalid reload replaced the current config")
	}
}
