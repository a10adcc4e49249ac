package config

import (
	"os"
	"path/filepath"
	"strings"
)

// MaskPath returns the root directory for mask data.
// It uses $MASK_PATH if set, otherwise defaults to ~/.mask.
func MaskPath() string {
	if v := os.Getenv("MASK_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".mask")
	}
	return filepath.Join(home, ".mask")
}

// ConfigPath returns the path to the mask config file.
func ConfigPath() string {
	return filepath.Join(MaskPath(), "config.jsonc")
}

// DotenvPath returns the path to the mask .env file.
func DotenvPath() string {
	return filepath.Join(MaskPath(), ".env")
}

// SkillsPath returns the default user skills directory.
func SkillsPath() string {
	return filepath.Join(MaskPath(), "skills")
}

// SessionsPath returns the default file session store directory.
func SessionsPath() string {
	return filepath.Join(MaskPath(), "sessions")
}

// HeartbeatPath returns the gateway heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(MaskPath(), "gateway.json")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
