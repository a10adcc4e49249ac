package skills

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/events"
)

// Dir is a skill root to discover from. Path may start with "~/" and may
// be a doublestar glob matching several roots.
type Dir struct {
	Path   string
	Source Source
}

// DiscoverFromDirectories discovers every root in order and returns the
// total number of skills registered.
func (r *Registry) DiscoverFromDirectories(ctx context.Context, dirs []Dir) int {
	total := 0
	for _, d := range dirs {
		for _, root := range expandDirPattern(d.Path) {
			total += r.DiscoverFromDirectory(ctx, root, d.Source)
		}
	}
	return total
}

// DiscoverFromDirectory registers every skill found in the immediate
// subdirectories of root and returns how many were registered. Hidden
// entries, non-directories and entries resolving outside root are skipped.
// Per-skill failures are logged and never abort discovery.
func (r *Registry) DiscoverFromDirectory(ctx context.Context, root string, source Source) int {
	fi, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("skills directory not found, skipping", "dir", root)
		} else {
			slog.Warn("cannot read skills directory", "dir", root, "error", err)
		}
		return 0
	}
	if !fi.IsDir() {
		slog.Warn("skills path is not a directory", "dir", root)
		return 0
	}

	resolvedRoot, err := resolvePath(root)
	if err != nil {
		slog.Warn("cannot resolve skills directory", "dir", root, "error", err)
		return 0
	}

	entries, err := os.ReadDir(resolvedRoot)
	if err != nil {
		slog.Warn("cannot read skills directory", "dir", root, "error", err)
		return 0
	}

	count := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			slog.Warn("skill discovery cancelled", "dir", root, "error", ctx.Err())
			break
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(resolvedRoot, name)
		if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
			continue
		}
		if !isWithinRoot(resolvedRoot, path) {
			slog.Warn("skipping skill outside skills directory", "path", path, "root", resolvedRoot)
			continue
		}
		if !fileExists(filepath.Join(path, ManifestFileName)) && !fileExists(filepath.Join(path, SkillFileName)) {
			slog.Debug("no skill definition, skipping", "path", path)
			continue
		}

		skill, err := r.LoadSkillDir(ctx, path, source)
		if err != nil {
			slog.Warn("failed to load skill", "path", path, "error", err)
			continue
		}
		if err := r.Register(skill); err != nil {
			slog.Warn("failed to register skill", "name", skill.Metadata().Name, "path", path, "error", err)
			closeSkill(ctx, skill)
			continue
		}
		count++
	}

	slog.Info("skills discovered", "dir", root, "source", source, "count", count)
	r.bus.Publish(events.NewTypedEvent(events.SourceRegistry, events.SkillDiscoveredPayload{
		Dir:    root,
		Source: string(source),
		Count:  count,
	}))
	return count
}

// LoadSkillDir loads a single skill directory without registering it.
// skill.jsonc takes precedence over SKILL.md; if the programmatic load
// fails and a SKILL.md exists, the declarative skill is loaded instead.
func (r *Registry) LoadSkillDir(ctx context.Context, dir string, source Source) (Skill, error) {
	manifestPath := filepath.Join(dir, ManifestFileName)
	skillPath := filepath.Join(dir, SkillFileName)

	if fileExists(manifestPath) {
		skill, err := r.loadProgrammatic(ctx, dir, source)
		if err == nil {
			return skill, nil
		}
		if !fileExists(skillPath) {
			return nil, err
		}
		slog.Warn("programmatic skill failed, falling back to SKILL.md", "dir", dir, "error", err)
	}

	if fileExists(skillPath) {
		return LoadMarkdownSkill(dir, source)
	}
	return nil, loadErr(dir, "no "+SkillFileName+" or "+ManifestFileName, nil)
}

func (r *Registry) loadProgrammatic(ctx context.Context, dir string, source Source) (Skill, error) {
	manifestPath := filepath.Join(dir, ManifestFileName)
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	if m.Provider != "" {
		skill, err := r.providers.Build(ctx, m.Provider, ProviderOptions{
			Dir:    dir,
			Source: source,
			Config: m.Config,
		})
		if err != nil {
			return nil, loadErr(manifestPath, "build provider skill", err)
		}
		if m.Name != "" && m.Name != skill.Metadata().Name {
			slog.Warn("manifest name differs from provider skill", "manifest", m.Name, "skill", skill.Metadata().Name)
		}
		return skill, nil
	}

	var instructions string
	if skillPath := filepath.Join(dir, SkillFileName); fileExists(skillPath) {
		_, body, err := ParseSkillMD(skillPath, source)
		if err != nil {
			return nil, err
		}
		instructions = body
	}
	return loadWasmSkill(ctx, dir, source, m, instructions)
}

// resolvePath returns the absolute, symlink-free form of path.
func resolvePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// isWithinRoot reports whether path, once symlinks are resolved, is root
// itself or lies beneath it. Unresolvable paths are never within root.
func isWithinRoot(root, path string) bool {
	resolvedRoot, err := resolvePath(root)
	if err != nil {
		return false
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// expandDirPattern expands "~/" and glob patterns into directories. A plain
// path is returned as is, even if it does not exist.
func expandDirPattern(pattern string) []string {
	pattern = config.ExpandHome(pattern)
	if !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		slog.Warn("invalid skills directory pattern", "pattern", pattern, "error", err)
		return nil
	}
	dirs := matches[:0]
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.IsDir() {
			dirs = append(dirs, m)
		}
	}
	return dirs
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func closeSkill(ctx context.Context, s Skill) {
	c, ok := s.(Closer)
	if !ok {
		return
	}
	if err := c.Close(ctx); err != nil {
		slog.Warn("close skill", "name", s.Metadata().Name, "error", err)
	}
}
