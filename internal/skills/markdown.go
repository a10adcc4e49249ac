package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"gopkg.in/yaml.v3"
)

const (
	// SkillFileName is the declarative skill definition inside a skill dir.
	SkillFileName = "SKILL.md"
	// MaxSkillFileSize bounds SKILL.md, checked before the file is read.
	MaxSkillFileSize = 10 << 20
)

// MarkdownSkill is a declarative skill defined by a SKILL.md file. It has
// no capability tools; its instructions are the markdown body.
type MarkdownSkill struct {
	meta         *Metadata
	instructions string
	dir          string
	loader       *LoaderTool
}

var _ Skill = (*MarkdownSkill)(nil)

// NewMarkdownSkill builds a declarative skill from parsed parts.
func NewMarkdownSkill(meta *Metadata, instructions, dir string) *MarkdownSkill {
	s := &MarkdownSkill{meta: meta, instructions: instructions, dir: dir}
	s.loader = newLoaderTool(meta, s.Instructions)
	return s
}

func (s *MarkdownSkill) Metadata() *Metadata { return s.meta }

func (s *MarkdownSkill) Kind() Kind { return KindMarkdown }

func (s *MarkdownSkill) Tools() []tool.InvokableTool { return nil }

func (s *MarkdownSkill) LoaderTool() tool.InvokableTool { return s.loader }

func (s *MarkdownSkill) Instructions() string { return s.instructions }

// Dir returns the skill directory.
func (s *MarkdownSkill) Dir() string { return s.dir }

// LoadMarkdownSkill loads dir/SKILL.md.
func LoadMarkdownSkill(dir string, source Source) (*MarkdownSkill, error) {
	meta, body, err := ParseSkillMD(filepath.Join(dir, SkillFileName), source)
	if err != nil {
		return nil, err
	}
	return NewMarkdownSkill(meta, body, dir), nil
}

// frontmatter mirrors the YAML header of a SKILL.md file.
type frontmatter struct {
	Name          string    `yaml:"name"`
	Description   string    `yaml:"description"`
	Version       string    `yaml:"version"`
	Tags          []string  `yaml:"tags"`
	License       string    `yaml:"license"`
	Compatibility string    `yaml:"compatibility"`
	AllowedTools  yaml.Node `yaml:"allowed-tools"`
	Enabled       *bool     `yaml:"enabled"`
}

// ParseSkillMD reads a SKILL.md file and returns its metadata and the
// whitespace-trimmed markdown body.
func ParseSkillMD(path string, source Source) (*Metadata, string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, "", loadErr(path, "stat", err)
	}
	if fi.Size() > MaxSkillFileSize {
		return nil, "", loadErr(path, fmt.Sprintf("file exceeds %d bytes", MaxSkillFileSize), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", loadErr(path, "read", err)
	}

	header, body, ok := splitFrontmatter(string(data))
	if !ok {
		return nil, "", loadErr(path, "missing YAML frontmatter", nil)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(header), &doc); err != nil {
		return nil, "", loadErr(path, "invalid YAML frontmatter", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, "", loadErr(path, "frontmatter must be a mapping", nil)
	}

	var fm frontmatter
	if err := doc.Content[0].Decode(&fm); err != nil {
		return nil, "", loadErr(path, "decode frontmatter", err)
	}
	if strings.TrimSpace(fm.Name) == "" {
		return nil, "", loadErr(path, "missing required field 'name'", nil)
	}
	if strings.TrimSpace(fm.Description) == "" {
		return nil, "", loadErr(path, "missing required field 'description'", nil)
	}

	allowed, err := decodeAllowedTools(&fm.AllowedTools)
	if err != nil {
		return nil, "", loadErr(path, "invalid allowed-tools", err)
	}

	dir := filepath.Dir(path)
	opts := []MetadataOption{
		WithVersion(fm.Version),
		WithTags(fm.Tags...),
		WithSource(source),
		WithPath(dir),
		WithLicense(fm.License),
		WithCompatibility(fm.Compatibility),
		WithAllowedTools(allowed...),
	}
	if fm.Enabled != nil {
		opts = append(opts, WithEnabled(*fm.Enabled))
	}

	meta, err := NewMetadata(fm.Name, fm.Description, opts...)
	if err != nil {
		return nil, "", loadErr(path, "invalid metadata", err)
	}

	if base := filepath.Base(dir); base != meta.Name {
		slog.Warn("skill name does not match directory", "skill", meta.Name, "dir", base)
	}

	return meta, strings.TrimSpace(body), nil
}

// splitFrontmatter separates a "---" fenced YAML header from the body.
// The opening fence must be the first line.
func splitFrontmatter(content string) (header, body string, ok bool) {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	first, rest, found := strings.Cut(content, "\n")
	if !found || strings.TrimRight(first, " \t") != "---" {
		return "", "", false
	}

	var headerLines []string
	for {
		line, remaining, more := strings.Cut(rest, "\n")
		if strings.TrimRight(line, " \t") == "---" {
			if !more {
				remaining = ""
			}
			return strings.Join(headerLines, "\n"), remaining, true
		}
		if !more {
			return "", "", false
		}
		headerLines = append(headerLines, line)
		rest = remaining
	}
}

// decodeAllowedTools accepts either a space separated string or a list.
func decodeAllowedTools(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		return strings.Fields(n.Value), nil
	case yaml.SequenceNode:
		var tools []string
		if err := n.Decode(&tools); err != nil {
			return nil, err
		}
		return tools, nil
	default:
		return nil, fmt.Errorf("expected string or list")
	}
}
