package skills

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength        = 64
	MaxDescriptionLength = 1024
	DefaultVersion       = "1.0.0"
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Source tells where a skill was discovered.
type Source string

const (
	SourceLocal   Source = "local"
	SourceUser    Source = "user"
	SourceProject Source = "project"
)

// ParseSource converts a config or CLI value to a Source. Empty means local.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceLocal:
		return SourceLocal, nil
	case SourceUser:
		return SourceUser, nil
	case SourceProject:
		return SourceProject, nil
	default:
		return "", fmt.Errorf("unknown skill source %q", s)
	}
}

// Metadata describes a skill. It is immutable once built by NewMetadata.
type Metadata struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Version       string   `json:"version"`
	Tags          []string `json:"tags,omitempty"`
	Source        Source   `json:"source"`
	Path          string   `json:"path,omitempty"`
	Enabled       bool     `json:"enabled"`
	AllowedTools  []string `json:"allowed_tools,omitempty"`
	License       string   `json:"license,omitempty"`
	Compatibility string   `json:"compatibility,omitempty"`
}

// MetadataOption customises NewMetadata.
type MetadataOption func(*Metadata)

func WithVersion(v string) MetadataOption {
	return func(m *Metadata) {
		if v != "" {
			m.Version = v
		}
	}
}

func WithTags(tags ...string) MetadataOption {
	return func(m *Metadata) { m.Tags = append([]string(nil), tags...) }
}

func WithSource(s Source) MetadataOption {
	return func(m *Metadata) {
		if s != "" {
			m.Source = s
		}
	}
}

func WithPath(p string) MetadataOption {
	return func(m *Metadata) { m.Path = p }
}

func WithEnabled(enabled bool) MetadataOption {
	return func(m *Metadata) { m.Enabled = enabled }
}

func WithAllowedTools(tools ...string) MetadataOption {
	return func(m *Metadata) { m.AllowedTools = append([]string(nil), tools...) }
}

func WithLicense(l string) MetadataOption {
	return func(m *Metadata) { m.License = l }
}

func WithCompatibility(c string) MetadataOption {
	return func(m *Metadata) { m.Compatibility = c }
}

// NewMetadata validates name and builds Metadata with defaults applied.
// Descriptions longer than MaxDescriptionLength runes are truncated.
func NewMetadata(name, description string, opts ...MetadataOption) (*Metadata, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	m := &Metadata{
		Name:        name,
		Description: truncateDescription(name, description),
		Version:     DefaultVersion,
		Source:      SourceLocal,
		Enabled:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ValidateName checks the skill naming rule: lowercase alphanumeric words
// separated by single hyphens, at most MaxNameLength characters.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMetadata)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name %q exceeds %d characters", ErrInvalidMetadata, name, MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name %q must be lowercase alphanumeric with single hyphens", ErrInvalidMetadata, name)
	}
	return nil
}

func truncateDescription(name, description string) string {
	if utf8.RuneCountInString(description) <= MaxDescriptionLength {
		return description
	}
	slog.Warn("skill description truncated", "skill", name, "max", MaxDescriptionLength)
	return string([]rune(description)[:MaxDescriptionLength])
}
