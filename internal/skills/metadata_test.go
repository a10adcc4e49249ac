package skills

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"pdf", true},
		{"pdf-processing", true},
		{"a1-b2-c3", true},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
		{"", false},
		{"PDF", false},
		{"pdf_processing", false},
		{"-pdf", false},
		{"pdf-", false},
		{"pdf--processing", false},
		{"pdf processing", false},
	}

	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.valid && err != nil {
			t.Errorf("ValidateName(%q): unexpected error %v", tt.name, err)
		}
		if !tt.valid {
			if err == nil {
				t.Errorf("ValidateName(%q): expected error", tt.name)
			} else if !errors.Is(err, ErrInvalidMetadata) {
				t.Errorf("ValidateName(%q): expected ErrInvalidMetadata, got %v", tt.name, err)
			}
		}
	}
}

func TestNewMetadata_Defaults(t *testing.T) {
	m, err := NewMetadata("pdf", "Work with PDFs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Version != DefaultVersion {
		t.Errorf("expected version %s, got %s", DefaultVersion, m.Version)
	}
	if m.Source != SourceLocal {
		t.Errorf("expected source local, got %s", m.Source)
	}
	if !m.Enabled {
		t.Error("expected enabled by default")
	}
}

func TestNewMetadata_Options(t *testing.T) {
	m, err := NewMetadata("pdf", "Work with PDFs",
		WithVersion("2.1.0"),
		WithTags("docs", "pdf"),
		WithSource(SourceProject),
		WithPath("/skills/pdf"),
		WithEnabled(false),
		WithAllowedTools("Read", "Bash"),
		WithLicense("MIT"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Version != "2.1.0" || m.Source != SourceProject || m.Enabled || m.Path != "/skills/pdf" {
		t.Errorf("options not applied: %+v", m)
	}
	if len(m.Tags) != 2 || len(m.AllowedTools) != 2 || m.License != "MIT" {
		t.Errorf("options not applied: %+v", m)
	}
}

func TestNewMetadata_NameTooLong(t *testing.T) {
	_, err := NewMetadata(strings.Repeat("a", 70), "desc")
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
}

func TestNewMetadata_DescriptionTruncated(t *testing.T) {
	m, err := NewMetadata("long", strings.Repeat("x", 2000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Description) != MaxDescriptionLength {
		t.Errorf("expected description length %d, got %d", MaxDescriptionLength, len(m.Description))
	}

	m, err = NewMetadata("runes", strings.Repeat("é", 1500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := utf8.RuneCountInString(m.Description); n != MaxDescriptionLength {
		t.Errorf("expected %d runes, got %d", MaxDescriptionLength, n)
	}
}

func TestParseSource(t *testing.T) {
	for in, want := range map[string]Source{"": SourceLocal, "USER": SourceUser, "project": SourceProject} {
		got, err := ParseSource(in)
		if err != nil || got != want {
			t.Errorf("ParseSource(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseSource("global"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestDefaultInstructions(t *testing.T) {
	m, _ := NewMetadata("pdf", "Work with PDFs")
	if got := DefaultInstructions(m); got != "# pdf\n\nWork with PDFs" {
		t.Errorf("unexpected default instructions %q", got)
	}
}
