package commands

import (
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

var (
	styleActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	styleEnabled  = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
	styleDisabled = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	styleHeading  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
)

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// styled applies st only when stdout is a terminal.
func styled(st lipgloss.Style, s string) string {
	if !stdoutIsTerminal() {
		return s
	}
	return st.Render(s)
}

// renderMarkdown renders md for the terminal, or returns it unchanged when
// stdout is redirected or rendering fails.
func renderMarkdown(md string) string {
	if !stdoutIsTerminal() {
		return md
	}
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = min(w-2, 120)
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n") + "\n"
}
