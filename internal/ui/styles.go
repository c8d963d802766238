// Package ui provides terminal styling for dex CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorDone = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorProgress = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorBlocked = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

// Status styles - consistent across all commands
var (
	DoneStyle     = lipgloss.NewStyle().Foreground(ColorDone)
	ProgressStyle = lipgloss.NewStyle().Foreground(ColorProgress)
	BlockedStyle  = lipgloss.NewStyle().Foreground(ColorBlocked)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle   = lipgloss.NewStyle().Foreground(ColorAccent)
	HeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons
const (
	IconDone     = "✓"
	IconProgress = "◐"
	IconBlocked  = "⊘"
	IconPending  = "·"
)

// Tree characters for hierarchical display
const (
	TreeBranch = "├─ "
	TreeLast   = "└─ "
	TreePipe   = "│  "
	TreeIndent = "   "
)

// ConfigureColor disables styling when asked, when stdout is not a
// terminal, or when the environment opts out (NO_COLOR, dumb terminals).
func ConfigureColor(noColor bool) {
	if noColor || !term.IsTerminal(int(os.Stdout.Fd())) || termenv.EnvColorProfile() == termenv.Ascii {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// RenderDone renders text with done (green) styling.
func RenderDone(s string) string { return DoneStyle.Render(s) }

// RenderProgress renders text with in-progress (yellow) styling.
func RenderProgress(s string) string { return ProgressStyle.Render(s) }

// RenderBlocked renders text with blocked (red) styling.
func RenderBlocked(s string) string { return BlockedStyle.Render(s) }

// RenderMuted renders text with muted (gray) styling.
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderAccent renders text with accent (blue) styling.
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderHeader renders a section header.
func RenderHeader(s string) string { return HeaderStyle.Render(s) }
