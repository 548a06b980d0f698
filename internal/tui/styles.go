package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Accent color for the banner and headers.
const accentTeal = "#2BB8A5"

// TUTOR ASCII art (filled block style).
var tutorArt = []string{
	" ████████╗██╗   ██╗████████╗ ██████╗ ██████╗ ",
	" ╚══██╔══╝██║   ██║╚══██╔══╝██╔═══██╗██╔══██╗",
	"    ██║   ██║   ██║   ██║   ██║   ██║██████╔╝",
	"    ██║   ██║   ██║   ██║   ██║   ██║██╔══██╗",
	"    ██║   ╚██████╔╝   ██║   ╚██████╔╝██║  ██║",
	"    ╚═╝    ╚═════╝    ╚═╝    ╚═════╝ ╚═╝  ╚═╝",
}

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Banner    lipgloss.Style
	Header    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Tips      lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
	Separator lipgloss.Style
	Sidebar   lipgloss.Style
	Selected  lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentTeal)),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentTeal)),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:      lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Sidebar:   lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderRight(true).BorderForeground(lipgloss.Color("240")).PaddingRight(1),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentTeal)),
	}
}

// RenderBanner returns the TUTOR ASCII art banner as a styled string.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range tutorArt {
		_, _ = b.WriteString(s.Banner.Render(line))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// welcomeTips contains getting started tips displayed under the banner.
var welcomeTips = []string{
	"Tips for getting started:",
	"  • Ask about your uploaded documents or any subject",
	"  • Use /upload <path> to add a document to the knowledge base",
	"  • Ctrl+L shows your saved chats, Ctrl+N starts a fresh one",
	"  • Use /help to see all commands",
}

// RenderWelcomeTips returns styled welcome tips.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}
