package tui

import "github.com/charmbracelet/lipgloss"

// Tsim color palette
var (
	ColorIce   = lipgloss.Color("#A8D8EA") // accents
	ColorDeep  = lipgloss.Color("#596E79") // secondary text, borders
	ColorText  = lipgloss.Color("#E0E0E0") // primary text
	ColorAlert = lipgloss.Color("#FF6B6B") // denies, errors
	ColorGood  = lipgloss.Color("#4ECDC4") // accepts
	ColorMuted = lipgloss.Color("#6c757d") // help line
)

var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorIce).
			Bold(true)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorAlert).
			Bold(true)

	StyleReason = lipgloss.NewStyle().
			Foreground(ColorText)

	// Verdict banners
	StyleAllowed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(ColorGood).
			Bold(true).
			Padding(0, 2)

	StyleDenied = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorAlert).
			Bold(true).
			Padding(0, 2)
)
