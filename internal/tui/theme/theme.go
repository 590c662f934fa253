// Package theme provides the Lip Gloss palette and reusable styles for the
// dashboard TUI. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Payload shape colors.
var (
	ColorList   = lipgloss.Color("#3b82f6")
	ColorObject = lipgloss.Color("#a855f7")
	ColorEmpty  = lipgloss.Color("#4b5563")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// ShapeColor returns the color for a payload summary: a list, an object or
// an empty value.
func ShapeColor(isList bool, size int) lipgloss.Color {
	switch {
	case size == 0:
		return ColorEmpty
	case isList:
		return ColorList
	default:
		return ColorObject
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)
