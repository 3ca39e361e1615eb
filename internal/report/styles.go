package report

import "github.com/charmbracelet/lipgloss"

var (
	successColor = lipgloss.Color("#10B981") // Green
	errorColor   = lipgloss.Color("#F87171") // Red
	warningColor = lipgloss.Color("#F59E0B") // Amber
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	primaryColor = lipgloss.Color("#A78BFA") // Purple

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)

	statusStyles = map[string]lipgloss.Style{
		"SUCCESS":   lipgloss.NewStyle().Bold(true).Foreground(successColor),
		"FAILED":    lipgloss.NewStyle().Bold(true).Foreground(errorColor),
		"NOT_FOUND": lipgloss.NewStyle().Bold(true).Foreground(errorColor),
		"TIMEOUT":   lipgloss.NewStyle().Bold(true).Foreground(warningColor),
		"SKIPPED":   lipgloss.NewStyle().Foreground(mutedColor),
	}
)

// painter applies styles only when color output is enabled.
type painter struct {
	color bool
}

func (p painter) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p painter) status(status string) string {
	style, ok := statusStyles[status]
	if !ok {
		return status
	}
	return p.render(style, status)
}
