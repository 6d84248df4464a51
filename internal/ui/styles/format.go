package styles

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/watchdesk/watchdesk/internal/dispatch"
)

// TruncateString truncates a string to fit within maxWidth, adding ellipsis if needed.
func TruncateString(s string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}

	if lipgloss.Width(s) <= maxWidth {
		return s
	}

	// Need to truncate - leave room for ellipsis
	if maxWidth <= 3 {
		return strings.Repeat(".", maxWidth)
	}

	// Truncate rune by rune
	result := ""
	for _, r := range s {
		test := result + string(r)
		if lipgloss.Width(test) > maxWidth-3 {
			break
		}
		result = test
	}

	return result + "..."
}

// PadRight pads s with spaces to width cells.
func PadRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// FormatAge renders how long ago t was, e.g. "45s", "12m", "3h".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", max(int(d.Seconds()), 0))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// PriorityStyle returns the style for a call priority.
func PriorityStyle(p int) lipgloss.Style {
	switch p {
	case 1:
		return PriorityCriticalStyle
	case 2:
		return PriorityHighStyle
	case 3:
		return PriorityMediumStyle
	case 4:
		return PriorityLowStyle
	default:
		return PriorityInfoStyle
	}
}

// PriorityBadge renders "P1" style badges.
func PriorityBadge(p int) string {
	return PriorityStyle(p).Render(fmt.Sprintf("P%d", p))
}

// CallStatusStyle returns the style for a call status.
func CallStatusStyle(s dispatch.CallStatus) lipgloss.Style {
	switch s {
	case dispatch.CallActive:
		return lipgloss.NewStyle().Foreground(CallActiveColor).Bold(true)
	case dispatch.CallDispatched:
		return lipgloss.NewStyle().Foreground(CallDispatchedColor)
	case dispatch.CallOnScene:
		return lipgloss.NewStyle().Foreground(CallOnSceneColor)
	default:
		return lipgloss.NewStyle().Foreground(CallClosedColor)
	}
}

// UnitStatusStyle returns the style for a unit status.
func UnitStatusStyle(s dispatch.UnitStatus) lipgloss.Style {
	switch s {
	case dispatch.UnitAvailable:
		return lipgloss.NewStyle().Foreground(UnitAvailableColor)
	case dispatch.UnitEnRoute:
		return lipgloss.NewStyle().Foreground(UnitEnRouteColor)
	case dispatch.UnitOnScene:
		return lipgloss.NewStyle().Foreground(UnitOnSceneColor)
	default:
		return lipgloss.NewStyle().Foreground(UnitOutOfServiceColor)
	}
}
