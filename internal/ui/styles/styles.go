// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#2D3436", Dark: "#CCCCCC"} // Main/primary text
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#636E72", Dark: "#BBBBBB"} // Call ids, secondary info
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#696969"} // Hints, help text, footers

	// Semantic color names - Border
	BorderDefaultColor        = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"} // Unfocused borders
	BorderHighlightFocusColor = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}

	// Semantic color names - Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"} // Success states
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#E1A200", Dark: "#FECA57"} // Warnings
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"} // Errors

	// Selection indicator color (used for ">" prefix in lists)
	SelectionIndicatorColor = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}
	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(SelectionIndicatorColor)
	SelectedRowStyle        = lipgloss.NewStyle().Bold(true)

	// Toast notification colors
	ToastBorderSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	ToastBorderErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	ToastBorderInfoColor    = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}
	ToastBorderWarnColor    = lipgloss.AdaptiveColor{Light: "#E1A200", Dark: "#FECA57"}
	ToastBorderAlertColor   = lipgloss.AdaptiveColor{Light: "#D63031", Dark: "#FF5252"}

	// Call status colors
	CallActiveColor     = lipgloss.AdaptiveColor{Light: "#D63031", Dark: "#FF8787"}
	CallDispatchedColor = lipgloss.AdaptiveColor{Light: "#E17055", Dark: "#FF9F43"}
	CallOnSceneColor    = lipgloss.AdaptiveColor{Light: "#0984E3", Dark: "#54A0FF"}
	CallClosedColor     = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#777777"}

	// Unit status colors
	UnitAvailableColor    = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	UnitEnRouteColor      = lipgloss.AdaptiveColor{Light: "#E1A200", Dark: "#FECA57"}
	UnitOnSceneColor      = lipgloss.AdaptiveColor{Light: "#0984E3", Dark: "#54A0FF"}
	UnitOutOfServiceColor = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}

	// Call priority colors
	PriorityCriticalColor = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	PriorityHighColor     = lipgloss.AdaptiveColor{Light: "#FF9F43", Dark: "#FF9F43"}
	PriorityMediumColor   = lipgloss.AdaptiveColor{Light: "#E1A200", Dark: "#FECA57"}
	PriorityLowColor      = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	PriorityInfoColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}

	PriorityCriticalStyle = lipgloss.NewStyle().Foreground(PriorityCriticalColor).Bold(true)
	PriorityHighStyle     = lipgloss.NewStyle().Foreground(PriorityHighColor)
	PriorityMediumStyle   = lipgloss.NewStyle().Foreground(PriorityMediumColor)
	PriorityLowStyle      = lipgloss.NewStyle().Foreground(PriorityLowColor)
	PriorityInfoStyle     = lipgloss.NewStyle().Foreground(PriorityInfoColor)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	MutedBadgeStyle = lipgloss.NewStyle().
			Foreground(StatusWarningColor).
			Bold(true)

	HintStyle = lipgloss.NewStyle().Foreground(TextMutedColor)

	// Error display
	ErrorStyle = lipgloss.NewStyle().
			Foreground(StatusErrorColor).
			Bold(true).
			Padding(1, 2)
)
