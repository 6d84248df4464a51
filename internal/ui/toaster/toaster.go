// Package toaster provides a notification toast overlay component.
package toaster

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/watchdesk/watchdesk/internal/ui/overlay"
	"github.com/watchdesk/watchdesk/internal/ui/styles"
)

// Style determines the visual appearance of the toast.
type Style int

const (
	// StyleSuccess shows ✅ with green border.
	StyleSuccess Style = iota
	// StyleError shows ❌ with red background.
	StyleError
	// StyleInfo shows ℹ️ with blue border for informational messages.
	StyleInfo
	// StyleWarn shows ⚠️ with yellow background for warnings.
	StyleWarn
	// StyleAlert shows 🚨 with a bold red border for new calls and
	// dispatch assignments.
	StyleAlert
)

// Durations for each kind of toast.
const (
	DefaultDuration = 3 * time.Second
	AlertDuration   = 8 * time.Second
)

// DurationFor returns how long a toast of style s stays up.
func DurationFor(s Style) time.Duration {
	if s == StyleAlert || s == StyleError {
		return AlertDuration
	}
	return DefaultDuration
}

// Model holds the toaster state.
type Model struct {
	seq     int
	message string
	style   Style
	visible bool
	width   int
	height  int
}

// New creates a new toaster model.
func New() Model {
	return Model{}
}

// Show displays a toast with the given message and style.
// The appropriate emoji is automatically prepended based on style.
func (m Model) Show(message string, style Style) Model {
	m.seq++
	m.message = message
	m.style = style
	m.visible = true
	return m
}

// Seq identifies the toast currently shown. Each Show bumps it.
func (m Model) Seq() int {
	return m.seq
}

// Dismiss hides the toast if msg was scheduled for it. A dismissal
// scheduled for an earlier toast leaves a newer one up.
func (m Model) Dismiss(msg DismissMsg) Model {
	if msg.Seq != m.seq {
		return m
	}
	return m.Hide()
}

// Hide dismisses the toast.
func (m Model) Hide() Model {
	m.visible = false
	m.message = ""
	return m
}

// Visible returns whether the toast is currently showing.
func (m Model) Visible() bool {
	return m.visible
}

// SetSize updates the viewport dimensions for overlay positioning.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	return m
}

type look struct {
	icon   string
	border lipgloss.Border
	color  lipgloss.AdaptiveColor
	bold   bool
}

var looks = map[Style]look{
	StyleSuccess: {"✅", lipgloss.RoundedBorder(), styles.ToastBorderSuccessColor, false},
	StyleError:   {"❌", lipgloss.RoundedBorder(), styles.ToastBorderErrorColor, false},
	StyleInfo:    {"ℹ️", lipgloss.RoundedBorder(), styles.ToastBorderInfoColor, false},
	StyleWarn:    {"⚠️", lipgloss.RoundedBorder(), styles.ToastBorderWarnColor, false},
	StyleAlert:   {"🚨", lipgloss.ThickBorder(), styles.ToastBorderAlertColor, true},
}

// View renders the toast box, or "" when nothing is showing.
func (m Model) View() string {
	if !m.visible || m.message == "" {
		return ""
	}
	lk, ok := looks[m.style]
	if !ok {
		lk = looks[StyleSuccess]
	}
	return lipgloss.NewStyle().
		Padding(0, 1).
		Border(lk.border).
		BorderForeground(lk.color).
		Bold(lk.bold).
		Render(lk.icon + " " + m.message)
}

// Overlay renders the toast on top of a background view.
// Uses bottom-center positioning with padding from the bottom edge.
func (m Model) Overlay(bg string, width, height int) string {
	if !m.visible || m.message == "" {
		return bg
	}

	fg := m.View()

	cfg := overlay.Config{
		Width:    width,
		Height:   height,
		Position: overlay.Bottom,
		PadY:     1, // Padding from bottom edge
	}

	return overlay.Place(cfg, fg, bg)
}

// DismissMsg signals that toast Seq should be dismissed.
type DismissMsg struct {
	Seq int
}

// ScheduleDismiss returns a command that dismisses toast seq after d.
func ScheduleDismiss(seq int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return DismissMsg{Seq: seq}
	})
}
