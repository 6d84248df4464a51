// Package logview is the debug log overlay. It keeps the most recent log
// entries published by the logger and shows them over the board.
package logview

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/ui/overlay"
	"github.com/watchdesk/watchdesk/internal/ui/styles"
)

const (
	maxEntries        = 500
	viewportMaxHeight = 25
	viewportMinHeight = 5
	boxMaxWidth       = 160
	boxMinWidth       = 40
)

// Model is the log overlay state.
type Model struct {
	visible  bool
	minLevel log.Level
	entries  []string
	width    int
	height   int
	viewport viewport.Model
}

// New creates a hidden overlay showing every level.
func New() Model {
	return Model{minLevel: log.LevelDebug}
}

// Append records an entry, dropping the oldest beyond the cap.
func (m Model) Append(entry string) Model {
	m.entries = append(m.entries, strings.TrimSuffix(entry, "\n"))
	if over := len(m.entries) - maxEntries; over > 0 {
		m.entries = append([]string(nil), m.entries[over:]...)
	}
	if m.visible {
		m.refresh()
	}
	return m
}

// Len returns the number of retained entries.
func (m Model) Len() int {
	return len(m.entries)
}

// Visible reports whether the overlay is shown.
func (m Model) Visible() bool {
	return m.visible
}

// Toggle shows or hides the overlay.
func (m Model) Toggle() Model {
	m.visible = !m.visible
	if m.visible {
		m.refresh()
		m.viewport.GotoBottom()
	}
	return m
}

// SetSize records the screen size.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	m.refresh()
	return m
}

// Update handles keys while visible.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "c":
		m.entries = nil
	case "d":
		m.minLevel = log.LevelDebug
	case "i":
		m.minLevel = log.LevelInfo
	case "w":
		m.minLevel = log.LevelWarn
	case "e":
		m.minLevel = log.LevelError
	case "j", "down":
		m.viewport.ScrollDown(1)
		return m, nil
	case "k", "up":
		m.viewport.ScrollUp(1)
		return m, nil
	case "g":
		m.viewport.GotoTop()
		return m, nil
	case "G":
		m.viewport.GotoBottom()
		return m, nil
	case "esc", "ctrl+x":
		m.visible = false
		return m, nil
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

// Overlay draws the log box centered over bg.
func (m Model) Overlay(bg string) string {
	if !m.visible {
		return bg
	}
	return overlay.Place(overlay.Config{
		Width:    m.width,
		Height:   m.height,
		Position: overlay.Center,
	}, m.View(), bg)
}

// View renders the box.
func (m Model) View() string {
	if !m.visible {
		return ""
	}
	width := m.boxWidth()
	divider := lipgloss.NewStyle().Foreground(styles.BorderDefaultColor).Render(strings.Repeat("─", width))
	title := lipgloss.NewStyle().Bold(true).Foreground(styles.TextPrimaryColor).PaddingLeft(1).Render("Logs")

	body := strings.Join([]string{title, divider, m.viewport.View(), divider, m.filterHint()}, "\n")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.BorderHighlightFocusColor).
		Width(width).
		Render(body)
}

func (m *Model) refresh() {
	if m.width == 0 || m.height == 0 {
		return
	}
	height := max(min(viewportMaxHeight, m.height-6), viewportMinHeight)
	offset := m.viewport.YOffset
	m.viewport = viewport.New(m.boxWidth()-2, height)
	m.viewport.SetContent(m.content(m.boxWidth() - 2))
	m.viewport.SetYOffset(offset)
}

func (m Model) content(width int) string {
	var lines []string
	for _, entry := range m.entries {
		if levelOf(entry) < m.minLevel {
			continue
		}
		if ansi.StringWidth(entry) > width {
			entry = ansi.Truncate(entry, width, "...")
		}
		lines = append(lines, colorize(entry))
	}
	if len(lines) == 0 {
		return lipgloss.NewStyle().Foreground(styles.TextMutedColor).Italic(true).Render("No logs to display")
	}
	return strings.Join(lines, "\n")
}

func (m Model) boxWidth() int {
	return max(min(m.width-4, boxMaxWidth), boxMinWidth)
}

func (m Model) filterHint() string {
	hint := lipgloss.NewStyle().Foreground(styles.TextMutedColor)
	active := lipgloss.NewStyle().Foreground(styles.TextPrimaryColor).Bold(true)

	parts := []string{hint.Render("[c] Clear")}
	for _, f := range []struct {
		label string
		level log.Level
	}{
		{"[d] Debug", log.LevelDebug},
		{"[i] Info", log.LevelInfo},
		{"[w] Warn", log.LevelWarn},
		{"[e] Error", log.LevelError},
	} {
		if f.level == m.minLevel {
			parts = append(parts, active.Render(f.label))
		} else {
			parts = append(parts, hint.Render(f.label))
		}
	}
	return strings.Join(parts, "  ")
}

// levelOf reads the level tag the logger writes. Untagged lines count as errors
// so they survive every filter.
func levelOf(entry string) log.Level {
	switch {
	case strings.Contains(entry, "[DEBUG]"):
		return log.LevelDebug
	case strings.Contains(entry, "[INFO]"):
		return log.LevelInfo
	case strings.Contains(entry, "[WARN]"):
		return log.LevelWarn
	default:
		return log.LevelError
	}
}

func colorize(entry string) string {
	var color lipgloss.TerminalColor
	switch levelOf(entry) {
	case log.LevelDebug:
		color = styles.TextMutedColor
	case log.LevelInfo:
		color = styles.ToastBorderInfoColor
	case log.LevelWarn:
		color = styles.StatusWarningColor
	default:
		color = styles.StatusErrorColor
	}
	return lipgloss.NewStyle().Foreground(color).Render(entry)
}
