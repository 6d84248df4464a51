package board

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/ui/styles"
)

// Column widths for the call table.
const (
	colPriority = 3
	colStatus   = 11
	colUnit     = 10
	colAge      = 5
)

type callItem struct {
	call dispatch.Call
}

func (i callItem) FilterValue() string { return i.call.Summary() }

type assignmentItem struct {
	a dispatch.Assignment
}

func (i assignmentItem) FilterValue() string { return i.a.Message }

// callDelegate renders one call per line.
type callDelegate struct {
	focused *bool
	now     func() time.Time
}

func (d callDelegate) Height() int                             { return 1 }
func (d callDelegate) Spacing() int                            { return 0 }
func (d callDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d callDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(callItem)
	if !ok {
		return
	}
	c := ci.call
	selected := index == m.Index() && d.focused != nil && *d.focused

	unit := c.AssignedUnit
	if unit == "" {
		unit = "-"
	}
	if c.OfficerOnScene {
		unit += "*"
	}

	parts := []string{
		styles.PadRight(styles.PriorityBadge(c.Priority), colPriority),
		styles.PadRight(styles.CallStatusStyle(c.Status).Render(string(c.Status)), colStatus),
		styles.PadRight(styles.TruncateString(unit, colUnit-1), colUnit),
		styles.PadRight(styles.HintStyle.Render(styles.FormatAge(c.CreatedAt, d.now())), colAge),
		c.Summary(),
	}
	line := strings.Join(parts, " ")

	if selected {
		line = styles.SelectionIndicatorStyle.Render(">") + styles.SelectedRowStyle.Render(line)
	} else {
		line = " " + line
	}
	_, _ = fmt.Fprint(w, ansi.Truncate(line, m.Width(), "..."))
}

// assignmentDelegate renders one dispatch assignment per line.
type assignmentDelegate struct {
	focused *bool
	ownUnit *string
}

func (d assignmentDelegate) Height() int                             { return 1 }
func (d assignmentDelegate) Spacing() int                            { return 0 }
func (d assignmentDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d assignmentDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ai, ok := item.(assignmentItem)
	if !ok {
		return
	}
	a := ai.a
	selected := index == m.Index() && d.focused != nil && *d.focused

	stamp := "--:--"
	if !a.Timestamp.IsZero() {
		stamp = a.Timestamp.Local().Format("15:04")
	}
	units := strings.Join(a.UnitIDs, ",")
	unitStyle := lipgloss.NewStyle().Foreground(styles.TextSecondaryColor)
	if d.ownUnit != nil && *d.ownUnit != "" && a.Includes(*d.ownUnit) {
		unitStyle = unitStyle.Foreground(styles.StatusWarningColor).Bold(true)
	}

	line := strings.Join([]string{
		styles.HintStyle.Render(stamp),
		unitStyle.Render(styles.TruncateString(units, 16)),
		a.Message,
	}, " ")

	if selected {
		line = styles.SelectionIndicatorStyle.Render(">") + line
	} else {
		line = " " + line
	}
	_, _ = fmt.Fprint(w, ansi.Truncate(line, m.Width(), "..."))
}

func newList(delegate list.ItemDelegate) list.Model {
	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetShowPagination(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	return l
}
