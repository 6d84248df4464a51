// Package board renders the dispatch board: the active call table, the
// dispatch assignment queue and the unit roster.
package board

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/ui/styles"
)

// Pane identifies a selectable board pane.
type Pane int

const (
	PaneCalls Pane = iota
	PaneQueue
)

// queueLimit caps how many assignments the queue pane keeps.
const queueLimit = 50

// rosterWidth is the width of the unit roster pane when shown.
const rosterWidth = 34

// unitTypeOrder fixes the roster group order.
var unitTypeOrder = []dispatch.UnitType{dispatch.UnitPolice, dispatch.UnitFire, dispatch.UnitEMS}

// Model holds board state. Like other bubbletea components it is a value
// type; the focus flags live behind pointers so the list delegates can read
// them after the model is copied.
type Model struct {
	calls list.Model
	queue list.Model

	units   []dispatch.Unit
	ownUnit *string

	focused    Pane
	callsFocus *bool
	queueFocus *bool

	showUnits bool
	width     int
	height    int
}

// New creates an empty board.
func New() Model {
	callsFocus, queueFocus := new(bool), new(bool)
	*callsFocus = true
	ownUnit := new(string)

	return Model{
		calls:      newList(callDelegate{focused: callsFocus, now: time.Now}),
		queue:      newList(assignmentDelegate{focused: queueFocus, ownUnit: ownUnit}),
		ownUnit:    ownUnit,
		callsFocus: callsFocus,
		queueFocus: queueFocus,
		showUnits:  true,
	}
}

// WithClock replaces the clock used to render call ages.
func (m Model) WithClock(now func() time.Time) Model {
	m.calls.SetDelegate(callDelegate{focused: m.callsFocus, now: now})
	return m
}

// SetCalls replaces the call table, keeping the cursor on the same call when
// it is still present.
func (m Model) SetCalls(calls []dispatch.Call) Model {
	selectedID := ""
	if c, ok := m.SelectedCall(); ok {
		selectedID = c.ID
	}

	ordered := make([]dispatch.Call, len(calls))
	copy(ordered, calls)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	items := make([]list.Item, len(ordered))
	index := -1
	for i, c := range ordered {
		items[i] = callItem{call: c}
		if c.ID == selectedID {
			index = i
		}
	}
	previous := m.calls.Index()
	m.calls.SetItems(items)
	if len(items) > 0 {
		if index < 0 {
			index = min(previous, len(items)-1)
		}
		m.calls.Select(index)
	}
	return m
}

// Calls returns the calls in display order.
func (m Model) Calls() []dispatch.Call {
	items := m.calls.Items()
	out := make([]dispatch.Call, 0, len(items))
	for _, it := range items {
		out = append(out, it.(callItem).call)
	}
	return out
}

// SelectedCall returns the call under the cursor.
func (m Model) SelectedCall() (dispatch.Call, bool) {
	ci, ok := m.calls.SelectedItem().(callItem)
	if !ok {
		return dispatch.Call{}, false
	}
	return ci.call, true
}

// SetUnits replaces the roster. ownUnitID highlights the operator's unit.
func (m Model) SetUnits(units []dispatch.Unit, ownUnitID string) Model {
	m.units = make([]dispatch.Unit, len(units))
	copy(m.units, units)
	*m.ownUnit = ownUnitID
	return m
}

// Units returns the roster as last set.
func (m Model) Units() []dispatch.Unit {
	return m.units
}

// AddAssignment pushes a dispatch notice onto the top of the queue.
func (m Model) AddAssignment(a dispatch.Assignment) Model {
	items := append([]list.Item{assignmentItem{a: a}}, m.queue.Items()...)
	if len(items) > queueLimit {
		items = items[:queueLimit]
	}
	m.queue.SetItems(items)
	return m
}

// SetQueue replaces the queue, newest first.
func (m Model) SetQueue(assignments []dispatch.Assignment) Model {
	ordered := make([]dispatch.Assignment, len(assignments))
	copy(ordered, assignments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})
	if len(ordered) > queueLimit {
		ordered = ordered[:queueLimit]
	}
	items := make([]list.Item, len(ordered))
	for i, a := range ordered {
		items[i] = assignmentItem{a: a}
	}
	m.queue.SetItems(items)
	return m
}

// QueueLen returns the number of assignments shown.
func (m Model) QueueLen() int {
	return len(m.queue.Items())
}

// Focused returns the focused pane.
func (m Model) Focused() Pane {
	return m.focused
}

// NextPane moves focus between the call table and the queue.
func (m Model) NextPane() Model {
	if m.focused == PaneCalls {
		return m.focus(PaneQueue)
	}
	return m.focus(PaneCalls)
}

func (m Model) focus(p Pane) Model {
	m.focused = p
	*m.callsFocus = p == PaneCalls
	*m.queueFocus = p == PaneQueue
	return m
}

func (m *Model) active() *list.Model {
	if m.focused == PaneQueue {
		return &m.queue
	}
	return &m.calls
}

// MoveUp moves the cursor up in the focused pane.
func (m Model) MoveUp() Model {
	m.active().CursorUp()
	return m
}

// MoveDown moves the cursor down in the focused pane.
func (m Model) MoveDown() Model {
	m.active().CursorDown()
	return m
}

// Top jumps to the first row of the focused pane.
func (m Model) Top() Model {
	m.active().Select(0)
	return m
}

// Bottom jumps to the last row of the focused pane.
func (m Model) Bottom() Model {
	l := m.active()
	if n := len(l.Items()); n > 0 {
		l.Select(n - 1)
	}
	return m
}

// SetShowUnits toggles the roster pane.
func (m Model) SetShowUnits(show bool) Model {
	m.showUnits = show
	return m.SetSize(m.width, m.height)
}

// ShowUnits reports whether the roster pane is shown.
func (m Model) ShowUnits() bool {
	return m.showUnits
}

// SetSize lays out the panes: calls on top, queue below, roster at the right.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height

	left := m.leftWidth()
	callsH, queueH := m.heights()
	// Panel borders take two rows and two columns; the call table has a header row.
	m.calls.SetSize(max(left-2, 1), max(callsH-3, 1))
	m.queue.SetSize(max(left-2, 1), max(queueH-2, 1))
	return m
}

func (m Model) leftWidth() int {
	if m.showUnits && m.width >= rosterWidth*2 {
		return m.width - rosterWidth
	}
	return m.width
}

func (m Model) heights() (calls, queue int) {
	queue = max(m.height/3, 4)
	calls = m.height - queue
	if calls < 5 {
		calls = m.height
		queue = 0
	}
	return calls, queue
}

// View renders the board.
func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	left := m.leftWidth()
	callsH, queueH := m.heights()

	callsPanel := styles.RenderPanel(m.callsContent(), m.callsTitle(), left, callsH, m.focused == PaneCalls)
	leftCol := callsPanel
	if queueH > 0 {
		queuePanel := styles.RenderPanel(m.queueContent(), "Dispatch Queue", left, queueH, m.focused == PaneQueue)
		leftCol = lipgloss.JoinVertical(lipgloss.Left, callsPanel, queuePanel)
	}

	if left == m.width {
		return leftCol
	}
	roster := styles.RenderPanel(m.rosterContent(), "Units", m.width-left, m.height, false)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftCol, roster)
}

func (m Model) callsTitle() string {
	return fmt.Sprintf("Active Calls (%d)", len(m.calls.Items()))
}

func (m Model) callsContent() string {
	if len(m.calls.Items()) == 0 {
		return styles.HintStyle.Render(" No active calls")
	}
	header := " " + strings.Join([]string{
		styles.PadRight("PRI", colPriority),
		styles.PadRight("STATUS", colStatus),
		styles.PadRight("UNIT", colUnit),
		styles.PadRight("AGE", colAge),
		"INCIDENT",
	}, " ")
	return styles.HintStyle.Render(header) + "\n" + m.calls.View()
}

func (m Model) queueContent() string {
	if len(m.queue.Items()) == 0 {
		return styles.HintStyle.Render(" No dispatches")
	}
	return m.queue.View()
}

func (m Model) rosterContent() string {
	if len(m.units) == 0 {
		return styles.HintStyle.Render(" No units")
	}

	groups := make(map[dispatch.UnitType][]dispatch.Unit)
	var other []dispatch.Unit
	for _, u := range m.units {
		switch u.Type {
		case dispatch.UnitPolice, dispatch.UnitFire, dispatch.UnitEMS:
			groups[u.Type] = append(groups[u.Type], u)
		default:
			other = append(other, u)
		}
	}

	heading := lipgloss.NewStyle().Foreground(styles.TextSecondaryColor).Bold(true)
	var b strings.Builder
	writeGroup := func(title string, units []dispatch.Unit) {
		if len(units) == 0 {
			return
		}
		sort.Slice(units, func(i, j int) bool { return units[i].Callsign < units[j].Callsign })
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(heading.Render(" " + title))
		b.WriteString("\n")
		for _, u := range units {
			marker := " "
			if u.ID == *m.ownUnit {
				marker = styles.SelectionIndicatorStyle.Render("•")
			}
			b.WriteString(marker + " " + styles.PadRight(styles.TruncateString(u.Callsign, 12), 12) + " " +
				styles.UnitStatusStyle(u.Status).Render(string(u.Status)) + "\n")
		}
	}
	for _, t := range unitTypeOrder {
		writeGroup(string(t), groups[t])
	}
	writeGroup("Other", other)
	return strings.TrimRight(b.String(), "\n")
}
