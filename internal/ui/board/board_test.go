package board

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"

	"github.com/watchdesk/watchdesk/internal/dispatch"
)

var boardNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func testCalls() []dispatch.Call {
	return []dispatch.Call{
		{ID: "c-low", Status: dispatch.CallActive, Priority: 4, IncidentType: "Noise", Location: "Elm St", CreatedAt: boardNow.Add(-20 * time.Minute)},
		{ID: "c-crit", Status: dispatch.CallDispatched, Priority: 1, AssignedUnit: "u1", IncidentType: "Fire", Location: "Main St", CreatedAt: boardNow.Add(-2 * time.Minute)},
		{ID: "c-mid", Status: dispatch.CallOnScene, Priority: 3, AssignedUnit: "u2", OfficerOnScene: true, IncidentType: "Theft", Location: "Oak Ave", CreatedAt: boardNow.Add(-time.Hour)},
	}
}

func newTestBoard() Model {
	return New().WithClock(func() time.Time { return boardNow }).SetSize(120, 30)
}

func TestSetCalls_OrdersByPriorityThenAge(t *testing.T) {
	m := newTestBoard().SetCalls(testCalls())

	var ids []string
	for _, c := range m.Calls() {
		ids = append(ids, c.ID)
	}
	require.Equal(t, []string{"c-crit", "c-mid", "c-low"}, ids)
}

func TestSetCalls_KeepsSelectionOnSameCall(t *testing.T) {
	m := newTestBoard().SetCalls(testCalls()).MoveDown()
	sel, ok := m.SelectedCall()
	require.True(t, ok)
	require.Equal(t, "c-mid", sel.ID)

	// A new critical call lands above the cursor.
	calls := append(testCalls(), dispatch.Call{ID: "c-new", Status: dispatch.CallActive, Priority: 1, CreatedAt: boardNow})
	m = m.SetCalls(calls)

	sel, ok = m.SelectedCall()
	require.True(t, ok)
	require.Equal(t, "c-mid", sel.ID)
}

func TestSetCalls_SelectionClampsWhenCallLeaves(t *testing.T) {
	m := newTestBoard().SetCalls(testCalls()).Bottom()
	sel, _ := m.SelectedCall()
	require.Equal(t, "c-low", sel.ID)

	m = m.SetCalls(testCalls()[1:])
	sel, ok := m.SelectedCall()
	require.True(t, ok)
	require.Equal(t, "c-mid", sel.ID)

	m = m.SetCalls(nil)
	_, ok = m.SelectedCall()
	require.False(t, ok)
}

func TestNavigation_Bounds(t *testing.T) {
	m := newTestBoard().SetCalls(testCalls())

	m = m.MoveUp()
	sel, _ := m.SelectedCall()
	require.Equal(t, "c-crit", sel.ID)

	m = m.MoveDown().MoveDown().MoveDown()
	sel, _ = m.SelectedCall()
	require.Equal(t, "c-low", sel.ID)

	m = m.Top()
	sel, _ = m.SelectedCall()
	require.Equal(t, "c-crit", sel.ID)
}

func TestNextPane_MovesOnlyFocusedCursor(t *testing.T) {
	m := newTestBoard().SetCalls(testCalls())
	m = m.SetQueue([]dispatch.Assignment{
		{ID: "d1", IncidentID: "c-crit", UnitIDs: []string{"u1"}, Message: "first", Timestamp: boardNow.Add(-time.Minute)},
		{ID: "d2", IncidentID: "c-mid", UnitIDs: []string{"u2"}, Message: "second", Timestamp: boardNow},
	})

	require.Equal(t, PaneCalls, m.Focused())
	m = m.NextPane()
	require.Equal(t, PaneQueue, m.Focused())

	m = m.MoveDown()
	sel, _ := m.SelectedCall()
	require.Equal(t, "c-crit", sel.ID, "call cursor should not move while queue is focused")

	m = m.NextPane()
	require.Equal(t, PaneCalls, m.Focused())
}

func TestQueue_NewestFirstAndCapped(t *testing.T) {
	m := newTestBoard()
	for i := 0; i < queueLimit+5; i++ {
		m = m.AddAssignment(dispatch.Assignment{ID: "d", IncidentID: "c", Message: "m"})
	}
	require.Equal(t, queueLimit, m.QueueLen())

	m = m.SetQueue([]dispatch.Assignment{
		{ID: "old", IncidentID: "c1", Message: "older", Timestamp: boardNow.Add(-time.Hour)},
		{ID: "new", IncidentID: "c2", Message: "newer", Timestamp: boardNow},
	})
	view := ansi.Strip(m.View())
	require.Less(t, strings.Index(view, "newer"), strings.Index(view, "older"))
}

func TestView_RendersCallsAndRoster(t *testing.T) {
	m := newTestBoard().SetCalls(testCalls()).SetUnits([]dispatch.Unit{
		{ID: "u3", Callsign: "Medic-3", Type: dispatch.UnitEMS, Status: dispatch.UnitAvailable},
		{ID: "u1", Callsign: "Adam-12", Type: dispatch.UnitPolice, Status: dispatch.UnitEnRoute},
		{ID: "u2", Callsign: "Engine-7", Type: dispatch.UnitFire, Status: dispatch.UnitOnScene},
	}, "u1")

	view := ansi.Strip(m.View())
	require.Contains(t, view, "Active Calls (3)")
	require.Contains(t, view, "P1")
	require.Contains(t, view, "Fire - Main St")
	require.Contains(t, view, "u2*", "on-scene marker")
	require.Contains(t, view, "2m")
	require.Contains(t, view, "Units")
	require.Contains(t, view, "Adam-12")

	police := strings.Index(view, "Police")
	ems := strings.Index(view, "EMS")
	require.True(t, police >= 0 && ems >= 0)
	require.Less(t, police, ems, "roster groups follow Police, Fire, EMS order")

	for _, line := range strings.Split(m.View(), "\n") {
		require.LessOrEqual(t, ansi.StringWidth(line), 120)
	}
}

func TestView_EmptyStates(t *testing.T) {
	view := ansi.Strip(newTestBoard().View())
	require.Contains(t, view, "No active calls")
	require.Contains(t, view, "No dispatches")
	require.Contains(t, view, "No units")
}

func TestView_HidesRosterWhenDisabledOrNarrow(t *testing.T) {
	m := newTestBoard().SetShowUnits(false)
	require.NotContains(t, ansi.Strip(m.View()), "Units")

	m = New().SetSize(40, 20)
	require.NotContains(t, ansi.Strip(m.View()), "No units")
}

func TestView_ZeroSize(t *testing.T) {
	require.Empty(t, New().View())
}
