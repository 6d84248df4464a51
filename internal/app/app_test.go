package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdesk/watchdesk/internal/config"
	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/flags"
	"github.com/watchdesk/watchdesk/internal/lifecycle"
	"github.com/watchdesk/watchdesk/internal/poll"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/push"
	"github.com/watchdesk/watchdesk/internal/ui/toaster"
)

var testNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

type fakeCalls struct {
	mu       sync.Mutex
	ops      []string
	err      error
	closeErr map[string]error
}

func (f *fakeCalls) record(op, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op+" "+id)
	return f.err
}

func (f *fakeCalls) Attach(_ context.Context, id string) error      { return f.record("attach", id) }
func (f *fakeCalls) MarkOnScene(_ context.Context, id string) error { return f.record("on-scene", id) }
func (f *fakeCalls) Close(_ context.Context, id string) error       { return f.record("close", id) }

func (f *fakeCalls) CloseAll(_ context.Context, calls []dispatch.Call) []lifecycle.CloseResult {
	out := make([]lifecycle.CloseResult, 0, len(calls))
	for _, c := range calls {
		_ = f.record("close", c.ID)
		out = append(out, lifecycle.CloseResult{CallID: c.ID, Err: f.closeErr[c.ID]})
	}
	return out
}

type fakeUnit struct {
	unit      dispatch.Unit
	requested []dispatch.UnitStatus
	err       error
}

func (f *fakeUnit) Unit() dispatch.Unit { return f.unit }

func (f *fakeUnit) Request(_ context.Context, s dispatch.UnitStatus) error {
	f.requested = append(f.requested, s)
	if f.err != nil {
		return f.err
	}
	f.unit.Status = s
	return nil
}

type fakeMute struct{ muted bool }

func (f *fakeMute) Toggle() bool {
	f.muted = !f.muted
	return f.muted
}

func (f *fakeMute) Muted() bool { return f.muted }

type fixedIdentity dispatch.Identity

func (f fixedIdentity) Identity() dispatch.Identity { return dispatch.Identity(f) }

type harness struct {
	calls  *fakeCalls
	unit   *fakeUnit
	mute   *fakeMute
	store  *dispatch.SnapshotStore
	feeds  Feeds
	model  Model
	config string
}

func newHarness(t *testing.T, role dispatch.Role, registry *flags.Registry) *harness {
	t.Helper()
	h := &harness{
		calls: &fakeCalls{},
		unit:  &fakeUnit{unit: dispatch.Unit{ID: "u1", Callsign: "Adam-12", Status: dispatch.UnitAvailable}},
		mute:  &fakeMute{},
		store: dispatch.NewSnapshotStore(),
		feeds: Feeds{
			Calls:      pubsub.NewBroker[[]dispatch.Call](),
			Units:      pubsub.NewBroker[[]dispatch.Unit](),
			Alerts:     pubsub.NewBroker[[]dispatch.AlertIntent](),
			PollStatus: map[string]*pubsub.Broker[poll.Status]{"calls": pubsub.NewBroker[poll.Status]()},
			Notices:    pubsub.NewBroker[push.Notice](),
			PushStatus: pubsub.NewBroker[push.Status](),
		},
		config: filepath.Join(t.TempDir(), "config.yaml"),
	}
	require.NoError(t, config.WriteDefaultConfig(h.config))

	h.model = New(Services{
		Snapshots:  h.store,
		Calls:      h.calls,
		Unit:       h.unit,
		Alerts:     h.mute,
		Identity:   fixedIdentity{UserID: "7", Badge: "B-7", UnitID: "u1", Role: role},
		Flags:      registry,
		ConfigPath: h.config,
		Clock:      func() time.Time { return testNow },
	}, h.feeds, Options{ShowUnits: true, ShowStatusBar: true, PushEnabled: true})
	t.Cleanup(h.model.Close)

	h.update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return h
}

// update applies msg and returns the command it produced.
func (h *harness) update(msg tea.Msg) tea.Cmd {
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	return cmd
}

// run applies msg and feeds the command's result back once.
func (h *harness) run(msg tea.Msg) {
	cmd := h.update(msg)
	if cmd == nil {
		return
	}
	if out := cmd(); out != nil {
		h.update(out)
	}
}

func (h *harness) setCalls(calls ...dispatch.Call) {
	h.store.Commit(dispatch.NewSnapshot(calls, testNow))
	h.update(pubsub.Event[[]dispatch.Call]{Type: pubsub.UpdatedEvent, Payload: calls})
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func (h *harness) screen() string {
	return ansi.Strip(h.model.View())
}

func call(id string, p int, status dispatch.CallStatus) dispatch.Call {
	return dispatch.Call{ID: id, Priority: p, Status: status, IncidentType: "Fire", Location: id + " St", CreatedAt: testNow.Add(-time.Minute)}
}

func TestApp_WindowSizeAndView(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	assert.Equal(t, 120, h.model.width)
	assert.Equal(t, 30, h.model.height)

	screen := h.screen()
	assert.Contains(t, screen, "No active calls")
	assert.Contains(t, screen, "CALLS ● pending")
	assert.Contains(t, screen, "Adam-12")
}

func TestApp_CallsFeedFillsBoardWithoutClosed(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.setCalls(call("c1", 1, dispatch.CallActive), call("c2", 2, dispatch.CallClosed))

	screen := h.screen()
	assert.Contains(t, screen, "Fire - c1 St")
	assert.NotContains(t, screen, "Fire - c2 St")
}

func TestApp_AttachSelectedCall(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.setCalls(call("c1", 1, dispatch.CallActive), call("c2", 2, dispatch.CallActive))

	h.run(keyMsg("j"))
	h.run(keyMsg("a"))

	assert.Equal(t, []string{"attach c2"}, h.calls.ops)
	assert.Contains(t, h.screen(), "Attached to Fire - c2 St")
}

func TestApp_RejectedActionShowsReason(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.calls.err = dispatch.Reject("attach", "c1", "already assigned to u9")
	h.setCalls(call("c1", 1, dispatch.CallActive))

	h.run(keyMsg("a"))

	assert.Contains(t, h.screen(), "Attach refused: already assigned to u9")
}

func TestApp_ActionWithoutCallWarns(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.run(keyMsg("c"))

	assert.Empty(t, h.calls.ops)
	assert.Contains(t, h.screen(), "No call selected")
}

func TestApp_CloseAllGatedForOfficers(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.setCalls(call("c1", 1, dispatch.CallActive))

	h.run(keyMsg("X"))
	assert.Nil(t, h.model.confirm)
	assert.Contains(t, h.screen(), "not enabled for your role")

	h = newHarness(t, dispatch.RoleOfficer, flags.New(map[string]bool{flags.FlagAdminCloseAll: true}))
	h.setCalls(call("c1", 1, dispatch.CallActive))
	h.run(keyMsg("X"))
	assert.NotNil(t, h.model.confirm)
}

func TestApp_CloseAllConfirmPartialFailure(t *testing.T) {
	h := newHarness(t, dispatch.RoleDispatcher, nil)
	h.calls.closeErr = map[string]error{"c2": errors.New("boom")}
	h.setCalls(call("c1", 1, dispatch.CallActive), call("c2", 2, dispatch.CallDispatched), call("c3", 3, dispatch.CallOnScene))

	h.run(keyMsg("X"))
	require.NotNil(t, h.model.confirm)
	assert.Contains(t, h.screen(), "Close all 3 active calls?")

	h.run(keyMsg("y"))
	assert.Nil(t, h.model.confirm)
	assert.Equal(t, []string{"close c1", "close c2", "close c3"}, h.calls.ops)
	screen := h.screen()
	assert.Contains(t, screen, "2 calls closed, 1 call failed")
	assert.Contains(t, screen, "c2 (boom)")
	assert.NotContains(t, screen, "c1 (")
}

func TestApp_CloseAllEveryFailureNamed(t *testing.T) {
	h := newHarness(t, dispatch.RoleAdmin, nil)
	h.calls.closeErr = map[string]error{
		"c1": dispatch.Reject("close", "c1", "already closed"),
		"c2": &dispatch.TransientError{Op: "close", Err: errors.New("503")},
	}
	h.setCalls(call("c1", 1, dispatch.CallActive), call("c2", 2, dispatch.CallActive))

	h.run(keyMsg("X"))
	h.run(keyMsg("y"))

	screen := h.screen()
	assert.Contains(t, screen, "Close all failed")
	assert.Contains(t, screen, "c1 (already closed)")
	assert.Contains(t, screen, "c2 (server unreachable, try again)")
}

func TestApp_CloseAllCancel(t *testing.T) {
	h := newHarness(t, dispatch.RoleAdmin, nil)
	h.setCalls(call("c1", 1, dispatch.CallActive))

	h.run(keyMsg("X"))
	h.run(keyMsg("a")) // ignored while the dialog is open
	h.run(tea.KeyMsg{Type: tea.KeyEsc})

	assert.Nil(t, h.model.confirm)
	assert.Empty(t, h.calls.ops)
}

func TestApp_MuteTogglePersists(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)

	h.run(keyMsg("m"))
	assert.True(t, h.mute.muted)
	assert.Contains(t, h.screen(), "MUTED")

	data, err := os.ReadFile(h.config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "muted: true")

	h.run(keyMsg("m"))
	assert.False(t, h.mute.muted)
	assert.NotContains(t, h.screen(), "MUTED")
}

func TestApp_UnitStatusKeys(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)

	h.run(keyMsg("2"))
	assert.Equal(t, []dispatch.UnitStatus{dispatch.UnitEnRoute}, h.unit.requested)
	assert.Contains(t, h.screen(), "Unit status: En Route")

	h.unit.unit = dispatch.Unit{}
	h.run(keyMsg("4"))
	assert.Len(t, h.unit.requested, 1)
	assert.Contains(t, h.screen(), "No unit assigned")
}

func TestApp_ConfirmedOwnStatusUpdatesRosterRow(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.update(pubsub.Event[[]dispatch.Unit]{Payload: []dispatch.Unit{
		{ID: "u1", Callsign: "Adam-12", Status: dispatch.UnitAvailable},
		{ID: "u2", Callsign: "Adam-14", Status: dispatch.UnitOnScene},
	}})

	h.update(pubsub.Event[dispatch.Unit]{Payload: dispatch.Unit{ID: "u1", Callsign: "Adam-12", Status: dispatch.UnitEnRoute}})

	units := h.model.board.Units()
	require.Len(t, units, 2)
	assert.Equal(t, dispatch.UnitEnRoute, units[0].Status)
	assert.Equal(t, dispatch.UnitOnScene, units[1].Status)
}

func TestApp_PollStatusTransitions(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)

	h.update(pubsub.Event[poll.Status]{Payload: poll.Status{Name: "calls", Health: poll.HealthLive}})
	assert.Contains(t, h.screen(), "CALLS ● live")

	h.update(pubsub.Event[poll.Status]{Payload: poll.Status{Name: "calls", Health: poll.HealthAuthRequired}})
	screen := h.screen()
	assert.Contains(t, screen, "CALLS ● auth required")
	assert.Contains(t, screen, "Sign-in required")
}

func TestApp_PushNoticeForOwnUnit(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.update(pubsub.Event[push.Status]{Payload: push.Status{State: push.StateConnected}})

	h.update(pubsub.Event[push.Notice]{Payload: push.Notice{
		Assignment: dispatch.Assignment{ID: "d1", IncidentID: "c1", UnitIDs: []string{"u1"}, Message: "Respond code 3", Timestamp: testNow},
		ForMe:      true,
	}})

	assert.Equal(t, 1, h.model.board.QueueLen())
	screen := h.screen()
	assert.Contains(t, screen, "Dispatched: Respond code 3")
	assert.Contains(t, screen, "PUSH connected")
}

func TestApp_AlertBatchToast(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.mute.muted = true
	h.model.muted = true

	h.update(pubsub.Event[[]dispatch.AlertIntent]{Payload: []dispatch.AlertIntent{
		{CallID: "c1", Priority: 1, Summary: "Fire - Main St"},
	}})
	assert.Contains(t, h.screen(), "New CRITICAL call: Fire - Main St (muted)")
}

func TestApp_MutedAlertsStillRenderCalls(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.run(keyMsg("m"))
	require.True(t, h.mute.muted)

	h.setCalls(call("c1", 1, dispatch.CallActive), call("c2", 3, dispatch.CallDispatched))
	h.update(pubsub.Event[[]dispatch.AlertIntent]{Payload: []dispatch.AlertIntent{
		{CallID: "c1", Priority: 1, Summary: "Fire - c1 St"},
	}})

	screen := h.screen()
	assert.Contains(t, screen, "c1 St")
	assert.Contains(t, screen, "c2 St")
	assert.Contains(t, screen, "(muted)")
}

func TestApp_UnitStatusRejectedKeepsAvailable(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.unit.err = dispatch.Reject("set unit status", "", "Unit is not assigned to any call")

	h.run(keyMsg("3"))

	assert.Equal(t, []dispatch.UnitStatus{dispatch.UnitOnScene}, h.unit.requested)
	assert.Equal(t, dispatch.UnitAvailable, h.unit.Unit().Status)
	screen := h.screen()
	assert.Contains(t, screen, "Status change refused: Unit is not assigned to any call")
	assert.NotContains(t, screen, "Adam-12 On Scene")
}

func TestApp_ToastDismissKeepsNewerToast(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.run(keyMsg("r"))
	first := h.model.toaster.Seq()
	h.run(keyMsg("m"))

	h.update(toaster.DismissMsg{Seq: first})
	assert.True(t, h.model.toaster.Visible())

	h.update(toaster.DismissMsg{Seq: h.model.toaster.Seq()})
	assert.False(t, h.model.toaster.Visible())
}

func TestApp_HelpOverlay(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	h.run(keyMsg("?"))
	assert.Contains(t, h.screen(), "attach to call")

	h.run(keyMsg("a")) // swallowed by the help overlay
	assert.Empty(t, h.calls.ops)

	h.run(keyMsg("?"))
	assert.False(t, h.model.showHelp)
}

func TestApp_StatusBarToggle(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	require.Contains(t, h.screen(), "? help")

	h.run(keyMsg("w"))
	assert.NotContains(t, h.screen(), "? help")
}

func TestApp_QuitKey(t *testing.T) {
	h := newHarness(t, dispatch.RoleOfficer, nil)
	cmd := h.update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "Close refused: call assigned to u2",
		describeError("Close", dispatch.Reject("close", "c1", "call assigned to u2")))
	assert.Equal(t, "Attach failed: sign-in required",
		describeError("Attach", &dispatch.AuthError{Op: "attach", Status: 401}))
	assert.Equal(t, "Attach failed: server unreachable, try again",
		describeError("Attach", &dispatch.TransientError{Op: "attach", Err: errors.New("dial")}))
	assert.True(t, strings.HasPrefix(describeError("Attach", errors.New("odd")), "Attach failed: odd"))
}
