// Package app contains the root console model. It owns the board, routes
// key presses to call and unit actions, and listens to the poll, push and
// log brokers through continuous pubsub listeners.
package app

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/watchdesk/watchdesk/internal/config"
	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/keys"
	"github.com/watchdesk/watchdesk/internal/lifecycle"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/poll"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/push"
	"github.com/watchdesk/watchdesk/internal/ui/board"
	"github.com/watchdesk/watchdesk/internal/ui/logview"
	"github.com/watchdesk/watchdesk/internal/ui/overlay"
	"github.com/watchdesk/watchdesk/internal/ui/styles"
	"github.com/watchdesk/watchdesk/internal/ui/toaster"
)

// ageTick re-renders call ages.
const ageTick = 15 * time.Second

type actionDoneMsg struct {
	op   string
	call dispatch.Call
	err  error
}

type closeAllDoneMsg struct {
	results []lifecycle.CloseResult
}

type unitStatusDoneMsg struct {
	status dispatch.UnitStatus
	err    error
}

type ageTickMsg struct{}

// confirmState is the open close-all dialog.
type confirmState struct {
	calls []dispatch.Call
}

// Model is the root application state.
type Model struct {
	services Services
	opts     Options
	keys     keys.KeyMap

	board   board.Model
	toaster toaster.Model
	logs    logview.Model
	help    help.Model

	showHelp      bool
	showStatusBar bool
	confirm       *confirmState

	pollStatus map[string]poll.Status
	pushStatus push.Status
	ownUnit    dispatch.Unit
	muted      bool

	width  int
	height int

	ctx    context.Context
	cancel context.CancelFunc

	callsListener   *pubsub.ContinuousListener[[]dispatch.Call]
	unitsListener   *pubsub.ContinuousListener[[]dispatch.Unit]
	alertsListener  *pubsub.ContinuousListener[[]dispatch.AlertIntent]
	pollListeners   map[string]*pubsub.ContinuousListener[poll.Status]
	noticeListener  *pubsub.ContinuousListener[push.Notice]
	pushListener    *pubsub.ContinuousListener[push.Status]
	ownUnitListener *pubsub.ContinuousListener[dispatch.Unit]
	logListener     *log.LogListener
}

// New creates the console model and subscribes to feeds.
func New(services Services, feeds Feeds, opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		services:      services,
		opts:          opts,
		keys:          keys.DefaultKeyMap(),
		board:         board.New().WithClock(services.now).SetShowUnits(opts.ShowUnits),
		toaster:       toaster.New(),
		logs:          logview.New(),
		help:          help.New(),
		showStatusBar: opts.ShowStatusBar,
		pollStatus:    make(map[string]poll.Status),
		pollListeners: make(map[string]*pubsub.ContinuousListener[poll.Status]),
		ctx:           ctx,
		cancel:        cancel,
	}
	m.help.ShowAll = true

	if services.Alerts != nil {
		m.muted = services.Alerts.Muted()
	}
	if services.Unit != nil {
		m.ownUnit = services.Unit.Unit()
	}
	if services.Snapshots != nil {
		m.board = m.board.SetCalls(services.Snapshots.Load().Visible())
	}
	if services.Queue != nil {
		m.board = m.board.SetQueue(services.Queue.Queue())
	}
	if !opts.PushEnabled {
		m.pushStatus = push.Status{State: push.StateStopped}
	}

	if feeds.Calls != nil {
		m.callsListener = pubsub.NewContinuousListener(ctx, feeds.Calls)
	}
	if feeds.Units != nil {
		m.unitsListener = pubsub.NewContinuousListener(ctx, feeds.Units)
	}
	if feeds.Alerts != nil {
		m.alertsListener = pubsub.NewContinuousListener(ctx, feeds.Alerts)
	}
	for name, b := range feeds.PollStatus {
		m.pollStatus[name] = poll.Status{Name: name, Health: poll.HealthPending}
		m.pollListeners[name] = pubsub.NewContinuousListener(ctx, b)
	}
	if feeds.Notices != nil {
		m.noticeListener = pubsub.NewContinuousListener(ctx, feeds.Notices)
	}
	if feeds.PushStatus != nil {
		m.pushListener = pubsub.NewContinuousListener(ctx, feeds.PushStatus)
	}
	if feeds.OwnUnit != nil {
		m.ownUnitListener = pubsub.NewContinuousListener(ctx, feeds.OwnUnit)
	}
	if opts.Debug {
		m.logListener = log.NewListener(ctx)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.callsListener.Listen(),
		m.unitsListener.Listen(),
		m.alertsListener.Listen(),
		m.noticeListener.Listen(),
		m.pushListener.Listen(),
		m.ownUnitListener.Listen(),
		m.logListener.Listen(),
		scheduleAgeTick(),
	}
	for _, l := range m.pollListeners {
		cmds = append(cmds, l.Listen())
	}
	return tea.Batch(cmds...)
}

func scheduleAgeTick() tea.Cmd {
	return tea.Tick(ageTick, func(time.Time) tea.Msg { return ageTickMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.board = m.board.SetSize(msg.Width, m.boardHeight())
		m.toaster = m.toaster.SetSize(msg.Width, msg.Height)
		m.logs = m.logs.SetSize(msg.Width, msg.Height)
		m.help.Width = min(msg.Width-4, 100)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pubsub.Event[[]dispatch.Call]:
		m.board = m.board.SetCalls(m.visibleCalls(msg.Payload))
		return m, m.callsListener.Listen()

	case pubsub.Event[[]dispatch.Unit]:
		m.board = m.board.SetUnits(msg.Payload, m.ownUnitID())
		return m, m.unitsListener.Listen()

	case pubsub.Event[[]dispatch.AlertIntent]:
		var cmd tea.Cmd
		m, cmd = m.handleAlerts(msg.Payload)
		return m, tea.Batch(cmd, m.alertsListener.Listen())

	case pubsub.Event[poll.Status]:
		var cmd tea.Cmd
		m, cmd = m.handlePollStatus(msg.Payload)
		return m, tea.Batch(cmd, m.pollListeners[msg.Payload.Name].Listen())

	case pubsub.Event[push.Notice]:
		var cmd tea.Cmd
		m, cmd = m.handleNotice(msg.Payload)
		return m, tea.Batch(cmd, m.noticeListener.Listen())

	case pubsub.Event[push.Status]:
		var cmd tea.Cmd
		m, cmd = m.handlePushStatus(msg.Payload)
		return m, tea.Batch(cmd, m.pushListener.Listen())

	case pubsub.Event[dispatch.Unit]:
		m.ownUnit = msg.Payload
		m.board = m.board.SetUnits(withOwnUnit(m.board.Units(), msg.Payload), m.ownUnitID())
		return m, m.ownUnitListener.Listen()

	case log.LogEvent:
		m.logs = m.logs.Append(msg.Payload)
		return m, m.logListener.Listen()

	case actionDoneMsg:
		return m.handleActionDone(msg)

	case closeAllDoneMsg:
		return m.handleCloseAllDone(msg)

	case unitStatusDoneMsg:
		if msg.err != nil {
			return m.toast(describeError("Status change", msg.err), toaster.StyleError)
		}
		if m.services.Unit != nil {
			m.ownUnit = m.services.Unit.Unit()
		}
		return m.toast("Unit status: "+string(msg.status), toaster.StyleSuccess)

	case ageTickMsg:
		return m, scheduleAgeTick()

	case toaster.DismissMsg:
		m.toaster = m.toaster.Dismiss(msg)
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.logs.Visible() {
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd
	}
	if m.opts.Debug && key.Matches(msg, m.keys.Logs) {
		m.logs = m.logs.Toggle()
		return m, nil
	}

	if m.confirm != nil {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			calls := m.confirm.calls
			m.confirm = nil
			return m, m.closeAllCmd(calls)
		case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
			m.confirm = nil
		}
		return m, nil
	}

	if m.showHelp {
		switch {
		case key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Cancel):
			m.showHelp = false
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.Up):
		m.board = m.board.MoveUp()
	case key.Matches(msg, m.keys.Down):
		m.board = m.board.MoveDown()
	case key.Matches(msg, m.keys.Top):
		m.board = m.board.Top()
	case key.Matches(msg, m.keys.Bottom):
		m.board = m.board.Bottom()
	case key.Matches(msg, m.keys.NextPane):
		m.board = m.board.NextPane()

	case key.Matches(msg, m.keys.Attach):
		return m.callAction("attach", m.services.Calls.Attach)
	case key.Matches(msg, m.keys.OnScene):
		return m.callAction("on-scene", m.services.Calls.MarkOnScene)
	case key.Matches(msg, m.keys.Close):
		return m.callAction("close", m.services.Calls.Close)
	case key.Matches(msg, m.keys.CloseAll):
		return m.openCloseAll()

	case key.Matches(msg, m.keys.Available):
		return m.requestStatus(dispatch.UnitAvailable)
	case key.Matches(msg, m.keys.EnRoute):
		return m.requestStatus(dispatch.UnitEnRoute)
	case key.Matches(msg, m.keys.UnitOnScene):
		return m.requestStatus(dispatch.UnitOnScene)
	case key.Matches(msg, m.keys.OutOfService):
		return m.requestStatus(dispatch.UnitOutOfService)

	case key.Matches(msg, m.keys.Mute):
		return m.toggleMute()
	case key.Matches(msg, m.keys.Refresh):
		if m.services.Refresh != nil {
			m.services.Refresh()
		}
		return m.toast("Refreshing", toaster.StyleInfo)
	case key.Matches(msg, m.keys.ToggleStatus):
		m.showStatusBar = !m.showStatusBar
		m.board = m.board.SetSize(m.width, m.boardHeight())
	}
	return m, nil
}

func (m Model) callAction(op string, fn func(context.Context, string) error) (tea.Model, tea.Cmd) {
	if m.board.Focused() != board.PaneCalls {
		return m.toast("Select a call first", toaster.StyleWarn)
	}
	call, ok := m.board.SelectedCall()
	if !ok {
		return m.toast("No call selected", toaster.StyleWarn)
	}
	ctx, timeout := m.ctx, m.services.timeout()
	log.Debug(log.CatUI, "call action", "op", op, "call", call.ID)
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return actionDoneMsg{op: op, call: call, err: fn(ctx, call.ID)}
	}
}

func (m Model) openCloseAll() (tea.Model, tea.Cmd) {
	if !m.services.canCloseAll() {
		return m.toast("Close all is not enabled for your role", toaster.StyleWarn)
	}
	calls := m.board.Calls()
	if len(calls) == 0 {
		return m.toast("No active calls", toaster.StyleInfo)
	}
	m.confirm = &confirmState{calls: calls}
	return m, nil
}

func (m Model) closeAllCmd(calls []dispatch.Call) tea.Cmd {
	ctx, timeout := m.ctx, m.services.timeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout*time.Duration(max(len(calls), 1)))
		defer cancel()
		return closeAllDoneMsg{results: m.services.Calls.CloseAll(ctx, calls)}
	}
}

func (m Model) requestStatus(status dispatch.UnitStatus) (tea.Model, tea.Cmd) {
	if m.services.Unit == nil || m.services.Unit.Unit().ID == "" {
		return m.toast("No unit assigned to this console", toaster.StyleWarn)
	}
	ctx, timeout, unit := m.ctx, m.services.timeout(), m.services.Unit
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return unitStatusDoneMsg{status: status, err: unit.Request(ctx, status)}
	}
}

func (m Model) toggleMute() (tea.Model, tea.Cmd) {
	if m.services.Alerts == nil {
		return m, nil
	}
	m.muted = m.services.Alerts.Toggle()
	log.Info(log.CatAlert, "mute toggled", "muted", m.muted)

	if m.services.ConfigPath != "" {
		if err := config.SaveMuted(m.services.ConfigPath, m.muted); err != nil {
			log.WarnErr(log.CatConfig, "saving mute state failed", err, "path", m.services.ConfigPath)
			return m.toast("Mute changed but not saved: "+err.Error(), toaster.StyleWarn)
		}
	}
	if m.muted {
		return m.toast("Alerts muted", toaster.StyleWarn)
	}
	return m.toast("Alerts on", toaster.StyleSuccess)
}

func (m Model) handleActionDone(msg actionDoneMsg) (tea.Model, tea.Cmd) {
	label := map[string]string{"attach": "Attach", "on-scene": "On scene", "close": "Close"}[msg.op]
	if msg.err != nil {
		return m.toast(describeError(label, msg.err), toaster.StyleError)
	}
	var text string
	switch msg.op {
	case "attach":
		text = "Attached to " + msg.call.Summary()
	case "on-scene":
		text = "On scene: " + msg.call.Summary()
	default:
		text = "Closed " + msg.call.Summary()
	}
	return m.toast(text, toaster.StyleSuccess)
}

// withOwnUnit returns units with the row for own replaced by its confirmed
// state. Rows of other units are untouched.
func withOwnUnit(units []dispatch.Unit, own dispatch.Unit) []dispatch.Unit {
	out := make([]dispatch.Unit, len(units))
	copy(out, units)
	for i := range out {
		if out[i].ID == own.ID {
			out[i] = own
		}
	}
	return out
}

func (m Model) handleCloseAllDone(msg closeAllDoneMsg) (tea.Model, tea.Cmd) {
	failed := 0
	for _, r := range msg.results {
		if r.Err != nil {
			failed++
			log.WarnErr(log.CatCall, "bulk close left call open", r.Err, "call", r.CallID)
		}
	}
	total := len(msg.results)
	switch {
	case failed == 0:
		return m.toast(plural(total, "call")+" closed", toaster.StyleSuccess)
	case failed == total:
		return m.toast("Close all failed: "+describeFailures(msg.results), toaster.StyleError)
	default:
		return m.toast(
			plural(total-failed, "call")+" closed, "+plural(failed, "call")+" failed: "+describeFailures(msg.results),
			toaster.StyleWarn)
	}
}

func (m Model) handleAlerts(intents []dispatch.AlertIntent) (Model, tea.Cmd) {
	if len(intents) == 0 {
		return m, nil
	}
	text := "New " + dispatch.PriorityLabel(intents[0].Priority) + " call: " + intents[0].Summary
	if len(intents) > 1 {
		text = plural(len(intents), "new call") + ": " + intents[0].Summary + " and more"
	}
	if m.muted {
		text += " (muted)"
	}
	return m.showToast(text, toaster.StyleAlert)
}

func (m Model) handleNotice(n push.Notice) (Model, tea.Cmd) {
	m.board = m.board.AddAssignment(n.Assignment)
	text := n.Assignment.Message
	if text == "" {
		text = "incident " + n.Assignment.IncidentID
	}
	style := toaster.StyleInfo
	if n.ForMe {
		style = toaster.StyleAlert
		text = "Dispatched: " + text
	} else {
		text = "Dispatch: " + text
	}
	return m.showToast(text, style)
}

func (m Model) handlePollStatus(s poll.Status) (Model, tea.Cmd) {
	prev := m.pollStatus[s.Name]
	m.pollStatus[s.Name] = s
	if prev.Health == s.Health {
		return m, nil
	}

	var (
		text  string
		style toaster.Style
	)
	switch s.Health {
	case poll.HealthAuthRequired:
		text, style = "Sign-in required: the server refused the credential", toaster.StyleError
	case poll.HealthDegraded:
		text, style = "Lost contact with the server ("+s.Name+")", toaster.StyleError
	case poll.HealthLive:
		if prev.Health != poll.HealthDegraded && prev.Health != poll.HealthAuthRequired {
			return m, nil
		}
		text, style = "Reconnected ("+s.Name+")", toaster.StyleSuccess
	default:
		return m, nil
	}
	return m.showToast(text, style)
}

func (m Model) handlePushStatus(s push.Status) (Model, tea.Cmd) {
	prev := m.pushStatus
	m.pushStatus = s
	if prev.State == s.State {
		return m, nil
	}
	if s.State == push.StateAuthRequired {
		return m.showToast("Dispatch channel needs sign-in", toaster.StyleError)
	}
	return m, nil
}

func (m Model) toast(text string, style toaster.Style) (tea.Model, tea.Cmd) {
	return m.showToast(text, style)
}

func (m Model) showToast(text string, style toaster.Style) (Model, tea.Cmd) {
	m.toaster = m.toaster.Show(text, style)
	return m, toaster.ScheduleDismiss(m.toaster.Seq(), toaster.DurationFor(style))
}

func (m Model) visibleCalls(fetched []dispatch.Call) []dispatch.Call {
	if m.services.Snapshots != nil {
		return m.services.Snapshots.Load().Visible()
	}
	return dispatch.NewSnapshot(fetched, m.services.now()).Visible()
}

func (m Model) ownUnitID() string {
	if m.ownUnit.ID != "" {
		return m.ownUnit.ID
	}
	return m.services.identity().UnitID
}

func (m Model) boardHeight() int {
	if m.showStatusBar {
		return max(m.height-1, 1)
	}
	return m.height
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	view := m.board.View()
	if m.showStatusBar {
		view = lipgloss.JoinVertical(lipgloss.Left, view, m.statusBar())
	}

	if m.confirm != nil {
		view = overlay.Place(overlay.Config{Width: m.width, Height: m.height, Position: overlay.Center},
			m.confirmView(), view)
	}
	if m.showHelp {
		view = overlay.Place(overlay.Config{Width: m.width, Height: m.height, Position: overlay.Center},
			m.helpView(), view)
	}
	if m.toaster.Visible() {
		view = m.toaster.Overlay(view, m.width, m.height)
	}
	if m.opts.Debug && m.logs.Visible() {
		view = m.logs.Overlay(view)
	}
	return view
}

func (m Model) confirmView() string {
	n := len(m.confirm.calls)
	body := lipgloss.NewStyle().Bold(true).Render("Close all "+plural(n, "active call")+"?") + "\n\n" +
		styles.HintStyle.Render("y confirm · n cancel")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.StatusErrorColor).
		Padding(1, 3).
		Render(body)
}

func (m Model) helpView() string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.BorderHighlightFocusColor).
		Padding(1, 2).
		Render(m.help.View(m.keys))
}

// Close stops the listeners.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}
