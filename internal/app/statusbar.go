package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/lifecycle"
	"github.com/watchdesk/watchdesk/internal/poll"
	"github.com/watchdesk/watchdesk/internal/push"
	"github.com/watchdesk/watchdesk/internal/ui/styles"
)

const separator = " │ "

// statusBar renders feed health, the console unit, mute state and a help hint.
func (m Model) statusBar() string {
	var left []string

	names := make([]string, 0, len(m.pollStatus))
	for name := range m.pollStatus {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		left = append(left, strings.ToUpper(name)+" "+healthBadge(m.pollStatus[name].Health))
	}
	left = append(left, "PUSH "+pushBadge(m.pushStatus, m.opts.PushEnabled))

	if unit := m.unitLabel(); unit != "" {
		left = append(left, unit)
	}

	right := styles.HintStyle.Render("? help")
	if m.muted {
		right = styles.MutedBadgeStyle.Render("MUTED") + "  " + right
	}

	leftText := strings.Join(left, separator)
	gap := max(m.width-lipgloss.Width(leftText)-lipgloss.Width(right)-2, 1)
	return styles.StatusBarStyle.Render(leftText + strings.Repeat(" ", gap) + right)
}

func (m Model) unitLabel() string {
	u := m.ownUnit
	if u.ID == "" {
		if id := m.services.identity(); id.Badge != "" {
			return "Badge " + id.Badge
		}
		return ""
	}
	name := u.Callsign
	if name == "" {
		name = u.ID
	}
	if u.Status == "" {
		return name
	}
	return name + " " + styles.UnitStatusStyle(u.Status).Render(string(u.Status))
}

func healthBadge(h poll.Health) string {
	var color lipgloss.TerminalColor
	switch h {
	case poll.HealthLive:
		color = styles.StatusSuccessColor
	case poll.HealthStale:
		color = styles.StatusWarningColor
	case poll.HealthDegraded, poll.HealthAuthRequired:
		color = styles.StatusErrorColor
	default:
		color = styles.TextMutedColor
	}
	return lipgloss.NewStyle().Foreground(color).Render("● " + string(h))
}

func pushBadge(s push.Status, enabled bool) string {
	if !enabled {
		return styles.HintStyle.Render("off")
	}
	state := s.State
	if state == "" {
		state = push.StateIdle
	}
	var color lipgloss.TerminalColor
	switch state {
	case push.StateConnected:
		color = styles.StatusSuccessColor
	case push.StateConnecting, push.StateReconnecting:
		color = styles.StatusWarningColor
	case push.StateDegraded, push.StateAuthRequired:
		color = styles.StatusErrorColor
	default:
		color = styles.TextMutedColor
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(state))
}

// describeError turns a failed action into an operator-facing sentence.
func describeError(action string, err error) string {
	verb, reason := errorReason(err)
	return action + " " + verb + ": " + reason
}

func errorReason(err error) (verb, reason string) {
	var rejected *dispatch.RejectedError
	switch {
	case errors.As(err, &rejected):
		return "refused", rejected.Reason
	case dispatch.IsAuth(err):
		return "failed", "sign-in required"
	case dispatch.IsTransient(err):
		return "failed", "server unreachable, try again"
	default:
		return "failed", err.Error()
	}
}

// describeFailures lists each failed call with its reason, e.g.
// "c2 (server unreachable, try again); c5 (call assigned to u2)".
func describeFailures(results []lifecycle.CloseResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		_, reason := errorReason(r.Err)
		parts = append(parts, dispatch.Call{ID: r.CallID}.ShortID()+" ("+reason+")")
	}
	return strings.Join(parts, "; ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
