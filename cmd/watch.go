package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
	"github.com/watchdesk/watchdesk/internal/poll"
	"github.com/watchdesk/watchdesk/internal/pubsub"
	"github.com/watchdesk/watchdesk/internal/push"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run headless: sound alerts and print notices to stdout",
	Long: `watch runs the pollers, alert sequencer and push channel without the
board. Every new call, dispatch notice and connectivity change is printed
as one line, which suits a dispatch room speaker box or a log collector.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	level := log.LevelWarn
	if debugEnabled(cmd) {
		level = log.ParseLevel(cfg.Log.Level)
	}
	log.InitWriter(os.Stderr, level)

	c, err := newConsole(cfg, viper.GetString("token"))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	c.Seed(ctx)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	alerts := c.board.Alerts().Subscribe(subCtx)
	callStatus := c.calls.Statuses().Subscribe(subCtx)
	unitStatus := c.units.Statuses().Subscribe(subCtx)
	var (
		notices    <-chan pubsub.Event[push.Notice]
		pushStatus <-chan pubsub.Event[push.Status]
	)
	if c.push != nil {
		notices = c.push.Notices().Subscribe(subCtx)
		pushStatus = c.push.Statuses().Subscribe(subCtx)
	}

	if err := c.Start(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	id := c.creds.Identity()
	fmt.Fprintf(out, "%s watching %s as %s\n", stamp(time.Now()), cfg.Server.BaseURL, describeIdentity(id))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-alerts:
			if !ok {
				return nil
			}
			for _, in := range ev.Payload {
				printAlert(out, ev.Timestamp, in, c.sequencer.Muted())
			}
		case ev, ok := <-callStatus:
			if !ok {
				callStatus = nil
				continue
			}
			printPollStatus(out, ev.Timestamp, ev.Payload)
		case ev, ok := <-unitStatus:
			if !ok {
				unitStatus = nil
				continue
			}
			printPollStatus(out, ev.Timestamp, ev.Payload)
		case ev, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			printNotice(out, ev.Payload)
		case ev, ok := <-pushStatus:
			if !ok {
				pushStatus = nil
				continue
			}
			printPushStatus(out, ev.Timestamp, ev.Payload)
		}
	}
}

func stamp(t time.Time) string {
	return t.Local().Format("15:04:05")
}

func describeIdentity(id dispatch.Identity) string {
	if !id.Known() {
		return "(not signed in)"
	}
	parts := []string{"user " + id.UserID}
	if id.Badge != "" {
		parts = append(parts, "badge "+id.Badge)
	}
	if id.UnitID != "" {
		parts = append(parts, "unit "+id.UnitID)
	}
	if id.Role != "" {
		parts = append(parts, string(id.Role))
	}
	return strings.Join(parts, ", ")
}

func printAlert(w io.Writer, at time.Time, in dispatch.AlertIntent, muted bool) {
	suffix := ""
	if muted {
		suffix = " (muted)"
	}
	fmt.Fprintf(w, "%s NEW %s P%d %s [%s]%s\n",
		stamp(at), dispatch.PriorityLabel(in.Priority), in.Priority, in.Summary, in.CallID, suffix)
}

func printNotice(w io.Writer, n push.Notice) {
	target := "DISPATCH"
	if n.ForMe {
		target = "DISPATCH (your unit)"
	}
	fmt.Fprintf(w, "%s %s incident %s units %s: %s\n",
		stamp(n.Received), target, n.Assignment.IncidentID, strings.Join(n.Assignment.UnitIDs, ","), n.Assignment.Message)
}

func printPollStatus(w io.Writer, at time.Time, s poll.Status) {
	line := fmt.Sprintf("%s %s feed %s", stamp(at), s.Name, s.Health)
	if s.Err != nil {
		line += ": " + s.Err.Error()
	}
	fmt.Fprintln(w, line)
}

func printPushStatus(w io.Writer, at time.Time, s push.Status) {
	line := fmt.Sprintf("%s push %s", stamp(at), s.State)
	if s.Failures > 0 {
		line += fmt.Sprintf(" after %d failures", s.Failures)
	}
	fmt.Fprintln(w, line)
}
