package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/journal"
)

var (
	historyKind  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent alerts and dispatch assignments",
	Long: `history prints the newest entries of the local journal. Alerts are
recorded even while muted, so this is where to look after stepping away.`,
	Example: `  watchdesk history
  watchdesk history --kind alert --limit 20`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "only show entries of this kind (alert, assignment)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum number of entries")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	kind, err := parseKind(historyKind)
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("journal is disabled (set journal.enabled in %s)", configPath())
	}

	db, err := journal.NewDB(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() { _ = db.Close() }()

	entries, err := db.Recent(cmd.Context(), kind, historyLimit)
	if err != nil {
		return err
	}
	writeHistory(cmd.OutOrStdout(), entries)
	return nil
}

func parseKind(s string) (journal.Kind, error) {
	switch journal.Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case journal.KindAlert:
		return journal.KindAlert, nil
	case journal.KindAssignment:
		return journal.KindAssignment, nil
	}
	return "", fmt.Errorf("unknown kind %q (want alert or assignment)", s)
}

func writeHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No journal entries.")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TIME", "KIND", "CALL", "PRIORITY", "UNITS", "SUMMARY")
	for _, e := range entries {
		priority := ""
		if e.Kind == journal.KindAlert {
			priority = dispatch.PriorityLabel(e.Priority)
			if e.Muted {
				priority += " (muted)"
			}
		}
		t.Row(
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(e.Kind),
			e.CallID,
			priority,
			strings.Join(e.Units, ","),
			e.Summary,
		)
	}
	fmt.Fprintln(w, t.Render())
}
