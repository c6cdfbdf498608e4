package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/mcpterm/mcpterm/internal/history"
	"github.com/mcpterm/mcpterm/internal/storage"
	"github.com/mcpterm/mcpterm/internal/types"
)

var (
	historyLimit  int
	historySearch string
	historyScope  string
	historySince  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show question history",
	Long: `Shows history newest-first, from the shared database when reachable
and the local cache otherwise.

--since accepts natural language: "yesterday", "3 days ago", "last monday".`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max entries to show")
	historyCmd.Flags().StringVar(&historySearch, "search", "", "substring filter over questions and answers")
	historyCmd.Flags().StringVar(&historyScope, "scope", "", "history scope: global|user|machine|hybrid")
	historyCmd.Flags().StringVar(&historySince, "since", "", "only entries after this time (natural language ok)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if a.userErr != nil {
		return a.userErr
	}

	scope := a.cfg.Mode()
	if historyScope != "" {
		s, ok := types.ParseScope(historyScope)
		if !ok {
			return fmt.Errorf("%w: invalid scope %q", types.ErrBadInput, historyScope)
		}
		scope = s
	}

	filter := types.HistoryFilter{Search: historySearch}
	if a.user != nil {
		filter.UserID = &a.user.ID
	}
	if scope == types.ScopeMachine {
		filter.MachineID = a.machineID
	}
	if historySince != "" {
		since, err := parseSince(historySince)
		if err != nil {
			return err
		}
		filter.Since = since
	}

	var rem storage.Remote
	if a.remote != nil {
		rem = a.remote
	}
	view := history.New(a.local, rem, scope)
	entries, err := view.Get(ctx, filter, historyLimit, 0)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No history.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTATUS\tMACHINE\tQUESTION")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			time.Unix(e.Timestamp, 0).Format("2006-01-02 15:04"),
			e.Status,
			short(e.MachineID, 8),
			short(strings.ReplaceAll(e.Command, "\n", " "), 60))
	}
	return w.Flush()
}

// parseSince accepts RFC3339, a plain date, or natural language.
func parseSince(expr string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, expr); err == nil {
			return t.Unix(), nil
		}
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(expr, time.Now())
	if err != nil || r == nil {
		return 0, fmt.Errorf("%w: cannot parse --since %q", types.ErrBadInput, expr)
	}
	return r.Time.Unix(), nil
}

func short(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
