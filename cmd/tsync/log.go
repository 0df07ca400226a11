package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tsync/internal/daemon"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/ui"
)

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "sync",
	Short:   "Show the daemon's activity log",
	Long: `Show the changes the daemon committed: records created, updated,
removed or re-keyed, cache reloads, sweeps and connectivity changes.

Examples:
  tsync log              # last 20 entries
  tsync log -n 100
  tsync log --since 42   # entries after sequence number 42`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("lines")
		since, _ := cmd.Flags().GetInt64("since")

		f, err := os.Open(cfg.OpLog.Path)
		if os.IsNotExist(err) {
			fmt.Println("No activity yet. Start the daemon with 'tsync daemon'.")
			return nil
		}
		if err != nil {
			return err
		}
		defer f.Close()

		entries, err := daemon.ParseOpLog(f)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("since") {
			entries = daemon.EntriesSince(entries, since)
		} else {
			entries = daemon.Tail(entries, n)
		}

		if jsonOutput {
			return printJSON(entries)
		}
		for _, e := range entries {
			fmt.Println(formatEntry(e))
		}
		return nil
	},
}

func init() {
	logCmd.Flags().IntP("lines", "n", 20, "Number of entries to show (0 for all)")
	logCmd.Flags().Int64("since", 0, "Show entries after this sequence number")
	rootCmd.AddCommand(logCmd)
}

func formatEntry(e daemon.OpLogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s ", ui.RenderMuted(fmt.Sprintf("#%-5d", e.Seq)), e.Time.Local().Format("2006-01-02 15:04:05"))

	switch e.Kind {
	case notify.KindUpsert:
		fmt.Fprintf(&b, "%s %s %s %q", ui.RenderAccent("upsert"), e.Collection, e.ID, e.Title)
		if e.PreviousID != "" {
			fmt.Fprintf(&b, " (was %s)", e.PreviousID)
		}
		if e.State != "" {
			fmt.Fprintf(&b, " %s", ui.RenderMuted(string(e.State)))
		}
	case notify.KindRemove:
		fmt.Fprintf(&b, "%s %s %s", ui.RenderWarn("remove"), e.Collection, e.ID)
	case notify.KindResync:
		fmt.Fprintf(&b, "%s %s of %s", ui.RenderMuted("resync"), e.Collection, e.ParentID)
	case notify.KindSync:
		if e.Result != nil {
			fmt.Fprintf(&b, "%s %d synced, %d failed", ui.RenderPass("sync"), e.Result.Synced, e.Result.Failed)
		}
	case notify.KindConnectivity:
		if e.Online != nil {
			b.WriteString(ui.RenderOnline(*e.Online))
		}
	default:
		b.WriteString(string(e.Kind))
	}
	return b.String()
}
