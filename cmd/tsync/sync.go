package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tsync/internal/config"
	"github.com/mschirtzinger/tsync/internal/daemon"
	"github.com/mschirtzinger/tsync/internal/dashboard"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push pending local changes to the remote store",
	Long: `Push every pending local change to the remote store.

Locally created records receive their remote ids, pending updates and
deletions are confirmed, and records whose earlier push failed are retried.
A failure of one record does not stop the others. Offline, nothing is done.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			if !a.oracle.IsOnline() {
				if jsonOutput {
					return printJSON(map[string]any{"online": false, "synced": 0, "failed": 0})
				}
				fmt.Printf("%s Offline, nothing pushed\n", ui.RenderWarn("⚠"))
				return nil
			}

			res, err := a.sweeper.Sync(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(res)
			}
			mark := ui.RenderPass("✓")
			if res.Failed > 0 {
				mark = ui.RenderWarn("⚠")
			}
			fmt.Printf("%s Sync complete: %d synced, %d failed\n", mark, res.Synced, res.Failed)
			return nil
		})
	},
}

var pendingCmd = &cobra.Command{
	Use:     "pending",
	GroupID: "sync",
	Short:   "List changes not yet pushed to the remote store",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			items, err := a.engine.Pending(ctx)
			if err != nil {
				return err
			}
			return printItems(items, "Everything is synced.")
		})
	},
}

var searchCmd = &cobra.Command{
	Use:     "search <keyword>",
	GroupID: "tasks",
	Short:   "Search task titles and descriptions",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lists, _ := cmd.Flags().GetBool("lists")
		coll := schema.CollectionTasks
		if lists {
			coll = schema.CollectionLists
		}

		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			items, err := a.engine.Search(ctx, coll, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printItems(items, "No matches.")
		})
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show store, connectivity and sync status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			stats, err := dashboard.StoreStats(a.db, a.oracle)(ctx)
			if err != nil {
				return err
			}
			lastSync := lastSweep(a.cfg.OpLog.Path)

			if jsonOutput {
				return printJSON(map[string]any{
					"store":     a.cfg.Store.Path,
					"remote":    a.cfg.Remote.Kind,
					"stats":     stats,
					"lastSweep": lastSync,
				})
			}

			rows := []ui.Row{
				{Label: "Store", Value: a.cfg.Store.Path},
				{Label: "Remote", Value: remoteLabel(a)},
				{Label: "Network", Value: ui.RenderOnline(stats.Online)},
				{Label: "Lists", Value: strconv.Itoa(stats.Lists)},
				{Label: "Tasks", Value: fmt.Sprintf("%d (%d todo, %d in progress, %d done)",
					stats.Tasks.Total, stats.Tasks.Todo, stats.Tasks.InProgress, stats.Tasks.Done)},
				{Label: "Pending", Value: pendingLabel(stats.Pending)},
			}
			if lastSync != nil {
				rows = append(rows, ui.Row{Label: "Last sweep", Value: fmt.Sprintf("%s (%d synced, %d failed)",
					lastSync.Time.Local().Format("2006-01-02 15:04:05"), lastSync.Result.Synced, lastSync.Result.Failed)})
			}
			if !a.flag.IsOnline() {
				rows = append(rows, ui.Row{Label: "Offline flag", Value: ui.RenderWarn(a.flag.Path())})
			}
			fmt.Println(ui.Box("tsync status", rows))
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().Bool("lists", false, "Search lists instead of tasks")

	rootCmd.AddCommand(syncCmd, pendingCmd, searchCmd, statusCmd)
}

func remoteLabel(a *app) string {
	if a.cfg.Remote.Kind == config.RemoteSQL {
		return a.cfg.Remote.Kind + " (" + a.cfg.Remote.Dialect + ")"
	}
	return a.cfg.Remote.Kind
}

func pendingLabel(n int) string {
	if n == 0 {
		return ui.RenderPass("0")
	}
	return ui.RenderWarn(strconv.Itoa(n))
}

// lastSweep returns the newest sweep entry of the daemon's activity log.
func lastSweep(path string) *daemon.OpLogEntry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	entries, err := daemon.ParseOpLog(f)
	if err != nil {
		return nil
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == notify.KindSync && entries[i].Result != nil {
			return &entries[i]
		}
	}
	return nil
}
