package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tsync/internal/connectivity"
	"github.com/mschirtzinger/tsync/internal/ui"
)

var offlineCmd = &cobra.Command{
	Use:       "offline [on|off]",
	GroupID:   "sync",
	Short:     "Force offline mode on or off",
	ValidArgs: []string{"on", "off"},
	Long: `Force offline mode for every tsync process, including a running daemon.

While offline mode is on, changes are only written locally and kept as
pending. Turning it off lets a running daemon sweep immediately.

Without an argument the current state is shown.`,
	Args: cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		flag := connectivity.NewFlagFile(cfg.Connectivity.OfflineFlag)

		if len(args) == 1 {
			if err := flag.SetOffline(args[0] == "on"); err != nil {
				return err
			}
		}

		forced := !flag.IsOnline()
		if jsonOutput {
			return printJSON(map[string]any{"offline": forced, "flag": flag.Path()})
		}
		if forced {
			fmt.Printf("%s Offline mode is on (%s)\n", ui.RenderWarn("○"), flag.Path())
		} else {
			fmt.Printf("%s Offline mode is off\n", ui.RenderPass("●"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(offlineCmd)
}
