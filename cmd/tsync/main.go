// Command tsync manages offline-first task lists that sync with a remote
// store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tsync/internal/config"
)

var (
	loader       = config.NewLoader("")
	cfg          *config.Config
	configPath   string
	forceOffline bool
	jsonOutput   bool
)

var rootCmd = &cobra.Command{
	Use:   "tsync",
	Short: "Offline-first task lists synced with a remote store",
	Long: `tsync keeps task lists in a local SQLite store and mirrors them to a
remote store (PostgreSQL, libSQL/Turso or Google Tasks).

Every change is written locally first. When the remote is unreachable the
change is kept as pending and pushed by 'tsync sync' or the background
daemon once connectivity returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loader.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Lists and tasks:"},
		&cobra.Group{ID: "sync", Title: "Synchronization:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default ~/.tsync/config.toml)")
	pf.BoolVar(&forceOffline, "offline", false, "Treat the remote as unreachable for this command")
	pf.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	pf.String("store", "", "Local store path")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	v := loader.Viper()
	_ = v.BindPFlag("store.path", pf.Lookup("store"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
}

// withApp opens the app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, opts appOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
