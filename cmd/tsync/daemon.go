package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tsync/internal/daemon"
	"github.com/mschirtzinger/tsync/internal/dashboard"
	"github.com/mschirtzinger/tsync/internal/logging"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Sweep pending changes at startup when online
  2. Sweep again whenever connectivity returns
  3. Sweep on the configured interval (sync.interval)
  4. Append every committed change to the activity log (oplog.path)

Use --dashboard to also serve the WebSocket dashboard.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		return runDaemon(cmd, withDashboard)
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Run the sync daemon with the real-time WebSocket dashboard",
	Long: `Run the sync daemon and a WebSocket dashboard broadcasting its activity.

WebSocket messages include:
- record: a list or task was upserted or removed (tentative or committed)
- resync: a parent's cached records were reloaded
- sync: a sweep completed
- connectivity: the remote became reachable or unreachable
- stats: store statistics, sent on connect and after every committed change

Example usage:
  tsync dashboard                   # Start on the configured port (8080)
  tsync dashboard --port 9000       # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd, true)
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Also serve the WebSocket dashboard")
	for _, c := range []*cobra.Command{daemonCmd, dashboardCmd} {
		c.Flags().IntP("port", "p", 0, "Dashboard port (default from dashboard.port)")
	}
	rootCmd.AddCommand(daemonCmd, dashboardCmd)
}

func runDaemon(cmd *cobra.Command, withDashboard bool) error {
	ctx := cmd.Context()

	lastSeq := int64(0)
	if f, err := os.Open(cfg.OpLog.Path); err == nil {
		entries, perr := daemon.ParseOpLog(f)
		f.Close()
		if perr != nil {
			return fmt.Errorf("activity log %s is corrupt: %w", cfg.OpLog.Path, perr)
		}
		lastSeq = daemon.LastSeq(entries)
	}
	logFile, err := logging.RotatingFile(cfg.OpLog.Path, 10, 3)
	if err != nil {
		return err
	}
	defer logFile.Close()
	oplog := daemon.NewOpLog(logFile, lastSeq)

	a, err := openApp(ctx, cfg, appOptions{watch: true, publishers: []notify.Publisher{oplog}})
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := daemon.New(a.sweeper, a.oracle, a.oracle, &daemon.Config{
		Interval:         cfg.Sync.Interval,
		DebounceInterval: cfg.Sync.Debounce,
		Publisher:        a.pub,
		Logger:           a.logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s Starting tsync daemon...\n", ui.RenderAccent("🚀"))
	fmt.Printf("   Store: %s\n", cfg.Store.Path)
	fmt.Printf("   Remote: %s\n", remoteLabel(a))
	fmt.Printf("   Network: %s\n", ui.RenderOnline(a.oracle.IsOnline()))
	fmt.Printf("   Activity log: %s\n", cfg.OpLog.Path)

	if withDashboard {
		stop, err := startDashboard(ctx, cmd, a)
		if err != nil {
			return err
		}
		defer stop()
	}
	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("daemon stopped with error: %w", err)
	}
	if err := oplog.Err(); err != nil {
		return fmt.Errorf("activity log write failed: %w", err)
	}
	fmt.Println("\nDaemon stopped")
	return nil
}

// startDashboard serves the dashboard fed by the app's notification hub.
func startDashboard(ctx context.Context, cmd *cobra.Command, a *app) (func(), error) {
	port := cfg.Dashboard.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	server := dashboard.NewServer(&dashboard.Config{
		Host:   cfg.Dashboard.Host,
		Port:   port,
		Logger: a.logger,
	})
	handler := dashboard.NewHandler(server, dashboard.StoreStats(a.db, a.oracle), a.logger)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start dashboard: %w", err)
	}

	events, unsubscribe := a.hub.Subscribe(256)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Run(runCtx, events)
	}()

	addr := server.GetAddr()
	fmt.Printf("   Dashboard: http://%s\n", addr)
	fmt.Printf("   WebSocket endpoint: ws://%s/ws\n", addr)

	return func() {
		cancel()
		<-done
		unsubscribe()
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
		}
	}, nil
}
