package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mschirtzinger/tsync/internal/config"
	"github.com/mschirtzinger/tsync/internal/connectivity"
	"github.com/mschirtzinger/tsync/internal/engine"
	"github.com/mschirtzinger/tsync/internal/logging"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/remote"
	"github.com/mschirtzinger/tsync/internal/remote/googletasks"
	"github.com/mschirtzinger/tsync/internal/remote/sqlremote"
	"github.com/mschirtzinger/tsync/internal/store"
	"github.com/mschirtzinger/tsync/internal/sweeper"
)

// app holds everything a command needs, wired from the loaded config.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db      *store.DB
	remote  remote.Client
	flag    *connectivity.FlagFile
	probe   *connectivity.Probe
	oracle  *connectivity.All
	hub     *notify.Hub
	pub     notify.Publisher
	engine  *engine.Engine
	sweeper sweeper.Sweeper

	closers []io.Closer
}

// appOptions tune openApp for long-running commands.
type appOptions struct {
	// watch starts the flag-file watcher and the periodic probe instead of
	// probing once
	watch bool

	// publishers receive engine and sweeper events besides the hub
	publishers []notify.Publisher
}

// openApp opens the local store and the remote client and wires the engine.
// Failing to reach the remote is not an error: the engine works offline.
func openApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, hub: notify.NewHub()}
	a.closers = append(a.closers, logCloser)

	a.db, err = store.OpenContext(ctx, cfg.Store.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	a.closers = append(a.closers, a.db)

	if err := a.openRemote(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.openOracle(ctx, opts.watch); err != nil {
		a.Close()
		return nil, err
	}

	a.pub = notify.Tee(append([]notify.Publisher{a.hub}, opts.publishers...)...)
	a.engine = engine.New(a.db, a.remote, a.oracle, engine.Config{
		FetchTimeout: cfg.Sync.FetchTimeout,
		Publisher:    a.pub,
		Logger:       logger,
	})
	a.sweeper = sweeper.New(a.db, a.remote, a.oracle, sweeper.Config{
		Timeout:   cfg.Sync.FetchTimeout,
		Publisher: a.pub,
		Logger:    logger,
	})
	return a, nil
}

func (a *app) openRemote(ctx context.Context) error {
	switch a.cfg.Remote.Kind {
	case config.RemoteSQL:
		dialect, err := sqlremote.DialectByName(a.cfg.Remote.Dialect)
		if err != nil {
			return err
		}
		conn, err := sql.Open(dialect.Driver, a.cfg.Remote.DSN)
		if err != nil {
			return fmt.Errorf("failed to open remote database: %w", err)
		}
		client := sqlremote.New(conn, dialect)
		a.closers = append(a.closers, client)

		// The table is created on first contact; offline that is deferred
		// to the next run.
		err = engine.Bounded(ctx, a.cfg.Sync.FetchTimeout, client.InitSchema)
		if err != nil {
			a.logger.Warn("remote schema not initialized", "error", err)
		}
		a.remote = client
	case config.RemoteGoogleTasks:
		client, err := googletasks.New(ctx, a.cfg.Remote.OAuthClient, a.cfg.Remote.Token)
		if err != nil {
			return err
		}
		a.remote = client
	default:
		return fmt.Errorf("unknown remote kind %q", a.cfg.Remote.Kind)
	}
	return nil
}

func (a *app) openOracle(ctx context.Context, watch bool) error {
	a.flag = connectivity.NewFlagFile(a.cfg.Connectivity.OfflineFlag)
	members := []connectivity.Oracle{a.flag}
	if forceOffline {
		members = append(members, connectivity.NewSwitch(false))
	}

	if addr := a.cfg.Connectivity.ProbeAddress; addr != "" {
		probe, err := connectivity.NewProbe(connectivity.ProbeConfig{
			Address:  addr,
			Interval: a.cfg.Connectivity.ProbeInterval,
			Timeout:  min(3*time.Second, a.cfg.Sync.FetchTimeout),
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		a.probe = probe
		members = append(members, probe)
	}
	a.oracle = connectivity.Combine(members...)

	if watch {
		if err := a.flag.Start(); err != nil {
			return err
		}
		if a.probe != nil {
			a.probe.Start(ctx)
		}
	} else if a.probe != nil {
		a.probe.Check(ctx)
	}
	return nil
}

// Close stops watchers and releases the store, the remote and the log file.
func (a *app) Close() {
	if a.probe != nil {
		a.probe.Stop()
	}
	if a.flag != nil {
		_ = a.flag.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
}

// userID is the parent of every list.
func (a *app) userID() string {
	return a.cfg.Remote.UserID
}
