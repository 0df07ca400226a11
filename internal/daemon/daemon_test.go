package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mschirtzinger/tsync/internal/connectivity"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/schema"
	"github.com/mschirtzinger/tsync/internal/sweeper"
)

// countingSweeper records how often Sync is called.
type countingSweeper struct {
	syncs atomic.Int32
	err   error
}

func (c *countingSweeper) Sync(ctx context.Context) (sweeper.Result, error) {
	c.syncs.Add(1)
	return sweeper.Result{Synced: 1}, c.err
}

func (c *countingSweeper) SyncRecord(ctx context.Context, coll schema.Collection, id string) (bool, error) {
	return false, nil
}

func testConfig() *Config {
	return &Config{
		Interval:         time.Hour,
		DebounceInterval: 10 * time.Millisecond,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// startDaemon runs d in the background and stops it at cleanup.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	if !waitFor(t, time.Second, d.Running) {
		t.Fatal("daemon did not start")
	}
}

func TestNew_Validation(t *testing.T) {
	sw := &countingSweeper{}
	oracle := connectivity.NewSwitch(true)

	if _, err := New(nil, oracle, nil, nil); err == nil {
		t.Error("expected error for nil sweeper")
	}
	if _, err := New(sw, nil, nil, nil); err == nil {
		t.Error("expected error for nil oracle")
	}

	d, err := New(sw, oracle, nil, &Config{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if d.config.Interval != DefaultConfig().Interval || d.config.Publisher == nil {
		t.Errorf("defaults not applied: %+v", d.config)
	}
}

func TestDaemon_InitialSweepWhenOnline(t *testing.T) {
	sw := &countingSweeper{}
	d, err := New(sw, connectivity.NewSwitch(true), nil, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	if !waitFor(t, time.Second, func() bool { return d.Status().Sweeps == 1 }) {
		t.Fatalf("syncs = %d, want 1", sw.syncs.Load())
	}
	st := d.Status()
	if st.Sweeps != 1 || st.LastResult.Synced != 1 || !st.Online {
		t.Errorf("Status() = %+v", st)
	}
}

func TestDaemon_SweepsOnReconnect(t *testing.T) {
	sw := &countingSweeper{}
	net := connectivity.NewSwitch(false)
	events := &notify.Recorder{}
	cfg := testConfig()
	cfg.Publisher = events

	d, err := New(sw, net, net, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	time.Sleep(50 * time.Millisecond)
	if n := sw.syncs.Load(); n != 0 {
		t.Fatalf("syncs while offline = %d, want 0", n)
	}

	net.Set(true)
	if !waitFor(t, time.Second, func() bool { return sw.syncs.Load() == 1 }) {
		t.Fatalf("syncs after reconnect = %d, want 1", sw.syncs.Load())
	}

	var sawOnline bool
	for _, ev := range events.Events() {
		if ev.Kind == notify.KindConnectivity && ev.Online != nil && *ev.Online {
			sawOnline = true
		}
	}
	if !sawOnline {
		t.Error("no connectivity event published")
	}

	net.Set(false)
	time.Sleep(50 * time.Millisecond)
	if n := sw.syncs.Load(); n != 1 {
		t.Errorf("syncs after going offline = %d, want 1", n)
	}
}

func TestDaemon_TriggersCoalesce(t *testing.T) {
	sw := &countingSweeper{}
	cfg := testConfig()
	cfg.DebounceInterval = 100 * time.Millisecond

	d, err := New(sw, connectivity.NewSwitch(true), nil, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	for range 5 {
		d.Trigger()
	}
	if !waitFor(t, time.Second, func() bool { return sw.syncs.Load() >= 1 }) {
		t.Fatal("no sweep after triggers")
	}
	time.Sleep(150 * time.Millisecond)
	if n := sw.syncs.Load(); n != 1 {
		t.Errorf("syncs = %d, want 1", n)
	}
}

func TestDaemon_IntervalSweeps(t *testing.T) {
	sw := &countingSweeper{}
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond

	d, err := New(sw, connectivity.NewSwitch(true), nil, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	if !waitFor(t, time.Second, func() bool { return sw.syncs.Load() >= 3 }) {
		t.Errorf("syncs = %d, want at least 3", sw.syncs.Load())
	}
}

func TestDaemon_RecordsSweepError(t *testing.T) {
	sw := &countingSweeper{err: errors.New("store unreadable")}
	d, err := New(sw, connectivity.NewSwitch(true), nil, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	if !waitFor(t, time.Second, func() bool { return d.Status().LastError != "" }) {
		t.Fatal("sweep error not recorded")
	}
	if got := d.Status().LastError; got != "store unreadable" {
		t.Errorf("LastError = %q", got)
	}
}

func TestDaemon_StopIsIdempotentAndBlocksRestart(t *testing.T) {
	d, err := New(&countingSweeper{}, connectivity.NewSwitch(false), nil, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	startDaemon(t, d)

	if err := d.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if d.Running() {
		t.Error("Running() = true after Stop")
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}
