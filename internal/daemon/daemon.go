package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mschirtzinger/tsync/internal/connectivity"
	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/sweeper"
)

// Config holds configuration for the daemon.
type Config struct {
	// Interval is how often to sweep regardless of transitions
	Interval time.Duration

	// DebounceInterval is how long to wait after a trigger before sweeping
	// This batches rapid transitions together
	DebounceInterval time.Duration

	// Publisher receives connectivity notifications (default: discard)
	Publisher notify.Publisher

	// Logger for daemon activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Publisher:        notify.Discard,
		Logger:           slog.Default(),
	}
}

// Status describes the most recent sweep.
type Status struct {
	Sweeps     int            `json:"sweeps"`
	LastSweep  time.Time      `json:"lastSweep"`
	LastResult sweeper.Result `json:"lastResult"`
	LastError  string         `json:"lastError,omitempty"`
	Online     bool           `json:"online"`
}

// Daemon schedules sweeps.
type Daemon struct {
	sweeper  sweeper.Sweeper
	oracle   connectivity.Oracle
	notifier connectivity.Notifier
	config   *Config
	logger   *slog.Logger

	trigger chan struct{}
	started atomic.Bool
	running atomic.Bool

	statusMu sync.Mutex
	status   Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon.
//
// notifier may be nil, in which case only the interval ticker and explicit
// Trigger calls start sweeps.
//
// Use Start() to begin scheduling.
func New(sw sweeper.Sweeper, oracle connectivity.Oracle, notifier connectivity.Notifier, config *Config) (*Daemon, error) {
	if sw == nil {
		return nil, fmt.Errorf("sweeper cannot be nil")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	d := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = d.DebounceInterval
	}
	if config.Publisher == nil {
		config.Publisher = d.Publisher
	}
	if config.Logger == nil {
		config.Logger = d.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		sweeper:  sw,
		oracle:   oracle,
		notifier: notifier,
		config:   config,
		logger:   config.Logger.With("component", "daemon"),
		trigger:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins scheduling sweeps.
//
// The daemon will:
// 1. Sweep once if online
// 2. Queue a sweep on every offline→online transition
// 3. Sweep on the configured interval
//
// This blocks until ctx is cancelled or Stop is called. A stopped daemon
// cannot be started again.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	d.logger.Info("starting daemon", "interval", d.config.Interval, "online", d.oracle.IsOnline())

	if d.notifier != nil {
		transitions, unsubscribe := d.notifier.Subscribe()
		d.wg.Add(1)
		go d.watchTransitions(transitions, unsubscribe)
	}

	d.wg.Add(1)
	go d.scheduleSweeps()

	d.running.Store(true)
	d.Trigger()

	select {
	case <-ctx.Done():
		d.logger.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Running reports whether the daemon is subscribed and scheduling sweeps.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Stop gracefully shuts down the daemon, waiting for a running sweep.
func (d *Daemon) Stop() error {
	d.logger.Info("stopping daemon")
	d.cancel()
	d.wg.Wait()
	d.running.Store(false)
	d.logger.Info("daemon stopped")
	return nil
}

// Trigger queues a sweep. Triggers arriving while one is queued coalesce.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the sweep history.
func (d *Daemon) Status() Status {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	s := d.status
	s.Online = d.oracle.IsOnline()
	return s
}

// watchTransitions turns connectivity transitions into notifications and
// queued sweeps.
func (d *Daemon) watchTransitions(transitions <-chan connectivity.Transition, unsubscribe func()) {
	defer d.wg.Done()
	defer unsubscribe()

	for {
		select {
		case <-d.ctx.Done():
			return

		case tr, ok := <-transitions:
			if !ok {
				return
			}
			online := tr.Online
			d.logger.Info("connectivity changed", "online", online)
			d.config.Publisher.Publish(notify.Event{
				Stage:     notify.StageCommitted,
				Kind:      notify.KindConnectivity,
				Online:    &online,
				Timestamp: tr.At,
			})
			if online {
				d.Trigger()
			}
		}
	}
}

// scheduleSweeps runs debounced triggered sweeps and interval sweeps.
func (d *Daemon) scheduleSweeps() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-d.trigger:
			if debounce == nil {
				debounce = time.NewTimer(d.config.DebounceInterval)
				fire = debounce.C
			}

		case <-fire:
			debounce, fire = nil, nil
			d.sweep()

		case <-ticker.C:
			d.sweep()
		}
	}
}

// sweep runs one sweep if online and records the outcome.
func (d *Daemon) sweep() {
	if !d.oracle.IsOnline() {
		return
	}

	res, err := d.sweeper.Sync(d.ctx)
	if errors.Is(err, context.Canceled) {
		return
	}

	d.statusMu.Lock()
	d.status.Sweeps++
	d.status.LastSweep = time.Now()
	d.status.LastResult = res
	d.status.LastError = ""
	if err != nil {
		d.status.LastError = err.Error()
	}
	d.statusMu.Unlock()

	if err != nil {
		d.logger.Error("sweep failed", "error", err)
		return
	}
	if res.Failed > 0 {
		d.logger.Warn("sweep left records unsynced", "synced", res.Synced, "failed", res.Failed)
	}
}
