package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ProbeConfig configures a Probe.
type ProbeConfig struct {
	// Address is the host:port dialled to test reachability.
	Address string
	// Interval between probes.
	Interval time.Duration
	// Timeout bounds each dial.
	Timeout time.Duration
	// Dial overrides the dialer (tests).
	Dial   func(ctx context.Context, network, address string) (net.Conn, error)
	Logger *slog.Logger
}

// DefaultProbeConfig returns a config probing address every 15 seconds.
func DefaultProbeConfig(address string) ProbeConfig {
	return ProbeConfig{
		Address:  address,
		Interval: 15 * time.Second,
		Timeout:  3 * time.Second,
	}
}

// Probe is an oracle that periodically dials the remote endpoint.
type Probe struct {
	broadcaster
	config ProbeConfig
	logger *slog.Logger

	mu      sync.RWMutex
	online  bool
	checked bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProbe creates a probe. It reports offline until the first check.
func NewProbe(config ProbeConfig) (*Probe, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("probe address is required")
	}
	if config.Interval <= 0 {
		config.Interval = 15 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	if config.Dial == nil {
		d := &net.Dialer{}
		config.Dial = d.DialContext
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{config: config, logger: logger}, nil
}

func (p *Probe) IsOnline() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// Check dials once and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	conn, err := p.config.Dial(ctx, "tcp", p.config.Address)
	online := err == nil
	if conn != nil {
		conn.Close()
	}

	p.mu.Lock()
	changed := !p.checked || p.online != online
	p.online = online
	p.checked = true
	p.mu.Unlock()

	if changed {
		p.logger.Info("connectivity changed", "address", p.config.Address, "online", online)
		p.publish(online)
	}
	return online
}

// Start checks immediately, then on every interval until Stop or ctx ends.
func (p *Probe) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.Check(p.ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.Check(p.ctx)
			}
		}
	}()
}

// Stop ends probing and waits for the loop to exit.
func (p *Probe) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
