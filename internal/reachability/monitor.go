// Package reachability watches network connectivity and reports transitions
// to a listener, typically the tracking service which pauses and resumes its
// request queues.
package reachability

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultInterval     = 15 * time.Second
	defaultProbeTimeout = 3 * time.Second
)

// Listener receives connectivity transitions.
type Listener interface {
	NetworkChanged(active bool)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(active bool)

func (f ListenerFunc) NetworkChanged(active bool) { f(active) }

// Probe reports whether the network is currently usable.
type Probe func(ctx context.Context) bool

// HTTPProbe treats any HTTP response from url as connectivity.
func HTTPProbe(url string, timeout time.Duration) Probe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}
}

// DialProbe treats a successful TCP connect to addr as connectivity.
func DialProbe(addr string, timeout time.Duration) Probe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// Config configures a Monitor.
type Config struct {
	Probe    Probe
	Interval time.Duration
	Listener Listener
	Logger   *zerolog.Logger
}

// Monitor polls a Probe and notifies its Listener when the result changes.
// The first probe result is always reported.
type Monitor struct {
	probe    Probe
	interval time.Duration
	listener Listener
	log      zerolog.Logger

	mu     sync.Mutex
	known  bool
	active bool
}

// NewMonitor constructs a Monitor. A nil Probe always reports the network as
// active.
func NewMonitor(cfg Config) *Monitor {
	m := &Monitor{
		probe:    cfg.Probe,
		interval: cfg.Interval,
		listener: cfg.Listener,
		log:      zerolog.Nop(),
	}
	if m.probe == nil {
		m.probe = func(context.Context) bool { return true }
	}
	if m.interval <= 0 {
		m.interval = defaultInterval
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "reachability").Logger()
	}
	return m
}

// SetListener replaces the listener.
func (m *Monitor) SetListener(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// IsNetworkActive returns the last observed state. Before the first probe it
// reports false.
func (m *Monitor) IsNetworkActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known && m.active
}

// Check probes once and notifies the listener on a transition. It returns
// the probed state.
func (m *Monitor) Check(ctx context.Context) bool {
	active := m.probe(ctx)
	m.mu.Lock()
	changed := !m.known || m.active != active
	m.known = true
	m.active = active
	l := m.listener
	m.mu.Unlock()
	if changed {
		m.log.Info().Str("event", "network_changed").Bool("active", active).Msg("connectivity changed")
		if l != nil {
			l.NetworkChanged(active)
		}
	}
	return active
}

// Run checks immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Check(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			m.Check(ctx)
		}
	}
}
