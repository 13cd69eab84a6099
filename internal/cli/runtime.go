package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"mobiletracking/internal/config"
	"mobiletracking/internal/queue"
	"mobiletracking/internal/reachability"
	"mobiletracking/internal/store"
	"mobiletracking/internal/tracking"
	"mobiletracking/internal/transport"
)

var errOffline = errors.New("tracking backend unreachable")

// newLogger builds the console logger used by every command.
func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}

// loadConfig layers defaults, the optional config file, environment and
// flags, in increasing precedence.
func loadConfig(opts *Options) (config.Config, error) {
	var cfg config.Config
	if opts.ConfigPath != "" {
		c, err := config.Load(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	config.ApplyEnv(&cfg)
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Store != "" {
		cfg.Store = opts.Store
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreRedis:
		r, err := store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		path, err := cfg.ResolvedDataPath()
		if err != nil {
			return nil, err
		}
		b, err := store.OpenBolt(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// session is a tracking service with its reachability monitor, built for one
// command invocation.
type session struct {
	cfg     config.Config
	log     zerolog.Logger
	svc     *tracking.Service
	monitor *reachability.Monitor

	mu       sync.Mutex
	failures []error
}

// RequestFailed records a failed request so the command can report it.
func (s *session) RequestFailed(_ *tracking.Service, queueName string, req queue.Request, err error) {
	s.mu.Lock()
	s.failures = append(s.failures, fmt.Errorf("%s request to %s: %w", queueName, req.Endpoint, err))
	s.mu.Unlock()
}

// takeFailures returns the failures recorded since the last call.
func (s *session) takeFailures() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := multierr.Combine(s.failures...)
	s.failures = nil
	return err
}

func openSession(ctx context.Context, cfg config.Config, log zerolog.Logger) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	probeURL := cfg.ProbeURL
	if probeURL == "" {
		probeURL = cfg.BaseURL
	}
	monitor := reachability.NewMonitor(reachability.Config{
		Probe:    reachability.HTTPProbe(probeURL, cfg.ConnectTimeout()),
		Interval: cfg.ProbeInterval(),
		Logger:   &log,
	})
	sess := &session{cfg: cfg, log: log, monitor: monitor}
	svc, err := tracking.New(tracking.Config{
		AdvertiserID: cfg.AdvertiserID,
		CampaignID:   cfg.CampaignID,
		BaseURL:      cfg.BaseURL,
		DebugBaseURL: cfg.DebugBaseURL,
		Debug:        cfg.Debug,
		Store:        st,
		Transport: transport.NewHTTP(transport.Options{
			RequestTimeout: cfg.RequestTimeout(),
			ConnectTimeout: cfg.ConnectTimeout(),
			UserAgent:      cfg.UserAgent,
			Logger:         &log,
		}),
		Network:                  monitor,
		FailureHandler:           sess,
		WaitForActiveFingerprint: cfg.WaitForActiveFingerprint,
		// Queues stay paused until the first probe reports connectivity.
		StartPaused: true,
		Logger:      &log,
		BaseContext: ctx,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sess.svc = svc
	monitor.SetListener(svc)
	return sess, nil
}

// goOnline probes once and fails fast when the backend cannot be reached.
func (s *session) goOnline(ctx context.Context) error {
	if !s.monitor.Check(ctx) {
		return fmt.Errorf("%w: %s", errOffline, s.cfg.BaseURL)
	}
	return nil
}

// drain waits for both queues, bounded by twice the request timeout, and
// reports any request that failed while draining.
func (s *session) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*s.cfg.RequestTimeout())
	defer cancel()
	return multierr.Append(s.svc.WaitIdle(ctx), s.takeFailures())
}

func (s *session) Close() error { return s.svc.Close() }
