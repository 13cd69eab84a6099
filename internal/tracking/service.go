// Package tracking registers installs with the tracking backend, resolves
// deferred deep links and reports conversion events. Registration and events
// travel on two independent request queues so that a slow registration never
// holds back events, and vice versa.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"mobiletracking/internal/queue"
	"mobiletracking/internal/store"
	"mobiletracking/pkg/types"
)

const storeTimeout = 5 * time.Second

// ErrNoTrackingID is returned by TrackEvent when the install has no tracking
// id yet. The event is dropped.
var ErrNoTrackingID = errors.New("tracking: no tracking id")

// ErrNilEvent is returned by TrackEvent for a nil event.
var ErrNilEvent = errors.New("tracking: nil event")

// Service is the tracking client for one advertiser campaign.
type Service struct {
	advertiserID string
	campaignID   string
	urls         urlHelper
	store        store.Store
	fingerprint  Fingerprinter
	deepLinks    DeepLinkHandler
	failures     FailureHandler
	network      NetworkState
	waitActiveFP bool
	baseCtx      context.Context
	log          zerolog.Logger

	setup  *queue.Queue
	events *queue.Queue

	// updateMu serializes read-modify-save cycles on prefs.
	updateMu sync.Mutex

	mu                sync.Mutex
	prefs             store.Preferences
	loaded            bool
	idfa              string
	activeFingerprint map[string]any
}

// New constructs a Service. Call Initialise before tracking.
func New(cfg Config) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if cfg.Transport == nil {
		return nil, queue.ErrNoTransport
	}
	cfg.applyDefaults()

	s := &Service{
		advertiserID: cfg.AdvertiserID,
		campaignID:   cfg.CampaignID,
		urls:         urlHelper{base: cfg.BaseURL, debugBase: cfg.DebugBaseURL, debug: cfg.Debug},
		store:        cfg.Store,
		fingerprint:  cfg.Fingerprinter,
		deepLinks:    cfg.DeepLinkHandler,
		failures:     cfg.FailureHandler,
		network:      cfg.Network,
		waitActiveFP: cfg.WaitForActiveFingerprint,
		baseCtx:      cfg.BaseContext,
		prefs:        store.DefaultPreferences(),
		log:          zerolog.Nop(),
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "tracking").Logger()
	}

	var err error
	s.setup, err = queue.New(queue.Config{
		Name:        "setup",
		Transport:   cfg.Transport,
		Observer:    s,
		Logger:      cfg.Logger,
		StartPaused: cfg.StartPaused,
		BaseContext: cfg.BaseContext,
	})
	if err != nil {
		return nil, err
	}
	s.events, err = queue.New(queue.Config{
		Name:        "events",
		Transport:   cfg.Transport,
		Observer:    s,
		Logger:      cfg.Logger,
		StartPaused: cfg.StartPaused,
		BaseContext: cfg.BaseContext,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LoadPreferences replaces the in-memory state with the stored preferences.
// A referrer set before loading is merged in and saved, unless setup has
// already completed, in which case it is discarded.
func (s *Service) LoadPreferences(ctx context.Context) (store.Preferences, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	p, err := s.store.Load(ctx)
	if err != nil {
		return store.Preferences{}, err
	}
	s.mu.Lock()
	pending := s.prefs.Referrer
	s.mu.Unlock()
	if pending != "" && !p.SetupComplete && pending != p.Referrer {
		p.Referrer = pending
		if err := s.store.Save(ctx, p); err != nil {
			return store.Preferences{}, err
		}
	}
	s.mu.Lock()
	s.prefs = p
	s.loaded = true
	s.mu.Unlock()
	return p, nil
}

// Initialise loads persisted preferences, consumes a launch deep link when
// one is given, and registers the install if it is not yet set up.
func (s *Service) Initialise(ctx context.Context, deepLink string) error {
	p, err := s.LoadPreferences(ctx)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("event", "initialise").
		Bool("setup_complete", p.SetupComplete).
		Bool("tracking_active", p.TrackingActive).
		Msg("tracking initialised")

	if deepLink != "" {
		if _, _, err := s.ProcessDeepLink(ctx, deepLink); err != nil {
			s.log.Warn().Err(err).Str("event", "deeplink_invalid").Msg("ignoring launch deep link")
		}
	}

	s.mu.Lock()
	setupComplete := s.prefs.SetupComplete
	s.mu.Unlock()
	if !setupComplete {
		s.Register()
	}
	return nil
}

// readyToRegister reports whether a registration may be sent now.
func (s *Service) readyToRegister() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.TrackingActive &&
		s.prefs.TrackingID == "" &&
		s.advertiserID != "" &&
		s.campaignID != "" &&
		(!s.waitActiveFP || s.activeFingerprint != nil)
}

// Register enqueues a registration request if the install is ready and no
// registration is pending. It reports whether a request was enqueued.
func (s *Service) Register() bool {
	if !s.readyToRegister() {
		return false
	}
	req := queue.NewRequest(s.urls.register(), s.registrationPayload())
	if !s.setup.EnqueueIfIdle(req) {
		s.log.Debug().Str("event", "register_skipped").Msg("registration already pending")
		return false
	}
	s.log.Info().Str("event", "register").Str("request_id", req.ID).Msg("registration enqueued")
	return true
}

func (s *Service) registrationPayload() queue.Payload {
	p := queue.Payload{
		types.KeyAdvertiserID: s.advertiserID,
		types.KeyCampaignID:   s.campaignID,
		"fingerprint":         s.fingerprint.Fingerprint(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idfa != "" {
		p["idfa"] = s.idfa
	}
	if s.prefs.Referrer != "" {
		p["referrer"] = s.prefs.Referrer
	}
	if s.waitActiveFP {
		p["active_fingerprint"] = s.activeFingerprint
	}
	return p
}

// TrackEvent enqueues ev on the event queue. Without a tracking id the event
// is dropped and ErrNoTrackingID returned. If a NetworkState is configured
// and reports connectivity, both queues are resumed.
func (s *Service) TrackEvent(ev *types.Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	defer s.resumeIfOnline()

	s.mu.Lock()
	trackingID := s.prefs.TrackingID
	s.mu.Unlock()
	if trackingID == "" || s.advertiserID == "" || s.campaignID == "" {
		s.log.Warn().Str("event", "event_dropped").Str("category", ev.Category).Msg("no tracking id, dropping event")
		return ErrNoTrackingID
	}

	p := queue.Payload{
		types.KeyAdvertiserID: s.advertiserID,
		types.KeyCampaignID:   s.campaignID,
		types.KeyTrackingID:   trackingID,
		types.KeyMeta:         ev.Meta,
	}
	if ev.Category != "" {
		p[types.KeyEventCategory] = ev.Category
	}
	for k, v := range ev.SalesData() {
		p[k] = v
	}
	req := queue.NewRequest(s.urls.event(), p)
	s.events.Enqueue(req)
	s.log.Debug().Str("event", "track").Str("request_id", req.ID).Str("category", ev.Category).Msg("event enqueued")
	return nil
}

func (s *Service) resumeIfOnline() {
	if s.network != nil && s.network.IsNetworkActive() {
		s.setup.SetPaused(false)
		s.events.SetPaused(false)
	}
}

// NetworkChanged pauses both queues while offline and resumes them once
// connectivity returns.
func (s *Service) NetworkChanged(active bool) {
	s.setup.SetPaused(!active)
	s.events.SetPaused(!active)
	s.log.Info().Str("event", "network_changed").Bool("active", active).Msg("queues updated")
}

// SetActiveFingerprint supplies the active fingerprint and registers if the
// install was waiting for it.
func (s *Service) SetActiveFingerprint(fp map[string]any) {
	s.mu.Lock()
	s.activeFingerprint = fp
	s.mu.Unlock()
	s.Register()
}

// SetAdvertisingID sets the advertising identifier sent as idfa on
// registration.
func (s *Service) SetAdvertisingID(id string) {
	s.mu.Lock()
	s.idfa = id
	s.mu.Unlock()
}

// SetReferrer records the install referrer. It is ignored once setup has
// completed. Before LoadPreferences the referrer is only held in memory.
func (s *Service) SetReferrer(ctx context.Context, referrer string) error {
	s.mu.Lock()
	if !s.loaded {
		s.prefs.Referrer = referrer
		s.mu.Unlock()
		return nil
	}
	done := s.prefs.SetupComplete
	s.mu.Unlock()
	if done {
		s.log.Debug().Str("event", "referrer_ignored").Msg("setup complete, referrer ignored")
		return nil
	}
	return s.updatePrefs(ctx, func(p *store.Preferences) {
		if !p.SetupComplete {
			p.Referrer = referrer
		}
	})
}

// TrackingID returns the current tracking id, or "" when unregistered.
func (s *Service) TrackingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.TrackingID
}

// TrackingActive reports whether the backend still accepts tracking for this
// install.
func (s *Service) TrackingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.TrackingActive
}

// SetupComplete reports whether registration (or a tracking deep link) has
// completed.
func (s *Service) SetupComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.SetupComplete
}

// ClearTracking forgets all stored state.
func (s *Service) ClearTracking(ctx context.Context) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs = store.DefaultPreferences()
	s.mu.Unlock()
	s.log.Info().Str("event", "clear").Msg("tracking state cleared")
	return nil
}

// WaitIdle blocks until both queues are drained.
func (s *Service) WaitIdle(ctx context.Context) error {
	return multierr.Combine(s.setup.WaitIdle(ctx), s.events.WaitIdle(ctx))
}

// Close pauses both queues and closes the store. Requests already in flight
// still complete.
func (s *Service) Close() error {
	s.setup.SetPaused(true)
	s.events.SetPaused(true)
	if n := s.setup.Len() + s.events.Len(); n > 0 {
		s.log.Warn().Int("backlog", n).Msg("closing with queued requests")
	}
	return s.store.Close()
}

// updatePrefs applies fn to a copy of the preferences, persists it, and only
// then publishes it in memory. A failed save leaves the in-memory state as it
// was.
func (s *Service) updatePrefs(ctx context.Context, fn func(p *store.Preferences)) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.Lock()
	p := s.prefs
	s.mu.Unlock()
	fn(&p)
	if err := s.store.Save(ctx, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
	return nil
}
