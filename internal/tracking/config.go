package tracking

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"mobiletracking/internal/queue"
	"mobiletracking/internal/store"
)

// ErrNoBaseURL is returned by New when Config.BaseURL is empty.
var ErrNoBaseURL = errors.New("tracking: base url is required")

// NetworkState reports connectivity. reachability.Monitor satisfies it.
type NetworkState interface {
	IsNetworkActive() bool
}

// FailureHandler receives requests that failed in transport or were
// answered with an error status. It is called from the queue's callback
// goroutine after the failure has been logged.
type FailureHandler interface {
	RequestFailed(s *Service, queueName string, req queue.Request, err error)
}

// FailureHandlerFunc adapts a function to FailureHandler.
type FailureHandlerFunc func(s *Service, queueName string, req queue.Request, err error)

func (f FailureHandlerFunc) RequestFailed(s *Service, queueName string, req queue.Request, err error) {
	f(s, queueName, req, err)
}

// Config configures a Service.
type Config struct {
	AdvertiserID string
	CampaignID   string

	// BaseURL is the tracking API root, for example https://track.example.com/mobile.
	BaseURL string
	// DebugBaseURL replaces BaseURL when Debug is set. Empty keeps BaseURL.
	DebugBaseURL string
	Debug        bool

	// Store persists preferences. Defaults to an in-memory store. The
	// service owns it and closes it in Close.
	Store     store.Store
	Transport queue.Transport

	Fingerprinter   Fingerprinter
	DeepLinkHandler DeepLinkHandler
	// FailureHandler, when set, is told about every request that failed.
	FailureHandler FailureHandler
	// Network, when set, is consulted by TrackEvent to resume paused queues.
	Network NetworkState

	// WaitForActiveFingerprint defers registration until
	// SetActiveFingerprint has been called.
	WaitForActiveFingerprint bool
	// StartPaused starts both queues paused until NetworkChanged(true).
	StartPaused bool

	Logger *zerolog.Logger
	// BaseContext is used for store writes made from queue callbacks and
	// for transport calls. Defaults to context.Background().
	BaseContext context.Context
}

func (c *Config) applyDefaults() {
	c.AdvertiserID = strings.TrimSpace(c.AdvertiserID)
	c.CampaignID = strings.TrimSpace(c.CampaignID)
	if c.Store == nil {
		c.Store = store.NewMemory()
	}
	if c.Fingerprinter == nil {
		c.Fingerprinter = HostFingerprinter{}
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
}
