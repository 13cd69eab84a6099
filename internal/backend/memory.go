package backend

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"mobiletracking/pkg/types"
)

// MemoryConfig controls how the in-memory backend answers registrations.
type MemoryConfig struct {
	// DeepLink, when set, is returned URL-encoded with every registration.
	DeepLink       string
	DeepLinkAction string
	// Inactive answers registrations with mobiletracking_id=false, disabling
	// tracking for the install.
	Inactive bool
}

// Memory is an in-process Service.
type Memory struct {
	cfg MemoryConfig

	mu            sync.Mutex
	registrations []map[string]any
	events        []types.EventRecord
}

func NewMemory(cfg MemoryConfig) *Memory { return &Memory{cfg: cfg} }

func (m *Memory) Register(ctx context.Context, payload map[string]any) (types.RegisterResponse, error) {
	if err := requireStrings(payload, types.KeyAdvertiserID, types.KeyCampaignID); err != nil {
		return types.RegisterResponse{}, err
	}
	var resp types.RegisterResponse
	if m.cfg.Inactive {
		resp.TrackingID = false
		registrationsTotal.WithLabelValues("inactive").Inc()
	} else {
		resp.TrackingID = uuid.NewString()
		registrationsTotal.WithLabelValues("assigned").Inc()
	}
	if m.cfg.DeepLink != "" {
		resp.DeepLink = url.QueryEscape(m.cfg.DeepLink)
		if m.cfg.DeepLinkAction != "" {
			resp.DeepLinkAction = url.QueryEscape(m.cfg.DeepLinkAction)
		}
	}
	m.mu.Lock()
	m.registrations = append(m.registrations, payload)
	m.mu.Unlock()
	return resp, nil
}

func (m *Memory) RecordEvent(ctx context.Context, payload map[string]any) (types.EventResponse, error) {
	if err := requireStrings(payload, types.KeyAdvertiserID, types.KeyCampaignID, types.KeyTrackingID); err != nil {
		return types.EventResponse{}, err
	}
	rec := types.EventRecord{
		ConversionID: uuid.NewString(),
		ReceivedAt:   time.Now().Unix(),
		Payload:      payload,
	}
	m.mu.Lock()
	m.events = append(m.events, rec)
	m.mu.Unlock()
	eventsTotal.Inc()
	return types.EventResponse{ConversionID: rec.ConversionID}, nil
}

// Events returns the recorded events in arrival order.
func (m *Memory) Events() []types.EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.EventRecord(nil), m.events...)
}

// Registrations returns the registration payloads received so far.
func (m *Memory) Registrations() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.registrations...)
}

func (m *Memory) Ready() bool { return true }

func requireStrings(payload map[string]any, keys ...string) error {
	for _, k := range keys {
		if s, ok := payload[k].(string); !ok || s == "" {
			return badRequest(k + " is required")
		}
	}
	return nil
}
