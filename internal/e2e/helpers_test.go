package e2e

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"mobiletracking/internal/backend"
	"mobiletracking/internal/store"
	"mobiletracking/internal/tracking"
	"mobiletracking/internal/transport"
)

// newBackend starts the mock tracking API on a local test server.
func newBackend(t *testing.T, cfg backend.MemoryConfig) (*httptest.Server, *backend.Memory) {
	t.Helper()
	mem := backend.NewMemory(cfg)
	srv := httptest.NewServer(backend.NewMux(mem, backend.Options{}))
	t.Cleanup(srv.Close)
	return srv, mem
}

// newService wires a tracking service to baseURL over real HTTP, persisting
// to a bolt file under dir.
func newService(t *testing.T, baseURL, dir string, mutate func(*tracking.Config)) *tracking.Service {
	t.Helper()
	st, err := store.OpenBolt(filepath.Join(dir, "prefs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	cfg := tracking.Config{
		AdvertiserID: "adv-e2e",
		CampaignID:   "camp-e2e",
		BaseURL:      baseURL,
		Store:        st,
		Transport:    transport.NewHTTP(transport.Options{RequestTimeout: 2 * time.Second}),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := tracking.New(cfg)
	if err != nil {
		t.Fatalf("tracking.New: %v", err)
	}
	return svc
}

func waitIdle(t *testing.T, svc *tracking.Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}
