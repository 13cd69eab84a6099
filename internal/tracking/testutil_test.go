package tracking

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"mobiletracking/internal/queue"
	"mobiletracking/internal/store"
)

type call struct {
	endpoint string
	payload  queue.Payload
}

// fakeBackend answers transport calls synchronously by endpoint suffix.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []call
	register queue.Result
	event    queue.Result
	// hold, when non-nil, delays every answer until it is closed.
	hold chan struct{}
}

func newFakeBackend(registerBody string) *fakeBackend {
	return &fakeBackend{
		register: queue.Result{Body: registerBody},
		event:    queue.Result{Body: `{"conversion_id":"c1"}`},
	}
}

func (f *fakeBackend) Perform(ctx context.Context, endpoint string, payload queue.Payload) <-chan queue.Result {
	f.mu.Lock()
	f.calls = append(f.calls, call{endpoint: endpoint, payload: payload})
	res := f.event
	if strings.HasSuffix(endpoint, pathRegister) {
		res = f.register
	}
	hold := f.hold
	f.mu.Unlock()
	if hold == nil {
		return queue.Resolved(res)
	}
	ch := make(chan queue.Result, 1)
	go func() {
		<-hold
		ch <- res
		close(ch)
	}()
	return ch
}

func (f *fakeBackend) callsTo(path string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if strings.HasSuffix(c.endpoint, path) {
			out = append(out, c)
		}
	}
	return out
}

var fixedFingerprint = FingerprinterFunc(func() map[string]any {
	return map[string]any{"os": "test"}
})

func newTestService(t *testing.T, tr queue.Transport, mutate func(*Config)) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemory()
	cfg := Config{
		AdvertiserID:  " adv-1 ",
		CampaignID:    "camp-1",
		BaseURL:       "https://track.test/mobile/",
		Store:         st,
		Transport:     tr,
		Fingerprinter: fixedFingerprint,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, cfg.Store
}

func waitIdle(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// failingStore rejects every Save.
type failingStore struct {
	*store.Memory
	err error
}

func (f failingStore) Save(context.Context, store.Preferences) error { return f.err }
