package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mobiletracking/internal/queue"
	"mobiletracking/internal/store"
	"mobiletracking/pkg/types"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Transport: newFakeBackend("{}")}); !errors.Is(err, ErrNoBaseURL) {
		t.Fatalf("expected ErrNoBaseURL, got %v", err)
	}
	if _, err := New(Config{BaseURL: "http://x"}); !errors.Is(err, queue.ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
}

func TestInitialise_RegistersAndStoresTrackingID(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc123"}`)
	s, st := newTestService(t, fb, nil)
	ctx := context.Background()
	if err := s.SetReferrer(ctx, "utm_source=test"); err != nil {
		t.Fatalf("SetReferrer: %v", err)
	}
	s.SetAdvertisingID("idfa-1")

	if err := s.Initialise(ctx, ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)

	calls := fb.callsTo(pathRegister)
	if len(calls) != 1 {
		t.Fatalf("expected one registration, got %d", len(calls))
	}
	if calls[0].endpoint != "https://track.test/mobile/register" {
		t.Fatalf("endpoint: %s", calls[0].endpoint)
	}
	want := queue.Payload{
		"advertiser_id": "adv-1",
		"campaign_id":   "camp-1",
		"fingerprint":   map[string]any{"os": "test"},
		"idfa":          "idfa-1",
		"referrer":      "utm_source=test",
	}
	if diff := cmp.Diff(want, calls[0].payload); diff != "" {
		t.Fatalf("registration payload mismatch (-want +got):\n%s", diff)
	}

	if s.TrackingID() != "abc123" || !s.SetupComplete() {
		t.Fatalf("unexpected state id=%q setup=%v", s.TrackingID(), s.SetupComplete())
	}
	p, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.TrackingID != "abc123" || !p.SetupComplete || !p.TrackingActive {
		t.Fatalf("unexpected stored prefs: %+v", p)
	}
}

func TestInitialise_SkipsRegistrationWhenSetupComplete(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"new"}`)
	s, st := newTestService(t, fb, nil)
	ctx := context.Background()
	if err := st.Save(ctx, store.Preferences{TrackingID: "old", TrackingActive: true, SetupComplete: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Initialise(ctx, ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	if n := len(fb.callsTo(pathRegister)); n != 0 {
		t.Fatalf("expected no registration, got %d", n)
	}
	if s.TrackingID() != "old" {
		t.Fatalf("tracking id: %q", s.TrackingID())
	}
}

func TestRegistration_InactiveResponse(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":false}`)
	s, _ := newTestService(t, fb, nil)
	if err := s.Initialise(context.Background(), ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	if s.TrackingActive() {
		t.Fatalf("expected tracking disabled")
	}
	if s.TrackingID() != "" || !s.SetupComplete() {
		t.Fatalf("unexpected state id=%q setup=%v", s.TrackingID(), s.SetupComplete())
	}
	if s.Register() {
		t.Fatalf("inactive install must not register again")
	}
}

func TestRegistration_DeepLinkForwarded(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc","deep_link":"myapp%3A%2F%2Fproduct%2F42"}`)
	var mu sync.Mutex
	var got []DeepLink
	s, _ := newTestService(t, fb, func(c *Config) {
		c.DeepLinkHandler = DeepLinkHandlerFunc(func(_ *Service, l DeepLink) {
			mu.Lock()
			got = append(got, l)
			mu.Unlock()
		})
	})
	if err := s.Initialise(context.Background(), ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	mu.Lock()
	defer mu.Unlock()
	want := []DeepLink{{URL: "myapp://product/42", Action: DefaultDeepLinkAction}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("deep links (-want +got):\n%s", diff)
	}
}

func TestRegistration_MalformedResponseIsIgnored(t *testing.T) {
	fb := newFakeBackend(`not json`)
	s, _ := newTestService(t, fb, nil)
	if err := s.Initialise(context.Background(), ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	if s.TrackingID() != "" || s.SetupComplete() {
		t.Fatalf("malformed response must not change state")
	}
	if !s.Register() {
		t.Fatalf("expected a retry to be possible after a malformed response")
	}
}

func TestRegistration_ErrorLeavesStateUntouched(t *testing.T) {
	fb := newFakeBackend("")
	fb.register = queue.Result{Err: queue.NewTransportError("register", 503, nil)}
	s, _ := newTestService(t, fb, nil)
	if err := s.Initialise(context.Background(), ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	if s.SetupComplete() {
		t.Fatalf("failed registration must not complete setup")
	}
}

func TestRegister_SingleFlight(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	fb.hold = make(chan struct{})
	s, _ := newTestService(t, fb, nil)
	if !s.Register() {
		t.Fatalf("first Register should enqueue")
	}
	if s.Register() {
		t.Fatalf("second Register should be rejected while the first is in flight")
	}
	close(fb.hold)
	waitIdle(t, s)
	if n := len(fb.callsTo(pathRegister)); n != 1 {
		t.Fatalf("expected one registration, got %d", n)
	}
}

func TestRegister_RequiresIDs(t *testing.T) {
	fb := newFakeBackend(`{}`)
	s, _ := newTestService(t, fb, func(c *Config) { c.CampaignID = "  " })
	if s.Register() {
		t.Fatalf("register without campaign id")
	}
}

func TestRegister_WaitsForActiveFingerprint(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	s, _ := newTestService(t, fb, func(c *Config) { c.WaitForActiveFingerprint = true })
	if err := s.Initialise(context.Background(), ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	if n := len(fb.callsTo(pathRegister)); n != 0 {
		t.Fatalf("registered before active fingerprint: %d", n)
	}
	s.SetActiveFingerprint(map[string]any{"touch": "1"})
	waitIdle(t, s)
	calls := fb.callsTo(pathRegister)
	if len(calls) != 1 {
		t.Fatalf("expected registration after fingerprint, got %d", len(calls))
	}
	if diff := cmp.Diff(map[string]any{"touch": "1"}, calls[0].payload["active_fingerprint"]); diff != "" {
		t.Fatalf("active fingerprint (-want +got):\n%s", diff)
	}
}

func TestTrackEvent_DroppedWithoutTrackingID(t *testing.T) {
	fb := newFakeBackend(`{}`)
	s, _ := newTestService(t, fb, nil)
	if err := s.TrackEvent(types.NewEvent("open")); !errors.Is(err, ErrNoTrackingID) {
		t.Fatalf("expected ErrNoTrackingID, got %v", err)
	}
	if err := s.TrackEvent(nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
	waitIdle(t, s)
	if n := len(fb.callsTo(pathEvent)); n != 0 {
		t.Fatalf("expected no events sent, got %d", n)
	}
}

func TestTrackEvent_PayloadShape(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	s, _ := newTestService(t, fb, nil)
	ctx := context.Background()
	if err := s.Initialise(ctx, ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)

	sale, err := types.NewSale("shoes", "19.99")
	if err != nil {
		t.Fatalf("NewSale: %v", err)
	}
	// A sale event carries no category.
	ev := types.NewEventBuilder().
		Category("purchase").
		Sales("GBP", sale).
		ConversionReference("order-7").
		Build()
	ev.AddMeta("screen", "checkout")
	if err := s.TrackEvent(ev); err != nil {
		t.Fatalf("TrackEvent: %v", err)
	}
	waitIdle(t, s)

	calls := fb.callsTo(pathEvent)
	if len(calls) != 1 {
		t.Fatalf("expected one event, got %d", len(calls))
	}
	want := queue.Payload{
		"advertiser_id":     "adv-1",
		"campaign_id":       "camp-1",
		"mobiletracking_id": "abc",
		"meta":              map[string]string{"screen": "checkout"},
		"sales":             []map[string]any{{"category": "shoes", "value": "19.99"}},
		"currency":          "GBP",
		"conversion_ref":    "order-7",
	}
	if diff := cmp.Diff(want, calls[0].payload); diff != "" {
		t.Fatalf("event payload mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackEvent_FailureDoesNotStallEvents(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	s, _ := newTestService(t, fb, nil)
	if err := s.Initialise(context.Background(), ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	fb.mu.Lock()
	fb.event = queue.Result{Err: errors.New("boom")}
	fb.mu.Unlock()
	for i := 0; i < 3; i++ {
		if err := s.TrackEvent(types.NewEvent("open")); err != nil {
			t.Fatalf("TrackEvent: %v", err)
		}
	}
	waitIdle(t, s)
	if n := len(fb.callsTo(pathEvent)); n != 3 {
		t.Fatalf("expected every event attempted, got %d", n)
	}
}

type fakeNetwork struct{ active atomic.Bool }

func (f *fakeNetwork) IsNetworkActive() bool { return f.active.Load() }

func TestNetworkChanged_PausesAndResumes(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	net := &fakeNetwork{}
	s, _ := newTestService(t, fb, func(c *Config) {
		c.StartPaused = true
		c.Network = net
	})
	if err := s.Initialise(context.Background(), ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	if n := len(fb.callsTo(pathRegister)); n != 0 {
		t.Fatalf("paused service sent %d registrations", n)
	}

	s.NetworkChanged(true)
	waitFor(t, "registration", func() bool { return s.TrackingID() == "abc" })

	s.NetworkChanged(false)
	if err := s.TrackEvent(types.NewEvent("open")); err != nil {
		t.Fatalf("TrackEvent: %v", err)
	}
	if n := len(fb.callsTo(pathEvent)); n != 0 {
		t.Fatalf("offline service sent %d events", n)
	}

	// TrackEvent resumes the queues once the network reports active.
	net.active.Store(true)
	if err := s.TrackEvent(types.NewEvent("open")); err != nil {
		t.Fatalf("TrackEvent: %v", err)
	}
	waitIdle(t, s)
	if n := len(fb.callsTo(pathEvent)); n != 2 {
		t.Fatalf("expected both events after resume, got %d", n)
	}
}

func TestClearTracking(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	s, st := newTestService(t, fb, nil)
	ctx := context.Background()
	if err := s.Initialise(ctx, ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	if err := s.ClearTracking(ctx); err != nil {
		t.Fatalf("ClearTracking: %v", err)
	}
	if s.TrackingID() != "" || s.SetupComplete() || !s.TrackingActive() {
		t.Fatalf("state not reset")
	}
	p, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(store.DefaultPreferences(), p); diff != "" {
		t.Fatalf("stored prefs (-want +got):\n%s", diff)
	}
}

func TestDebugUsesDebugBaseURL(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	s, _ := newTestService(t, fb, func(c *Config) {
		c.Debug = true
		c.DebugBaseURL = "https://sandbox.track.test/mobile"
	})
	s.Register()
	waitIdle(t, s)
	calls := fb.callsTo(pathRegister)
	if len(calls) != 1 || calls[0].endpoint != "https://sandbox.track.test/mobile/register" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestClose_ClosesStore(t *testing.T) {
	fb := newFakeBackend(`{}`)
	s, st := newTestService(t, fb, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := st.Load(context.Background()); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected closed store, got %v", err)
	}
}

func TestSetReferrer_OnlyBeforeSetupCompletes(t *testing.T) {
	cases := []struct {
		name       string
		stored     *store.Preferences
		beforeLoad bool
		// register sends a registration after the referrer was set.
		register     bool
		wantStored   store.Preferences
		wantReferrer string
	}{
		{
			name:         "fresh store, set after load",
			register:     true,
			wantStored:   store.Preferences{TrackingID: "abc", TrackingActive: true, SetupComplete: true, Referrer: "utm_source=late"},
			wantReferrer: "utm_source=late",
		},
		{
			name:         "fresh store, set before load",
			beforeLoad:   true,
			register:     true,
			wantStored:   store.Preferences{TrackingID: "abc", TrackingActive: true, SetupComplete: true, Referrer: "utm_source=late"},
			wantReferrer: "utm_source=late",
		},
		{
			name:       "setup complete, set after load",
			stored:     &store.Preferences{TrackingActive: true, SetupComplete: true},
			register:   true,
			wantStored: store.Preferences{TrackingID: "abc", TrackingActive: true, SetupComplete: true},
		},
		{
			name:       "setup complete, set before load",
			stored:     &store.Preferences{TrackingID: "kept", TrackingActive: true, SetupComplete: true},
			beforeLoad: true,
			wantStored: store.Preferences{TrackingID: "kept", TrackingActive: true, SetupComplete: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
			s, st := newTestService(t, fb, nil)
			ctx := context.Background()
			if tc.stored != nil {
				if err := st.Save(ctx, *tc.stored); err != nil {
					t.Fatalf("Save: %v", err)
				}
			}
			if tc.beforeLoad {
				if err := s.SetReferrer(ctx, "utm_source=late"); err != nil {
					t.Fatalf("SetReferrer: %v", err)
				}
			}
			if _, err := s.LoadPreferences(ctx); err != nil {
				t.Fatalf("LoadPreferences: %v", err)
			}
			if !tc.beforeLoad {
				if err := s.SetReferrer(ctx, "utm_source=late"); err != nil {
					t.Fatalf("SetReferrer: %v", err)
				}
			}
			if tc.register {
				if !s.Register() {
					t.Fatalf("expected registration to be enqueued")
				}
				waitIdle(t, s)
				calls := fb.callsTo(pathRegister)
				if len(calls) != 1 {
					t.Fatalf("expected one registration, got %d", len(calls))
				}
				got, _ := calls[0].payload["referrer"].(string)
				if got != tc.wantReferrer {
					t.Fatalf("registration referrer %q, want %q", got, tc.wantReferrer)
				}
			}
			p, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(tc.wantStored, p); diff != "" {
				t.Fatalf("stored prefs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProcessDeepLink_SaveFailureKeepsState(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	saveErr := errors.New("disk full")
	s, _ := newTestService(t, fb, func(c *Config) {
		c.Store = failingStore{Memory: store.NewMemory(), err: saveErr}
	})
	ctx := context.Background()
	if _, _, err := s.ProcessDeepLink(ctx, "myapp://open/mobiletrackingid:fromlink"); !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
	if s.TrackingID() != "" || s.SetupComplete() {
		t.Fatalf("state changed despite failed save: id=%q setup=%v", s.TrackingID(), s.SetupComplete())
	}

	// Initialise still registers because nothing was persisted.
	if err := s.Initialise(ctx, "myapp://open/mobiletrackingid:fromlink"); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	if n := len(fb.callsTo(pathRegister)); n != 1 {
		t.Fatalf("expected one registration, got %d", n)
	}
}

func TestFailureHandler_ReceivesFailedRequests(t *testing.T) {
	fb := newFakeBackend(`{"mobiletracking_id":"abc"}`)
	fb.event = queue.Result{Err: queue.NewTransportError("event", 500, nil)}
	var mu sync.Mutex
	var failed []string
	s, _ := newTestService(t, fb, func(c *Config) {
		c.FailureHandler = FailureHandlerFunc(func(_ *Service, queueName string, req queue.Request, err error) {
			mu.Lock()
			failed = append(failed, queueName+" "+req.Endpoint)
			mu.Unlock()
		})
	})
	if err := s.Initialise(context.Background(), ""); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	waitIdle(t, s)
	if err := s.TrackEvent(types.NewEvent("open")); err != nil {
		t.Fatalf("TrackEvent: %v", err)
	}
	waitIdle(t, s)
	mu.Lock()
	defer mu.Unlock()
	want := []string{"events https://track.test/mobile/event"}
	if diff := cmp.Diff(want, failed); diff != "" {
		t.Fatalf("failures (-want +got):\n%s", diff)
	}
}
