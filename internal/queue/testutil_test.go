package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

// pendingCall is one transport call awaiting a result from the test.
type pendingCall struct {
	endpoint string
	payload  Payload
	ch       chan Result
}

func (c *pendingCall) succeed(body string) {
	c.ch <- Result{Body: body}
	close(c.ch)
}

func (c *pendingCall) fail(err error) {
	c.ch <- Result{Err: err}
	close(c.ch)
}

// manualTransport records calls and leaves them unresolved until the test
// resolves them.
type manualTransport struct {
	mu    sync.Mutex
	calls []*pendingCall
}

func (m *manualTransport) Perform(ctx context.Context, endpoint string, payload Payload) <-chan Result {
	c := &pendingCall{endpoint: endpoint, payload: payload, ch: make(chan Result, 1)}
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
	return c.ch
}

func (m *manualTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *manualTransport) call(i int) *pendingCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// echoTransport resolves every call immediately with the endpoint as body.
type echoTransport struct {
	mu        sync.Mutex
	endpoints []string
}

func (e *echoTransport) Perform(ctx context.Context, endpoint string, payload Payload) <-chan Result {
	e.mu.Lock()
	e.endpoints = append(e.endpoints, endpoint)
	e.mu.Unlock()
	return Resolved(Result{Body: endpoint})
}

func newTestQueue(t *testing.T, tr Transport, obs Observer) *Queue {
	t.Helper()
	q, err := New(Config{Name: t.Name(), Transport: tr, Observer: obs})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

// waitFor polls cond until it holds or the test deadline passes.
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

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
