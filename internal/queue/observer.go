package queue

import "sync"

// Observer receives the outcome of each dispatched request. Callbacks run on
// the goroutine that received the transport result; the queue does not
// re-marshal them onto any particular goroutine. Implementations should be
// quick and must not assume the queue lock is held.
type Observer interface {
	OnRequestComplete(q *Queue, req Request, raw string)
	OnRequestError(q *Queue, req Request, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Complete func(q *Queue, req Request, raw string)
	Error    func(q *Queue, req Request, err error)
}

func (o ObserverFuncs) OnRequestComplete(q *Queue, req Request, raw string) {
	if o.Complete != nil {
		o.Complete(q, req, raw)
	}
}

func (o ObserverFuncs) OnRequestError(q *Queue, req Request, err error) {
	if o.Error != nil {
		o.Error(q, req, err)
	}
}

// Outcome is one observer callback as recorded by MemoryObserver.
type Outcome struct {
	Queue   string
	Request Request
	Raw     string
	Err     error
}

// MemoryObserver stores outcomes in-memory for tests.
type MemoryObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func NewMemoryObserver() *MemoryObserver { return &MemoryObserver{} }

func (o *MemoryObserver) OnRequestComplete(q *Queue, req Request, raw string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, Outcome{Queue: q.Name(), Request: req, Raw: raw})
	o.mu.Unlock()
}

func (o *MemoryObserver) OnRequestError(q *Queue, req Request, err error) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, Outcome{Queue: q.Name(), Request: req, Err: err})
	o.mu.Unlock()
}

func (o *MemoryObserver) Outcomes() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Outcome, len(o.outcomes))
	copy(out, o.outcomes)
	return out
}
