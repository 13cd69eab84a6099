package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Queue is an ordered backlog of requests dispatched one at a time through a
// Transport. All methods are safe for concurrent use.
type Queue struct {
	name      string
	transport Transport
	log       zerolog.Logger
	baseCtx   context.Context

	mu       sync.Mutex
	observer Observer
	backlog  []Request
	paused   bool
	// active is true from the moment a request is handed to the transport
	// until its observer callback has returned.
	active bool
}

// Name returns the queue's label.
func (q *Queue) Name() string { return q.name }

// SetObserver replaces the observer. A nil observer drops outcomes (they are
// still logged).
func (q *Queue) SetObserver(o Observer) {
	q.mu.Lock()
	q.observer = o
	q.mu.Unlock()
}

// Enqueue appends req to the backlog and dispatches it if the queue is
// neither paused nor busy.
func (q *Queue) Enqueue(req Request) {
	if q.transport == nil {
		panic(ErrNoTransport)
	}
	q.mu.Lock()
	q.backlog = append(q.backlog, req)
	next, ok := q.popLocked()
	q.mu.Unlock()
	q.log.Debug().Str("event", "enqueue").Str("request_id", req.ID).Str("endpoint", req.Endpoint).Msg("request queued")
	if ok {
		q.dispatch(next)
	}
}

// EnqueueIfIdle enqueues req only when no request is in flight and the
// backlog is empty, and reports whether it did. It provides single-flight
// semantics for requests such as registration.
func (q *Queue) EnqueueIfIdle(req Request) bool {
	if q.transport == nil {
		panic(ErrNoTransport)
	}
	q.mu.Lock()
	if q.active || len(q.backlog) > 0 {
		q.mu.Unlock()
		q.log.Debug().Str("event", "enqueue_skipped").Str("request_id", req.ID).Msg("queue busy")
		return false
	}
	q.backlog = append(q.backlog, req)
	next, ok := q.popLocked()
	q.mu.Unlock()
	q.log.Debug().Str("event", "enqueue").Str("request_id", req.ID).Str("endpoint", req.Endpoint).Msg("request queued")
	if ok {
		q.dispatch(next)
	}
	return true
}

// SetPaused pauses or resumes dispatch. Pausing never affects a request that
// is already in flight. Resuming dispatches the head of the backlog when
// nothing is active.
func (q *Queue) SetPaused(paused bool) {
	q.mu.Lock()
	changed := q.paused != paused
	q.paused = paused
	var (
		next Request
		ok   bool
	)
	if !paused {
		next, ok = q.popLocked()
	}
	q.mu.Unlock()
	if changed {
		q.log.Info().Str("event", "pause").Bool("paused", paused).Msg("queue pause changed")
	}
	if ok {
		q.dispatch(next)
	}
}

// Paused reports whether dispatch is paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// IsRequestActive reports whether a request has been handed to the
// transport and its observer callback has not yet returned.
func (q *Queue) IsRequestActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Len returns the number of requests waiting to be dispatched.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// WaitIdle blocks until the backlog is empty and nothing is in flight, or
// ctx is done. A paused queue with a backlog never becomes idle.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := !q.active && len(q.backlog) == 0
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// popLocked removes the head of the backlog and marks the queue active, if
// dispatch is currently allowed. Caller must hold q.mu.
func (q *Queue) popLocked() (Request, bool) {
	defer func() { backlogGauge.WithLabelValues(q.name).Set(float64(len(q.backlog))) }()
	if q.paused || q.active || len(q.backlog) == 0 {
		return Request{}, false
	}
	req := q.backlog[0]
	q.backlog[0] = Request{}
	q.backlog = q.backlog[1:]
	q.active = true
	return req, true
}

// dispatch hands req to the transport. The queue must already be marked
// active for req.
func (q *Queue) dispatch(req Request) {
	dispatchedTotal.WithLabelValues(q.name).Inc()
	q.log.Debug().Str("event", "dispatch").Str("request_id", req.ID).Str("endpoint", req.Endpoint).Msg("request dispatched")
	start := time.Now()
	ch := q.transport.Perform(q.baseCtx, req.Endpoint, req.Payload)
	if ch == nil {
		// A nil channel would never deliver; fail the request instead.
		ch = Resolved(Result{Err: errResultDropped})
	}
	go q.await(req, ch, start)
}

// await waits for the transport result of req, notifies the observer, then
// advances to the next request.
func (q *Queue) await(req Request, ch <-chan Result, start time.Time) {
	res, ok := <-ch
	if !ok {
		res = Result{Err: errResultDropped}
	}
	outcome := outcomeSuccess
	if res.Err != nil {
		outcome = outcomeError
	}
	completedTotal.WithLabelValues(q.name, outcome).Inc()
	requestDuration.WithLabelValues(q.name, outcome).Observe(time.Since(start).Seconds())

	if res.Err != nil {
		q.log.Warn().Str("event", "request_error").Str("request_id", req.ID).Str("endpoint", req.Endpoint).Err(res.Err).Msg("request failed")
	} else {
		q.log.Debug().Str("event", "request_complete").Str("request_id", req.ID).Dur("dur", time.Since(start)).Msg("request complete")
	}
	q.notify(req, res)

	q.mu.Lock()
	q.active = false
	next, more := q.popLocked()
	q.mu.Unlock()
	if more {
		q.dispatch(next)
	}
}

// notify invokes the observer. A panicking observer is logged and does not
// stall the queue.
func (q *Queue) notify(req Request, res Result) {
	q.mu.Lock()
	o := q.observer
	q.mu.Unlock()
	if o == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Str("event", "observer_panic").Str("request_id", req.ID).
				Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("observer panicked")
		}
	}()
	if res.Err != nil {
		o.OnRequestError(q, req, res.Err)
		return
	}
	o.OnRequestComplete(q, req, res.Body)
}
