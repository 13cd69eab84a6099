// Package queue provides the request queue used by the tracking service to
// serialize outbound tracking calls. It is structured into small files by
// concern:
//
//   - queue.go: Queue type, constructor, enqueue/pause/dispatch logic.
//   - config.go: Config and package defaults; New applies defaults.
//   - request.go: Request, Payload and Result value types.
//   - transport.go: the Transport interface the queue dispatches through.
//   - observer.go: Observer callbacks, ObserverFuncs and MemoryObserver.
//   - errors.go: error types and helpers (IsTransportError, IsMalformedResponse).
//   - metrics.go: Prometheus collectors labelled by queue name.
//
// A Queue dispatches at most one request at a time, in FIFO order, and only
// while it is not paused. Every dispatched request produces exactly one
// observer callback; failures never stall the queue and are never retried by
// it.
package queue
