package queue

import "context"

// Transport performs network calls on behalf of a Queue.
type Transport interface {
	// Perform starts a call to endpoint with payload and returns a channel
	// that receives exactly one Result and is then closed. Perform must not
	// block on the network; timeouts are the transport's responsibility.
	Perform(ctx context.Context, endpoint string, payload Payload) <-chan Result
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, endpoint string, payload Payload) <-chan Result

func (f TransportFunc) Perform(ctx context.Context, endpoint string, payload Payload) <-chan Result {
	return f(ctx, endpoint, payload)
}

// Resolved returns a closed channel holding r. Useful for synchronous
// transports.
func Resolved(r Result) <-chan Result {
	ch := make(chan Result, 1)
	ch <- r
	close(ch)
	return ch
}
