package queue

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the structured document sent with a request.
type Payload map[string]any

// Clone returns a deep copy of p. Nested maps and slices are copied; other
// values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		return t.Clone()
	case map[string]any:
		return map[string]any(Payload(t).Clone())
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, s := range t {
			m[k] = s
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i := range t {
			s[i] = cloneValue(t[i])
		}
		return s
	case []map[string]any:
		s := make([]map[string]any, len(t))
		for i := range t {
			s[i] = map[string]any(Payload(t[i]).Clone())
		}
		return s
	default:
		return v
	}
}

// Request is a unit of work for the queue. Build it with NewRequest; it must
// not be modified after it has been enqueued.
type Request struct {
	// Stable identity used for logging and correlation.
	ID        string
	Endpoint  string
	Payload   Payload
	CreatedAt time.Time
}

// NewRequest returns a Request with a fresh id and a private copy of payload.
func NewRequest(endpoint string, payload Payload) Request {
	return Request{
		ID:        uuid.NewString(),
		Endpoint:  endpoint,
		Payload:   payload.Clone(),
		CreatedAt: time.Now(),
	}
}

// Result is the outcome of one transport call: either the raw response body
// or an error.
type Result struct {
	Body string
	Err  error
}
