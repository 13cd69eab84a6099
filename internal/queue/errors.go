package queue

import (
	"errors"
	"strconv"
)

// ErrNoTransport is a configuration error: a queue cannot dispatch without a
// transport.
var ErrNoTransport = errors.New("queue: no transport configured")

// errResultDropped is reported when a transport closes its result channel
// without sending a Result.
var errResultDropped = errors.New("queue: transport closed result channel without a result")

// transportError signals a network failure or a non-success response.
type transportError struct {
	endpoint string
	status   int
	err      error
}

func (e transportError) Error() string {
	msg := "transport error: " + e.endpoint
	if e.status != 0 {
		msg += ": status " + strconv.Itoa(e.status)
	}
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e transportError) Unwrap() error { return e.err }

// StatusCode returns the HTTP status of the failed call, or 0 when the call
// never produced a response.
func (e transportError) StatusCode() int { return e.status }

// NewTransportError constructs a transport failure for endpoint. status is 0
// when no response was received.
func NewTransportError(endpoint string, status int, err error) error {
	return transportError{endpoint: endpoint, status: status, err: err}
}

// IsTransportError reports whether err is a network or status failure.
func IsTransportError(err error) bool {
	var te transportError
	return errors.As(err, &te)
}

// malformedResponseError signals a response body that could not be parsed.
type malformedResponseError struct {
	excerpt string
	err     error
}

func (e malformedResponseError) Error() string {
	msg := "malformed response"
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	if e.excerpt != "" {
		msg += ": " + strconv.Quote(e.excerpt)
	}
	return msg
}

func (e malformedResponseError) Unwrap() error { return e.err }

// NewMalformedResponseError constructs a parsing failure. body is truncated
// in the message.
func NewMalformedResponseError(body string, err error) error {
	if len(body) > 128 {
		body = body[:128]
	}
	return malformedResponseError{excerpt: body, err: err}
}

// IsMalformedResponse reports whether err indicates an unparseable body.
func IsMalformedResponse(err error) bool {
	var me malformedResponseError
	return errors.As(err, &me)
}
