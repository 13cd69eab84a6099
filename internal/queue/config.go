package queue

import (
	"context"

	"github.com/rs/zerolog"
)

const defaultName = "default"

// Config encapsulates all tunables for Queue construction.
type Config struct {
	// Name labels logs and metrics. Defaults to "default".
	Name      string
	Transport Transport
	// Observer is borrowed: the queue never closes or otherwise manages it,
	// and callers may replace it with SetObserver.
	Observer    Observer
	Logger      *zerolog.Logger
	StartPaused bool
	// BaseContext is passed to every transport call. Canceling it aborts
	// in-flight calls, which then fail through the observer. Defaults to
	// context.Background().
	BaseContext context.Context
}

// New constructs a Queue from Config.
func New(cfg Config) (*Queue, error) {
	if cfg.Transport == nil {
		return nil, ErrNoTransport
	}
	q := &Queue{
		name:      cfg.Name,
		transport: cfg.Transport,
		observer:  cfg.Observer,
		paused:    cfg.StartPaused,
		baseCtx:   cfg.BaseContext,
	}
	if q.name == "" {
		q.name = defaultName
	}
	if q.baseCtx == nil {
		q.baseCtx = context.Background()
	}
	if cfg.Logger != nil {
		q.log = cfg.Logger.With().Str("queue", q.name).Logger()
	} else {
		q.log = zerolog.Nop()
	}
	return q, nil
}
