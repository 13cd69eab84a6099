package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mobiletracking/internal/queue"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20
	// errorExcerptBytes caps the body excerpt carried by status errors.
	errorExcerptBytes = 4096
)

// Options configures an HTTP transport. Zero values select defaults.
type Options struct {
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	UserAgent      string
	Logger         *zerolog.Logger
	// Client overrides the tuned default client (useful for tests).
	Client *http.Client
}

// HTTP implements queue.Transport by POSTing the payload as JSON.
type HTTP struct {
	client     *http.Client
	reqTimeout time.Duration
	userAgent  string
	log        zerolog.Logger
}

// NewHTTP constructs an HTTP transport.
func NewHTTP(opts Options) *HTTP {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	cli := opts.Client
	if cli == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		// Timeout stays 0: every call carries a context deadline instead.
		cli = &http.Client{Transport: tr, Timeout: 0}
	}
	h := &HTTP{
		client:     cli,
		reqTimeout: opts.RequestTimeout,
		userAgent:  opts.UserAgent,
		log:        zerolog.Nop(),
	}
	if opts.Logger != nil {
		h.log = opts.Logger.With().Str("component", "transport").Logger()
	}
	return h
}

// Perform implements queue.Transport.
func (h *HTTP) Perform(ctx context.Context, endpoint string, payload queue.Payload) <-chan queue.Result {
	ch := make(chan queue.Result, 1)
	go func() {
		defer close(ch)
		body, err := h.Do(ctx, endpoint, payload)
		ch <- queue.Result{Body: body, Err: err}
	}()
	return ch
}

// Do performs a single synchronous call and returns the raw response body.
func (h *HTTP) Do(ctx context.Context, endpoint string, payload queue.Payload) (string, error) {
	if h.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.reqTimeout)
		defer cancel()
	}
	if payload == nil {
		payload = queue.Payload{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", queue.NewTransportError(endpoint, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		h.log.Debug().Str("event", "http_error").Str("endpoint", endpoint).Err(err).Msg("request failed")
		return "", queue.NewTransportError(endpoint, 0, err)
	}
	defer resp.Body.Close()
	h.log.Debug().Str("event", "http_response").Str("endpoint", endpoint).Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("response received")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorExcerptBytes))
		return "", queue.NewTransportError(endpoint, resp.StatusCode, errors.New(resp.Status+": "+string(excerpt)))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", queue.NewTransportError(endpoint, resp.StatusCode, err)
	}
	if !json.Valid(raw) {
		return "", queue.NewMalformedResponseError(string(raw), errors.New("response is not valid JSON"))
	}
	return string(raw), nil
}
