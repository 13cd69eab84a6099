package tracking

import (
	"context"
	"encoding/json"
	"errors"

	"mobiletracking/internal/queue"
	"mobiletracking/internal/store"
	"mobiletracking/pkg/types"
)

// OnRequestComplete handles registration responses. Event responses are only
// logged.
func (s *Service) OnRequestComplete(q *queue.Queue, req queue.Request, raw string) {
	if q != s.setup {
		s.log.Debug().Str("event", "event_sent").Str("request_id", req.ID).Msg("event accepted")
		return
	}

	var resp types.RegisterResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		s.log.Warn().Err(queue.NewMalformedResponseError(raw, err)).Str("request_id", req.ID).Msg("invalid registration response")
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, storeTimeout)
	defer cancel()
	err := s.updatePrefs(ctx, func(p *store.Preferences) {
		switch id := resp.TrackingID.(type) {
		case string:
			p.TrackingID = id
		case bool:
			p.TrackingActive = id
		}
		p.SetupComplete = true
	})
	if err != nil {
		s.log.Error().Err(err).Str("request_id", req.ID).Msg("persist registration")
	}
	s.log.Info().
		Str("event", "registered").
		Str("request_id", req.ID).
		Str("tracking_id", s.TrackingID()).
		Bool("tracking_active", s.TrackingActive()).
		Msg("registration complete")

	if resp.DeepLink == "" {
		return
	}
	link, err := decodeDeepLink(resp.DeepLink, resp.DeepLinkAction)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", req.ID).Msg("unsupported deep link encoding")
		return
	}
	if s.deepLinks == nil {
		s.log.Info().Str("event", "deeplink").Str("url", link.URL).Str("action", link.Action).Msg("deferred deep link received")
		return
	}
	s.deepLinks.DeepLinkRetrieved(s, link)
}

// OnRequestError logs failed requests. The queue has already moved on; the
// service never retries.
func (s *Service) OnRequestError(q *queue.Queue, req queue.Request, err error) {
	ev := s.log.Warn().Err(err).
		Str("event", "request_failed").
		Str("queue", q.Name()).
		Str("request_id", req.ID).
		Str("endpoint", req.Endpoint)
	if status, ok := statusOf(err); ok {
		ev = ev.Int("status", status)
	}
	ev.Msg("tracking request failed")
	if s.failures != nil {
		s.failures.RequestFailed(s, q.Name(), req, err)
	}
}

func statusOf(err error) (int, bool) {
	var se interface{ StatusCode() int }
	if errors.As(err, &se) && se.StatusCode() != 0 {
		return se.StatusCode(), true
	}
	return 0, false
}
