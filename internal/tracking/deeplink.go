package tracking

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"mobiletracking/internal/store"
)

// DefaultDeepLinkAction is used when the backend omits deeplink_action.
const DefaultDeepLinkAction = "android.intent.action.VIEW"

var trackingIDPath = regexp.MustCompile(`/mobiletrackingid:(\w*)`)

// DeepLink is a deferred deep link returned by registration.
type DeepLink struct {
	URL    string
	Action string
}

// DeepLinkHandler receives deferred deep links. It is called from the setup
// queue's callback goroutine.
type DeepLinkHandler interface {
	DeepLinkRetrieved(s *Service, link DeepLink)
}

// DeepLinkHandlerFunc adapts a function to DeepLinkHandler.
type DeepLinkHandlerFunc func(s *Service, link DeepLink)

func (f DeepLinkHandlerFunc) DeepLinkRetrieved(s *Service, link DeepLink) { f(s, link) }

// ProcessDeepLink looks for a /mobiletrackingid:<id> path segment in raw.
// When found, the id is stored, setup is marked complete and the link is
// returned with the segment removed. ok is false when raw carries no
// tracking id.
func (s *Service) ProcessDeepLink(ctx context.Context, raw string) (filtered string, ok bool, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false, fmt.Errorf("parse deep link: %w", err)
	}
	m := trackingIDPath.FindStringSubmatchIndex(u.Path)
	if m == nil {
		return "", false, nil
	}
	id := u.Path[m[2]:m[3]]

	err = s.updatePrefs(ctx, func(p *store.Preferences) {
		p.TrackingID = id
		p.SetupComplete = true
	})
	if err != nil {
		return "", false, err
	}
	s.log.Info().Str("event", "deeplink_tracking_id").Str("tracking_id", id).Msg("tracking id taken from deep link")

	u.Path = u.Path[:m[0]] + u.Path[m[1]:]
	u.RawPath = ""
	return u.String(), true, nil
}

// decodeDeepLink unescapes a deep link and its action as sent by the backend.
func decodeDeepLink(link, action string) (DeepLink, error) {
	decoded, err := url.QueryUnescape(link)
	if err != nil {
		return DeepLink{}, fmt.Errorf("decode deep link: %w", err)
	}
	if action == "" {
		action = DefaultDeepLinkAction
	}
	decodedAction, err := url.QueryUnescape(action)
	if err != nil {
		return DeepLink{}, fmt.Errorf("decode deep link action: %w", err)
	}
	return DeepLink{URL: decoded, Action: strings.TrimSpace(decodedAction)}, nil
}
