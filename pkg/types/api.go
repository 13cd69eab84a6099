package types

// Wire keys shared by the tracking service and the mock backend.
const (
	KeyTrackingID     = "mobiletracking_id"
	KeyDeepLink       = "deep_link"
	KeyDeepLinkAction = "deeplink_action"
	KeyMeta           = "meta"
	KeyEventCategory  = "event_category"
	KeyAdvertiserID   = "advertiser_id"
	KeyCampaignID     = "campaign_id"
)

// RegisterResponse is the document returned by POST /register.
//
// TrackingID is either a string (the assigned tracking id) or the boolean
// false when tracking has been disabled for the install, so it is decoded
// as any.
type RegisterResponse struct {
	TrackingID any `json:"mobiletracking_id"`
	// Optional deferred deep link, URL-encoded.
	// example: myapp%3A%2F%2Fproduct%2F42
	DeepLink string `json:"deep_link,omitempty"`
	// Optional intent action to open the deep link with, URL-encoded.
	DeepLinkAction string `json:"deeplink_action,omitempty"`
}

// EventResponse is returned by POST /event.
type EventResponse struct {
	// Identifier assigned to the recorded conversion.
	ConversionID string `json:"conversion_id"`
}

// EventRecord is a recorded event as listed by the mock backend.
type EventRecord struct {
	ConversionID string         `json:"conversion_id"`
	ReceivedAt   int64          `json:"received_at_unix"`
	Payload      map[string]any `json:"payload"`
}

// EventsResponse wraps GET /events.
type EventsResponse struct {
	Events []EventRecord `json:"events"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code"`
}
