// Package store persists the identifiers the tracking service needs across
// process restarts.
package store

import (
	"context"
	"errors"
	"strconv"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Preferences is the persisted tracking state of one install.
type Preferences struct {
	// Tracking id assigned by the backend (or taken from a deep link).
	TrackingID string
	// False once the backend has disabled tracking for this install.
	TrackingActive bool
	// True once registration or a tracking deep link has completed setup.
	SetupComplete bool
	// Install referrer captured before setup completed.
	Referrer string
}

// DefaultPreferences returns the state of a fresh install.
func DefaultPreferences() Preferences {
	return Preferences{TrackingActive: true}
}

// Store loads and saves Preferences.
type Store interface {
	// Load returns the stored preferences, or DefaultPreferences when nothing
	// has been saved.
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
	// Clear removes everything stored, resetting to defaults.
	Clear(ctx context.Context) error
	Close() error
}

// Field keys shared by the key/value backends.
const (
	keyTrackingID    = "id"
	keyActive        = "active"
	keySetupComplete = "setup_complete"
	keyReferrer      = "referrer"
)

// encode flattens p into string fields.
func encode(p Preferences) map[string]string {
	return map[string]string{
		keyTrackingID:    p.TrackingID,
		keyActive:        strconv.FormatBool(p.TrackingActive),
		keySetupComplete: strconv.FormatBool(p.SetupComplete),
		keyReferrer:      p.Referrer,
	}
}

// decode reverses encode. Missing or unparseable fields keep their defaults.
func decode(fields map[string]string) Preferences {
	p := DefaultPreferences()
	p.TrackingID = fields[keyTrackingID]
	p.Referrer = fields[keyReferrer]
	if v, ok := fields[keyActive]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.TrackingActive = b
		}
	}
	if v, ok := fields[keySetupComplete]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.SetupComplete = b
		}
	}
	return p
}
