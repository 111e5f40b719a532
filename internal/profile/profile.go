// Package profile resolves a device identifier to the personality the session
// speaks with: assistant name, trait parameters, narrative context, and the
// synthesis voice. A device without a stored personality gets a documented
// default profile rather than an error, so a fresh device can always talk.
package profile

import (
	"context"
	"log/slog"

	"github.com/soven-tech/soven-server/internal/voice"
	"github.com/soven-tech/soven-server/pkg/provider/tts"
)

// DefaultAssistantName is used when a device has no stored personality.
const DefaultAssistantName = "Assistant"

// Profile is the per-device personality.
type Profile struct {
	// DeviceID identifies the device this profile belongs to.
	DeviceID string

	// UserID is the owning user, used to key conversation history. Empty
	// when the device is not registered.
	UserID string

	// AssistantName is the wake word and persona name.
	AssistantName string

	// Traits maps trait names to 0.0-1.0 scores. Nil when the device has no
	// stored personality.
	Traits map[string]float64

	// NarrativeContext is free-text background injected into the generation
	// prompt. Empty when absent.
	NarrativeContext string

	// Voice is the resolved synthesis voice.
	Voice tts.Voice
}

// DefaultProfile is substituted when no record exists for a device.
func DefaultProfile(deviceID string) *Profile {
	return &Profile{
		DeviceID:      deviceID,
		AssistantName: DefaultAssistantName,
		Voice:         voice.DefaultVoice(),
	}
}

// Store loads stored device personalities. LoadProfile returns (nil, nil)
// when no record exists for the device.
type Store interface {
	LoadProfile(ctx context.Context, deviceID string) (*Profile, error)
}

// Loader wraps a Store and guarantees a usable profile: missing records and
// store errors both resolve to the default profile. Safe to call repeatedly
// whenever a session's identity changes.
type Loader struct {
	store Store
}

// NewLoader builds a Loader. store may be nil, in which case every device
// resolves to the default profile (useful when running without a database).
func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load resolves the profile for deviceID. It never fails: a store error is
// logged and the default profile returned.
func (l *Loader) Load(ctx context.Context, deviceID string) *Profile {
	if l.store == nil {
		return DefaultProfile(deviceID)
	}
	p, err := l.store.LoadProfile(ctx, deviceID)
	if err != nil {
		slog.Warn("profile load failed, using default", "device_id", deviceID, "err", err)
		return DefaultProfile(deviceID)
	}
	if p == nil {
		slog.Info("no profile found for device, using default", "device_id", deviceID)
		return DefaultProfile(deviceID)
	}
	return p
}
