// Package convo persists conversation history and device registration
// records. The session records exchanges best-effort; the HTTP layer exposes
// CRUD over the same store.
package convo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one conversation turn.
type Message struct {
	MessageID   int64     `json:"message_id"`
	UserID      string    `json:"user_id"`
	DeviceID    string    `json:"device_id"`
	Role        string    `json:"role"` // "user" or "assistant"
	Content     string    `json:"content"`
	DeviceState string    `json:"device_state,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Device is a registered appliance.
type Device struct {
	DeviceID          string         `json:"device_id"`
	UserID            string         `json:"user_id"`
	DeviceType        string         `json:"device_type"`
	DeviceName        string         `json:"device_name"`
	AIName            string         `json:"ai_name"`
	BLEAddress        string         `json:"ble_address"`
	LEDCount          int            `json:"led_count"`
	SerialNumber      string         `json:"serial_number"`
	Location          string         `json:"location,omitempty"`
	FirstBootComplete bool           `json:"first_boot_complete"`
	OnboardingData    map[string]any `json:"onboarding_data,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Store persists conversations and devices.
type Store interface {
	// AppendMessage stores one turn and fills MessageID and CreatedAt.
	AppendMessage(ctx context.Context, msg *Message) error

	// History returns the most recent turns for a user/device pair, newest
	// first, capped at limit.
	History(ctx context.Context, userID, deviceID string, limit int) ([]Message, error)

	// Devices lists all devices registered to a user.
	Devices(ctx context.Context, userID string) ([]Device, error)

	// RegisterDevice stores a new device, assigning DeviceID and CreatedAt.
	RegisterDevice(ctx context.Context, d *Device) error

	// CompleteOnboarding records the assistant name, location, and onboarding
	// payload chosen during first boot.
	CompleteOnboarding(ctx context.Context, deviceID, aiName, location string, data map[string]any) error
}

// MemoryStore is an in-memory Store. It backs tests and database-less runs.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []Message
	devices  map[string]*Device
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]*Device)}
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.MessageID = s.nextID
	msg.CreatedAt = time.Now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *MemoryStore) History(_ context.Context, userID, deviceID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.UserID == userID && m.DeviceID == deviceID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID > out[j].MessageID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Devices(_ context.Context, userID string) ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Device
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (s *MemoryStore) RegisterDevice(_ context.Context, d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.DeviceID = uuid.NewString()
	d.CreatedAt = time.Now()
	d.FirstBootComplete = true
	cp := *d
	s.devices[d.DeviceID] = &cp
	return nil
}

func (s *MemoryStore) CompleteOnboarding(_ context.Context, deviceID, aiName, location string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	d.AIName = aiName
	d.Location = location
	d.OnboardingData = data
	d.FirstBootComplete = true
	return nil
}
