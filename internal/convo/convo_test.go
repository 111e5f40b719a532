package convo

import (
	"context"
	"testing"
)

func TestMemoryStoreAppendAndHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, turn := range []struct{ role, content string }{
		{"user", "start brewing"},
		{"assistant", "Sure, brewing now."},
		{"user", "status"},
	} {
		msg := &Message{UserID: "u1", DeviceID: "d1", Role: turn.role, Content: turn.content}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if msg.MessageID == 0 {
			t.Error("AppendMessage did not assign MessageID")
		}
		if msg.CreatedAt.IsZero() {
			t.Error("AppendMessage did not assign CreatedAt")
		}
	}

	// Unrelated device.
	if err := s.AppendMessage(ctx, &Message{UserID: "u1", DeviceID: "other", Role: "user", Content: "x"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, err := s.History(ctx, "u1", "d1", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2 (limit)", len(got))
	}
	// Newest first.
	if got[0].Content != "status" || got[1].Content != "Sure, brewing now." {
		t.Errorf("History order wrong: %q, %q", got[0].Content, got[1].Content)
	}
}

func TestMemoryStoreHistoryEmpty(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.History(context.Background(), "u1", "d1", 20)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

func TestMemoryStoreRegisterAndListDevices(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	d := &Device{UserID: "u1", DeviceType: "coffee_maker", DeviceName: "Kitchen", AIName: "Frank"}
	if err := s.RegisterDevice(ctx, d); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}
	if d.DeviceID == "" {
		t.Fatal("RegisterDevice did not assign DeviceID")
	}
	if !d.FirstBootComplete {
		t.Error("registered device must have first boot complete")
	}

	if err := s.RegisterDevice(ctx, &Device{UserID: "u2", DeviceName: "Other"}); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	devices, err := s.Devices(ctx, "u1")
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices for u1, want 1", len(devices))
	}
	if devices[0].AIName != "Frank" {
		t.Errorf("AIName = %q, want Frank", devices[0].AIName)
	}
}

func TestMemoryStoreCompleteOnboarding(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	d := &Device{UserID: "u1", DeviceName: "Kitchen"}
	if err := s.RegisterDevice(ctx, d); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	data := map[string]any{"wifi": "ok"}
	if err := s.CompleteOnboarding(ctx, d.DeviceID, "Frank", "kitchen counter", data); err != nil {
		t.Fatalf("CompleteOnboarding: %v", err)
	}

	devices, err := s.Devices(ctx, "u1")
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if devices[0].AIName != "Frank" {
		t.Errorf("AIName = %q, want Frank after onboarding", devices[0].AIName)
	}
	if devices[0].Location != "kitchen counter" {
		t.Errorf("Location = %q, want kitchen counter", devices[0].Location)
	}
	if devices[0].OnboardingData["wifi"] != "ok" {
		t.Errorf("OnboardingData = %v, want wifi ok", devices[0].OnboardingData)
	}
}

func TestMemoryStoreCompleteOnboardingUnknownDevice(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CompleteOnboarding(context.Background(), "nope", "Frank", "", nil); err != nil {
		t.Fatalf("CompleteOnboarding for unknown device: %v", err)
	}
}
