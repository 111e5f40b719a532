package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/soven-tech/soven-server/internal/voice"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface with canned responses.
type mockDB struct {
	row      *mockRow
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.lastSQL = sql
	m.lastArgs = args
	return m.row
}

func (m *mockDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.lastSQL = sql
	m.lastArgs = args
	return pgconn.CommandTag{}, m.execErr
}

func strPtr(s string) *string { return &s }

func TestLoadProfileFullRecord(t *testing.T) {
	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		*dest[0].(*string) = "user-7"
		*dest[1].(**string) = strPtr("Frank")
		*dest[2].(**string) = strPtr("p336")
		*dest[3].(*[]byte) = []byte(`{"resilience": 0.9, "anxiety_threshold": 0.2}`)
		*dest[4].(**string) = strPtr("Grew up in a bakery.")
		return nil
	}}}

	p, err := NewPostgresStore(db).LoadProfile(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.AssistantName != "Frank" {
		t.Errorf("AssistantName = %q, want Frank", p.AssistantName)
	}
	if p.UserID != "user-7" {
		t.Errorf("UserID = %q, want user-7", p.UserID)
	}
	if p.Traits["resilience"] != 0.9 {
		t.Errorf("resilience = %v, want 0.9", p.Traits["resilience"])
	}
	if p.NarrativeContext != "Grew up in a bakery." {
		t.Errorf("NarrativeContext = %q", p.NarrativeContext)
	}
	if p.Voice.Speaker != "p336" {
		t.Errorf("Voice.Speaker = %q, want p336", p.Voice.Speaker)
	}
	if len(db.lastArgs) != 1 || db.lastArgs[0] != "dev-1" {
		t.Errorf("query args = %v, want [dev-1]", db.lastArgs)
	}
}

func TestLoadProfileNoRecord(t *testing.T) {
	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		return pgx.ErrNoRows
	}}}

	p, err := NewPostgresStore(db).LoadProfile(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p != nil {
		t.Errorf("profile = %+v, want nil for missing device", p)
	}
}

func TestLoadProfileNullColumns(t *testing.T) {
	// Device row exists but has no personality, traits, or origin yet.
	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		return nil // all destinations stay nil
	}}}

	p, err := NewPostgresStore(db).LoadProfile(context.Background(), "dev-2")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.AssistantName != DefaultAssistantName {
		t.Errorf("AssistantName = %q, want %q", p.AssistantName, DefaultAssistantName)
	}
	if p.Traits != nil {
		t.Errorf("Traits = %v, want nil", p.Traits)
	}
	if p.Voice.Speaker != voice.DefaultSpeaker {
		t.Errorf("Voice.Speaker = %q, want default %q", p.Voice.Speaker, voice.DefaultSpeaker)
	}
}

func TestLoadProfileUnknownVoiceFallsBack(t *testing.T) {
	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		*dest[1].(**string) = strPtr("Frank")
		*dest[2].(**string) = strPtr("p999")
		return nil
	}}}

	p, err := NewPostgresStore(db).LoadProfile(context.Background(), "dev-3")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.Voice.Speaker != voice.DefaultSpeaker {
		t.Errorf("Voice.Speaker = %q, want default for unknown voice id", p.Voice.Speaker)
	}
}

func TestLoadProfileBadTraitsJSON(t *testing.T) {
	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		*dest[3].(*[]byte) = []byte(`{not json`)
		return nil
	}}}

	if _, err := NewPostgresStore(db).LoadProfile(context.Background(), "dev-4"); err == nil {
		t.Fatal("expected error for malformed traits JSON")
	}
}

func TestLoadProfileQueryError(t *testing.T) {
	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		return errors.New("connection reset")
	}}}

	if _, err := NewPostgresStore(db).LoadProfile(context.Background(), "dev-5"); err == nil {
		t.Fatal("expected error for failed query")
	}
}
