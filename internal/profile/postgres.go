package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/soven-tech/soven-server/internal/voice"
)

// Schema is the SQL DDL for the personality tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS devices (
    device_id           TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL,
    device_type         TEXT NOT NULL DEFAULT '',
    device_name         TEXT NOT NULL DEFAULT '',
    ai_name             TEXT,
    voice_id            TEXT,
    ble_address         TEXT NOT NULL DEFAULT '',
    led_count           INTEGER NOT NULL DEFAULT 0,
    serial_number       TEXT NOT NULL DEFAULT '',
    location            TEXT,
    first_boot_complete BOOLEAN NOT NULL DEFAULT FALSE,
    onboarding_data     JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(user_id);

CREATE TABLE IF NOT EXISTS entity_dna (
    device_id  TEXT PRIMARY KEY REFERENCES devices(device_id) ON DELETE CASCADE,
    traits     JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity_origins (
    device_id         TEXT PRIMARY KEY REFERENCES devices(device_id) ON DELETE CASCADE,
    origin_story      TEXT NOT NULL DEFAULT '',
    narrative_context TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("profile: migrate: %w", err)
	}
	return nil
}

// LoadProfile joins the device row with its trait and origin records and
// returns the assembled profile. It returns (nil, nil) if the device is not
// registered.
func (s *PostgresStore) LoadProfile(ctx context.Context, deviceID string) (*Profile, error) {
	const query = `
		SELECT d.user_id, d.ai_name, d.voice_id, dna.traits, eo.narrative_context
		FROM devices d
		LEFT JOIN entity_dna dna ON d.device_id = dna.device_id
		LEFT JOIN entity_origins eo ON d.device_id = eo.device_id
		WHERE d.device_id = $1`

	var (
		userID     string
		aiName     *string
		voiceID    *string
		traitsJSON []byte
		narrative  *string
	)
	err := s.db.QueryRow(ctx, query, deviceID).Scan(&userID, &aiName, &voiceID, &traitsJSON, &narrative)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("profile: load %q: %w", deviceID, err)
	}

	p := &Profile{
		DeviceID:      deviceID,
		UserID:        userID,
		AssistantName: DefaultAssistantName,
		Voice:         voice.DefaultVoice(),
	}
	if aiName != nil && *aiName != "" {
		p.AssistantName = *aiName
	}
	if narrative != nil {
		p.NarrativeContext = *narrative
	}
	if len(traitsJSON) > 0 {
		var traits map[string]float64
		if err := json.Unmarshal(traitsJSON, &traits); err != nil {
			return nil, fmt.Errorf("profile: unmarshal traits for %q: %w", deviceID, err)
		}
		p.Traits = traits
	}
	if voiceID != nil {
		if v, ok := voice.ByID(*voiceID); ok {
			p.Voice = v
		}
	}
	return p, nil
}

// SaveTraits upserts the trait vector for a device.
func (s *PostgresStore) SaveTraits(ctx context.Context, deviceID string, traits map[string]float64) error {
	data, err := json.Marshal(traits)
	if err != nil {
		return fmt.Errorf("profile: marshal traits: %w", err)
	}
	const query = `
		INSERT INTO entity_dna (device_id, traits, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (device_id) DO UPDATE SET traits = $2, updated_at = now()`
	if _, err := s.db.Exec(ctx, query, deviceID, data); err != nil {
		return fmt.Errorf("profile: save traits for %q: %w", deviceID, err)
	}
	return nil
}

// SaveOrigin upserts the origin story and narrative context for a device.
func (s *PostgresStore) SaveOrigin(ctx context.Context, deviceID, originStory, narrativeContext string) error {
	const query = `
		INSERT INTO entity_origins (device_id, origin_story, narrative_context)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO UPDATE SET origin_story = $2, narrative_context = $3`
	if _, err := s.db.Exec(ctx, query, deviceID, originStory, narrativeContext); err != nil {
		return fmt.Errorf("profile: save origin for %q: %w", deviceID, err)
	}
	return nil
}
