package convo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the conversations table. The devices table is
// owned by the profile package; RegisterDevice assumes it exists.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
    message_id   BIGSERIAL PRIMARY KEY,
    user_id      TEXT NOT NULL,
    device_id    TEXT NOT NULL,
    role         TEXT NOT NULL,
    content      TEXT NOT NULL,
    device_state TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_device
    ON conversations(user_id, device_id, created_at DESC);
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

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] over the given connection or
// pool.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("convo: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) error {
	const query = `
		INSERT INTO conversations (user_id, device_id, role, content, device_state)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING message_id, created_at`
	err := s.db.QueryRow(ctx, query,
		msg.UserID, msg.DeviceID, msg.Role, msg.Content, msg.DeviceState,
	).Scan(&msg.MessageID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("convo: append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, userID, deviceID string, limit int) ([]Message, error) {
	const query = `
		SELECT message_id, role, content, COALESCE(device_state, ''), created_at
		FROM conversations
		WHERE user_id = $1 AND device_id = $2
		ORDER BY created_at DESC
		LIMIT $3`
	rows, err := s.db.Query(ctx, query, userID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("convo: history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m := Message{UserID: userID, DeviceID: deviceID}
		if err := rows.Scan(&m.MessageID, &m.Role, &m.Content, &m.DeviceState, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("convo: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convo: history rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Devices(ctx context.Context, userID string) ([]Device, error) {
	const query = `
		SELECT device_id, device_type, device_name, COALESCE(ai_name, ''),
		       ble_address, led_count, serial_number, COALESCE(location, ''),
		       first_boot_complete, onboarding_data, created_at
		FROM devices
		WHERE user_id = $1
		ORDER BY created_at`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("convo: devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d := Device{UserID: userID}
		var onboarding []byte
		if err := rows.Scan(&d.DeviceID, &d.DeviceType, &d.DeviceName, &d.AIName,
			&d.BLEAddress, &d.LEDCount, &d.SerialNumber, &d.Location,
			&d.FirstBootComplete, &onboarding, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("convo: scan device: %w", err)
		}
		if len(onboarding) > 0 {
			if err := json.Unmarshal(onboarding, &d.OnboardingData); err != nil {
				return nil, fmt.Errorf("convo: unmarshal onboarding data: %w", err)
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convo: device rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RegisterDevice(ctx context.Context, d *Device) error {
	d.DeviceID = uuid.NewString()
	const query = `
		INSERT INTO devices
		(device_id, user_id, device_type, device_name, ai_name, ble_address,
		 led_count, serial_number, first_boot_complete)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING created_at`
	err := s.db.QueryRow(ctx, query,
		d.DeviceID, d.UserID, d.DeviceType, d.DeviceName, d.AIName,
		d.BLEAddress, d.LEDCount, d.SerialNumber,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("convo: register device: %w", err)
	}
	d.FirstBootComplete = true
	return nil
}

func (s *PostgresStore) CompleteOnboarding(ctx context.Context, deviceID, aiName, location string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("convo: marshal onboarding data: %w", err)
	}
	const query = `
		UPDATE devices
		SET ai_name = $1,
		    first_boot_complete = TRUE,
		    location = $2,
		    onboarding_data = $3
		WHERE device_id = $4`
	if _, err := s.db.Exec(ctx, query, aiName, location, payload, deviceID); err != nil {
		return fmt.Errorf("convo: complete onboarding for %q: %w", deviceID, err)
	}
	return nil
}
