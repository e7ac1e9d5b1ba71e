package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LiveStateRepository keeps exactly one current record per counter device.
//
// Implementations must be thread-safe and use UTC timestamps.
type LiveStateRepository interface {
	// Upsert creates or replaces the live record for deviceID.
	Upsert(ctx context.Context, deviceID string, state CounterState, capturedAt time.Time) error

	// Get returns the live record, or ErrLiveStateNotFound.
	Get(ctx context.Context, deviceID string) (*LiveState, error)
}

// SQLiteLiveStateRepository implements LiveStateRepository using the
// counter_live_state table.
type SQLiteLiveStateRepository struct {
	db *sql.DB
}

// NewSQLiteLiveStateRepository creates a live-state repository.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteLiveStateRepository: Repository instance ready for use
func NewSQLiteLiveStateRepository(db *sql.DB) *SQLiteLiveStateRepository {
	return &SQLiteLiveStateRepository{db: db}
}

// Upsert creates or replaces the live record for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Counter device key
//   - state: Decoded counter values
//   - capturedAt: When the reading was taken
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteLiveStateRepository) Upsert(ctx context.Context, deviceID string, state CounterState, capturedAt time.Time) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO counter_live_state (
			device_id, entries, exits, current,
			output1, output2, count_enabled, button, sensor_healthy, limit_exceeded,
			captured_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			entries = excluded.entries,
			exits = excluded.exits,
			current = excluded.current,
			output1 = excluded.output1,
			output2 = excluded.output2,
			count_enabled = excluded.count_enabled,
			button = excluded.button,
			sensor_healthy = excluded.sensor_healthy,
			limit_exceeded = excluded.limit_exceeded,
			captured_at = excluded.captured_at,
			updated_at = excluded.updated_at`,
		deviceID,
		state.Entries, state.Exits, state.Current,
		boolToInt(state.Output1), boolToInt(state.Output2),
		boolToInt(state.CountEnabled), boolToInt(state.Button),
		boolToInt(state.SensorHealthy), boolToInt(state.LimitExceeded),
		formatTimestamp(capturedAt),
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upserting live state for %s: %w", deviceID, err)
	}
	return nil
}

// Get returns the live record for a device.
func (r *SQLiteLiveStateRepository) Get(ctx context.Context, deviceID string) (*LiveState, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT device_id, entries, exits, current,
			output1, output2, count_enabled, button, sensor_healthy, limit_exceeded,
			captured_at, updated_at
		FROM counter_live_state
		WHERE device_id = ?`,
		deviceID,
	)

	var ls LiveState
	var capturedAt, updatedAt string
	err := row.Scan(
		&ls.DeviceID, &ls.Entries, &ls.Exits, &ls.Current,
		&ls.Output1, &ls.Output2, &ls.CountEnabled, &ls.Button, &ls.SensorHealthy, &ls.LimitExceeded,
		&capturedAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLiveStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying live state: %w", err)
	}

	if ls.CapturedAt, err = parseTimestamp(capturedAt); err != nil {
		return nil, err
	}
	if ls.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &ls, nil
}
