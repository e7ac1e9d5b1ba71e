package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStatusRepository records the communication error flag per sensor
// unit in the device_status table. Repeating the current flag only touches
// updated_at, so Since marks the last transition.
type SQLiteStatusRepository struct {
	db *sql.DB
}

// NewSQLiteStatusRepository creates a status repository.
func NewSQLiteStatusRepository(db *sql.DB) *SQLiteStatusRepository {
	return &SQLiteStatusRepository{db: db}
}

// SetCommunicationError marks the unit as unreachable.
func (r *SQLiteStatusRepository) SetCommunicationError(ctx context.Context, deviceID, unitID string) error {
	return r.set(ctx, deviceID, unitID, true)
}

// ClearCommunicationError marks the unit as reachable. Idempotent.
func (r *SQLiteStatusRepository) ClearCommunicationError(ctx context.Context, deviceID, unitID string) error {
	return r.set(ctx, deviceID, unitID, false)
}

func (r *SQLiteStatusRepository) set(ctx context.Context, deviceID, unitID string, commError bool) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}

	now := formatTimestamp(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_status (device_id, unit_id, comm_error, since, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id, unit_id) DO UPDATE SET
			since = CASE WHEN device_status.comm_error = excluded.comm_error
				THEN device_status.since ELSE excluded.since END,
			comm_error = excluded.comm_error,
			updated_at = excluded.updated_at`,
		deviceID, unitID, boolToInt(commError), now, now,
	)
	if err != nil {
		return fmt.Errorf("updating device status for %s/%s: %w", deviceID, unitID, err)
	}
	return nil
}

// Get returns the status of one unit, or ErrStatusNotFound.
func (r *SQLiteStatusRepository) Get(ctx context.Context, deviceID, unitID string) (*CommStatus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT device_id, unit_id, comm_error, since, updated_at
		FROM device_status
		WHERE device_id = ? AND unit_id = ?`,
		deviceID, unitID,
	)

	var st CommStatus
	var since, updatedAt string
	err := row.Scan(&st.DeviceID, &st.UnitID, &st.CommError, &since, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device status: %w", err)
	}

	if st.Since, err = parseTimestamp(since); err != nil {
		return nil, err
	}
	if st.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}
