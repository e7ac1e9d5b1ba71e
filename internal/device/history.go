package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryRepository appends and reads counter samples.
//
// Implementations must be thread-safe and use UTC timestamps. Append never
// updates or de-duplicates existing rows.
type HistoryRepository interface {
	// Append stores one sample.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - rec: Sample to persist; ID is ignored
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	Append(ctx context.Context, rec HistoryRecord) error

	// GetHistory returns recent samples for the device, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryRecord, error)

	// PruneHistory deletes samples captured more than olderThan ago.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on the
// counter_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Append inserts a new history row.
func (r *SQLiteHistoryRepository) Append(ctx context.Context, rec HistoryRecord) error {
	if rec.DeviceID == "" {
		return ErrDeviceIDRequired
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO counter_history (
			device_id, tenant_id, entries, exits, current,
			output1, output2, count_enabled, button, sensor_healthy, limit_exceeded,
			captured_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DeviceID, rec.TenantID,
		rec.Entries, rec.Exits, rec.Current,
		boolToInt(rec.Output1), boolToInt(rec.Output2),
		boolToInt(rec.CountEnabled), boolToInt(rec.Button),
		boolToInt(rec.SensorHealthy), boolToInt(rec.LimitExceeded),
		formatTimestamp(rec.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting counter history: %w", err)
	}
	return nil
}

// GetHistory returns recent history entries for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Counter device key
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HistoryRecord: Records ordered by captured_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryRecord, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, tenant_id, entries, exits, current,
			output1, output2, count_enabled, button, sensor_healthy, limit_exceeded,
			captured_at
		FROM counter_history
		WHERE device_id = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying counter history: %w", err)
	}
	defer rows.Close()

	records := make([]HistoryRecord, 0, limit)
	for rows.Next() {
		var rec HistoryRecord
		var capturedAt string
		if err := rows.Scan(
			&rec.ID, &rec.DeviceID, &rec.TenantID, &rec.Entries, &rec.Exits, &rec.Current,
			&rec.Output1, &rec.Output2, &rec.CountEnabled, &rec.Button, &rec.SensorHealthy, &rec.LimitExceeded,
			&capturedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning counter history: %w", err)
		}

		if rec.CapturedAt, err = parseTimestamp(capturedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counter history: %w", err)
	}

	return records, nil
}

// PruneHistory deletes history entries older than the given duration.
// Scheduling is left to an external retention job.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := formatTimestamp(time.Now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM counter_history WHERE captured_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting counter history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
