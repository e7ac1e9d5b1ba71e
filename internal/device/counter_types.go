package device

import (
	"fmt"
	"time"
)

// CounterState is the decoded counter and flag set reported by a people
// counter. It is embedded in readings, live records and history records.
type CounterState struct {
	// Entries is the cumulative entry count since the last reset.
	Entries uint32 `json:"entries"`

	// Exits is the cumulative exit count since the last reset.
	Exits uint32 `json:"exits"`

	// Current is the present occupancy as computed by the sensor.
	Current uint32 `json:"current"`

	Output1       bool `json:"output1"`
	Output2       bool `json:"output2"`
	CountEnabled  bool `json:"count_enabled"`
	Button        bool `json:"button"`
	SensorHealthy bool `json:"sensor_healthy"`
	LimitExceeded bool `json:"limit_exceeded"`
}

// LiveState is the single current record kept per counter device.
type LiveState struct {
	DeviceID string `json:"device_id"`
	CounterState
	CapturedAt time.Time `json:"captured_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HistoryRecord is one appended sample. Records are never updated.
type HistoryRecord struct {
	ID       int64  `json:"id"`
	DeviceID string `json:"device_id"`
	TenantID string `json:"tenant_id"`
	CounterState
	CapturedAt time.Time `json:"captured_at"`
}

// CommStatus is the communication health of one sensor unit.
type CommStatus struct {
	DeviceID  string    `json:"device_id"`
	UnitID    string    `json:"unit_id"`
	CommError bool      `json:"comm_error"`
	Since     time.Time `json:"since"`
	UpdatedAt time.Time `json:"updated_at"`
}

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp parses a timestamp stored in SQLite. Rows written by
// column defaults use second precision RFC3339.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}

	if ts, err := time.Parse(timestampLayout, value); err == nil {
		return ts, nil
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}
	return ts.UTC(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
