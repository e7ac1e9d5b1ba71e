package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-counter/internal/device"
)

// counterMeasurement is the measurement holding people-counter samples.
const counterMeasurement = "people_counter"

// WriteCounterSample writes one people-counter sample.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Failures surface through the SetOnError callback. Samples are dropped
// while the client is closed.
//
// Tags: device_id, tenant_id. Fields: entries, exits, current and the
// status flags.
func (c *Client) WriteCounterSample(rec device.HistoryRecord) {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}
	c.writeAPI.WritePoint(counterPoint(rec))
	c.written.Add(1)
}

// RecordSample implements the poller's sample sink.
//
// Returns:
//   - error: ErrNotConnected after Close, otherwise nil (write errors are async)
func (c *Client) RecordSample(_ context.Context, rec device.HistoryRecord) error {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return ErrNotConnected
	}
	c.WriteCounterSample(rec)
	return nil
}

func counterPoint(rec device.HistoryRecord) *write.Point {
	ts := rec.CapturedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{"device_id": rec.DeviceID}
	if rec.TenantID != "" {
		tags["tenant_id"] = rec.TenantID
	}

	return write.NewPoint(
		counterMeasurement,
		tags,
		map[string]interface{}{
			"entries":        int64(rec.Entries),
			"exits":          int64(rec.Exits),
			"current":        int64(rec.Current),
			"output1":        rec.Output1,
			"output2":        rec.Output2,
			"count_enabled":  rec.CountEnabled,
			"button":         rec.Button,
			"sensor_healthy": rec.SensorHealthy,
			"limit_exceeded": rec.LimitExceeded,
		},
		ts,
	)
}
