package counter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-counter/internal/device"
)

// StatePublisher publishes each stored sample as a retained MQTT state
// message so late subscribers see the latest counts.
type StatePublisher struct {
	publisher Publisher
}

// NewStatePublisher creates a state publisher.
func NewStatePublisher(publisher Publisher) *StatePublisher {
	return &StatePublisher{publisher: publisher}
}

// RecordSample publishes rec to the device's state topic (QoS 1, retained).
func (s *StatePublisher) RecordSample(_ context.Context, rec device.HistoryRecord) error {
	msg := StateMessage{
		DeviceID:  rec.DeviceID,
		TenantID:  rec.TenantID,
		Timestamp: rec.CapturedAt.UTC(),
		Protocol:  Protocol,
		State: Reading{
			CounterState: rec.CounterState,
			CapturedAt:   rec.CapturedAt.UTC(),
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.publisher.Publish(StateTopic(rec.DeviceID), payload, 1, true); err != nil {
		return fmt.Errorf("publishing state: %w", err)
	}
	return nil
}
