package counter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CommReporter receives communication health transitions for a sensor
// unit. Both calls must be idempotent.
type CommReporter interface {
	SetCommunicationError(ctx context.Context, deviceID, unitID string) error
	ClearCommunicationError(ctx context.Context, deviceID, unitID string) error
}

// NopCommReporter discards all transitions.
type NopCommReporter struct{}

// SetCommunicationError does nothing.
func (NopCommReporter) SetCommunicationError(context.Context, string, string) error { return nil }

// ClearCommunicationError does nothing.
func (NopCommReporter) ClearCommunicationError(context.Context, string, string) error { return nil }

// Publisher is the MQTT surface the bridge publishes through.
// *mqtt.Client implements it.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// Alert severities.
const (
	SeverityWarning = "warning"
	SeverityCleared = "cleared"
)

// AlertPublisher raises and clears a retained MQTT alert per sensor unit.
// Repeating the current state publishes nothing; a failed publish is
// retried on the next call.
type AlertPublisher struct {
	publisher Publisher

	mu   sync.Mutex
	last map[string]bool
}

// NewAlertPublisher creates an alert publisher.
func NewAlertPublisher(publisher Publisher) *AlertPublisher {
	return &AlertPublisher{
		publisher: publisher,
		last:      make(map[string]bool),
	}
}

// SetCommunicationError raises the unit's communication alert.
func (a *AlertPublisher) SetCommunicationError(_ context.Context, deviceID, unitID string) error {
	return a.publish(deviceID, unitID, true)
}

// ClearCommunicationError clears the unit's communication alert.
func (a *AlertPublisher) ClearCommunicationError(_ context.Context, deviceID, unitID string) error {
	return a.publish(deviceID, unitID, false)
}

func (a *AlertPublisher) publish(deviceID, unitID string, active bool) error {
	id := AlertID(deviceID, unitID)

	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.last[id]; ok && prev == active {
		return nil
	}

	msg := AlertMessage{
		ID:        id,
		DeviceID:  deviceID,
		UnitID:    unitID,
		Active:    active,
		Severity:  SeverityCleared,
		Message:   fmt.Sprintf("people counter %s unit %s communicating", deviceID, unitID),
		Timestamp: time.Now().UTC(),
	}
	if active {
		msg.Severity = SeverityWarning
		msg.Message = fmt.Sprintf("people counter %s unit %s not responding", deviceID, unitID)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := a.publisher.Publish(AlertTopic(deviceID, unitID), payload, 1, true); err != nil {
		return fmt.Errorf("publishing alert %s: %w", id, err)
	}

	a.last[id] = active
	return nil
}
