package counter

import (
	"time"

	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/mqtt"
)

// Protocol is the bridge protocol identifier used in MQTT topics.
const Protocol = "counter"

// Commands accepted on the command topic.
const (
	CommandReset = "reset"
	CommandRead  = "read"
)

// CommandMessage is sent to the bridge to act on a counter.
// Topic: graylogic/command/counter/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	DeviceID string `json:"device_id"`

	// Command is "reset" or "read".
	Command string `json:"command"`

	// Parameters for reset: {"scope": "all" | "current" | "entries" | "exits"}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command reached the device.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the device did not answer in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/counter/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// State is the reading returned by a "read" command.
	State *Reading `json:"state,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is published when the entry count changes.
// Topic: graylogic/state/counter/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
	State     Reading   `json:"state"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

// Health statuses. HealthOffline is only ever sent by the broker, as the LWT.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/counter
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Codec holds serial transport counters.
	Codec *CodecStats `json:"codec,omitempty"`

	// Queue holds access queue diagnostics.
	Queue *QueueDiagnostics `json:"queue,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// AlertMessage is the retained communication alert for one sensor unit.
// Topic: graylogic/core/alert/{device_id}-{unit_id}-comm
// QoS: 1, Retained: Yes
type AlertMessage struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	UnitID    string    `json:"unit_id"`
	Active    bool      `json:"active"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAckMessage creates an acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
	}
}

// NewAckError creates an acknowledgement with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, status)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewLWTMessage creates the Last Will and Testament payload.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

var topics = mqtt.Topics{}

// CommandTopic returns the command topic for a device.
// Example: graylogic/command/counter/people-counter-01
func CommandTopic(deviceID string) string {
	return topics.BridgeCommand(Protocol, deviceID)
}

// CommandSubscribeTopic returns the pattern matching all counter commands.
// Example: graylogic/command/counter/#
func CommandSubscribeTopic() string {
	return topics.AllBridgeCommands(Protocol)
}

// AckTopic returns the acknowledgement topic for a device.
func AckTopic(deviceID string) string {
	return topics.BridgeAck(Protocol, deviceID)
}

// StateTopic returns the retained state topic for a device.
func StateTopic(deviceID string) string {
	return topics.BridgeState(Protocol, deviceID)
}

// HealthTopic returns the bridge health topic.
// Example: graylogic/health/counter
func HealthTopic() string {
	return topics.BridgeHealth(Protocol)
}

// AlertID returns the alert identifier for a unit's communication alert.
func AlertID(deviceID, unitID string) string {
	return deviceID + "-" + unitID + "-comm"
}

// AlertTopic returns the retained alert topic for a unit.
// Example: graylogic/core/alert/people-counter-01-1-comm
func AlertTopic(deviceID, unitID string) string {
	return topics.CoreAlert(AlertID(deviceID, unitID))
}
