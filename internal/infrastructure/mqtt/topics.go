package mqtt

import "fmt"

// Topic prefixes for the Gray Logic MQTT hierarchy.
//
// Bridge topics use the flat scheme: graylogic/{category}/{protocol}/{address}
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixCore is the base for core topics (alerts).
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for Gray Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("counter", "people-counter-01")
//	// Returns: "graylogic/state/counter/people-counter-01"
type Topics struct{}

// BridgeState returns the topic for device state updates from a bridge.
//
// Example: graylogic/state/counter/people-counter-01
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: graylogic/command/counter/people-counter-01
func (Topics) BridgeCommand(protocol, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: graylogic/ack/counter/people-counter-01
func (Topics) BridgeAck(protocol, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/counter
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// CoreAlert returns the topic for a system alert.
//
// Example: graylogic/core/alert/people-counter-01-1-comm
func (Topics) CoreAlert(alertID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, alertID)
}

// SystemStatus returns the topic for client online/offline status.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllBridgeCommands returns a wildcard matching every command for one bridge.
//
// Example: graylogic/command/counter/#
func (Topics) AllBridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/#", TopicPrefixBridge, protocol)
}

// AllBridgeHealth returns a wildcard matching every bridge health topic.
//
// Example: graylogic/health/+
func (Topics) AllBridgeHealth() string {
	return TopicPrefixBridge + "/health/+"
}

// AllCoreAlerts returns a wildcard matching every alert.
//
// Example: graylogic/core/alert/+
func (Topics) AllCoreAlerts() string {
	return TopicPrefixCore + "/alert/+"
}
