// Package mqtt provides MQTT client connectivity for the people-counter bridge.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The counter bridge publishes state, acknowledgements, health and
// communication alerts on the Gray Logic bus and listens for commands:
//
//	People Counter ↔ Serial Codec ↔ Counter Bridge ↔ MQTT Broker ↔ Core / UI
//
// By default the LWT is an offline message on graylogic/system/status.
// Bridges that report their own health replace it with WithWill so the
// broker announces them offline on their health topic instead.
//
// # Security Considerations
//
//   - TLS should be enabled for production deployments (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithWill(mqtt.Topics{}.BridgeHealth("counter"), lwtPayload))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllBridgeCommands("counter"), 1, handler)
package mqtt
