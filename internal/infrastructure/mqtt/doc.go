// Package mqtt publishes rigbridge events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Event publishing with QoS guarantees
//   - Retained status topics (link state, service state)
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is an optional outbound surface: rigbridge announces capture-sequence
// lifecycle events and device-link state so dashboards and home automations
// can react without holding a WebSocket open. rigbridge never subscribes;
// commands arrive only over the frontend WebSocket.
//
//	Frontend ↔ rigbridge → MQTT Broker → dashboards / automations
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.SequenceEvent()
//	client.PublishEvent(topic, []byte(`{"status":"completed","set":"scan-042"}`))
package mqtt
