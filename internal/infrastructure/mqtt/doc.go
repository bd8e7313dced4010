// Package mqtt provides MQTT client connectivity for Casement Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Casement uses MQTT as an optional outward-facing bus: notification
// events are published to casement/notify, the current window state is
// mirrored to casement/state/current as a retained message, and external
// commands are accepted on casement/command. The relay itself runs over
// WebSocket and does not depend on the broker being reachable.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Accept externally injected window commands
//	err = client.Subscribe(mqtt.Topics{}.Command(), 1,
//	    func(topic string, payload []byte) error {
//	        engine.InjectCommand(string(payload))
//	        return nil
//	    })
//
//	// Mirror the current state for late subscribers
//	client.PublishRetained(mqtt.Topics{}.StateCurrent(), snapshotJSON)
package mqtt
