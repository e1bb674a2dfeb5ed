// Package mqtt manages the relay's session with the cloud MQTT broker.
//
// This package provides:
//   - Coordinator: mutual TLS connection lifecycle with blocking awaits
//   - Subscriber: subscribe/unsubscribe that wait for broker acknowledgement
//   - Topic filter validation and matching
//
// # Lifecycle
//
// The broker client reports progress through callbacks on its own
// goroutines. The Coordinator registers those callbacks before connecting
// and resolves a single-assignment pending result from each one, so the
// caller can drive the session as a straight sequence of blocking steps:
//
//	Idle ──Start──▶ Connecting ──success──▶ Connected ──Stop──▶ Stopping ──▶ Stopped
//	                    │                       │
//	                    └──failure──▶ Failed     └──lost──▶ Connecting (auto-reconnect)
//
// A reconnect fires the success callback again; the first result is kept.
//
// # Security Considerations
//
//   - Only ssl:// is used; the device presents its X.509 certificate
//   - The private key file should be readable by the relay user only
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	coord, err := mqtt.NewCoordinator(cfg.MQTT, onMessage, mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	if err := coord.Start(); err != nil {
//	    return err
//	}
//	if _, err := coord.AwaitConnected(ctx, 100*time.Second); err != nil {
//	    coord.Abort()
//	    return err
//	}
//
//	sub := coord.Subscriber()
//	_, err = sub.Subscribe(ctx, mqtt.Subscription{TopicFilter: "chimp/topic", QoS: mqtt.AtLeastOnce}, 100*time.Second)
package mqtt
