// Package influxdb writes relay telemetry to InfluxDB v2.
//
// Two measurements are written:
//   - relay_deliveries: one point per received message (seq, payload size, QoS)
//   - relay_runs: one point per run (message count, duration, outcome)
//
// Writes go through the client library's non-blocking write API, so they
// are safe to issue from the broker's delivery callback. Points are
// batched and flushed on Close.
//
// Usage:
//
//	tel, err := influxdb.Connect(ctx, cfg.InfluxDB, map[string]string{"client_id": cfg.MQTT.ClientID})
//	if err != nil {
//	    return err
//	}
//	defer tel.Close()
//
//	tel.WriteDelivery("chimp/topic", 1, 5, 1, time.Now())
package influxdb
