package influxdb

import (
	"maps"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeliveries = "relay_deliveries"
	MeasurementRuns       = "relay_runs"
)

// WriteDelivery records one received message.
//
// Parameters:
//   - topic: Topic the message arrived on (tag)
//   - seq: Position of the message in the run
//   - payloadBytes: Payload size
//   - qos: Delivery QoS
//   - receivedAt: Point timestamp
func (c *Client) WriteDelivery(topic string, seq int64, payloadBytes int, qos int, receivedAt time.Time) {
	if !c.IsOpen() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDeliveries,
		c.pointTags(map[string]string{"topic": topic}),
		map[string]interface{}{
			"seq":           seq,
			"payload_bytes": payloadBytes,
			"qos":           qos,
		},
		receivedAt,
	))
}

// RunResult summarises a finished run.
type RunResult struct {
	RunID     string
	Topic     string
	Messages  int64
	Completed bool
	Duration  time.Duration
	Err       error
}

// WriteRun records the outcome of a run.
func (c *Client) WriteRun(r RunResult) {
	if !c.IsOpen() {
		return
	}

	outcome := "completed"
	switch {
	case r.Err != nil:
		outcome = "failed"
	case !r.Completed:
		outcome = "incomplete"
	}

	fields := map[string]interface{}{
		"run_id":      r.RunID,
		"messages":    r.Messages,
		"duration_ms": r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		fields["error"] = r.Err.Error()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementRuns,
		c.pointTags(map[string]string{"topic": r.Topic, "outcome": outcome}),
		fields,
		time.Now(),
	))
}

// pointTags merges the client-wide tags with per-point tags.
func (c *Client) pointTags(extra map[string]string) map[string]string {
	tags := make(map[string]string, len(c.tags)+len(extra))
	maps.Copy(tags, c.tags)
	maps.Copy(tags, extra)
	return tags
}
