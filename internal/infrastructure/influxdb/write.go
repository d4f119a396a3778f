package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteLinkStats records device-link counters as a single point.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Called periodically by the telemetry loop in cmd/rigbridge.
//
// Parameters:
//   - state: Current link state ("connected", "disconnected", "connecting")
//   - requestsSent: Total requests written to the device link
//   - responsesReceived: Total correlated responses received
//   - framesReceived: Total stream frames received
//   - reconnects: Total reconnect attempts
//   - errors: Total link errors
func (c *Client) WriteLinkStats(state string, requestsSent, responsesReceived, framesReceived, reconnects, errors uint64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"link_stats",
		map[string]string{
			"state": state,
		},
		map[string]interface{}{
			"requests_sent":      int64(requestsSent),
			"responses_received": int64(responsesReceived),
			"frames_received":    int64(framesReceived),
			"reconnects":         int64(reconnects),
			"errors":             int64(errors),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSequenceRun records the outcome of a capture-set sequence.
//
// Parameters:
//   - setName: The capture-set name
//   - status: Final status ("completed", "failed")
//   - durationSeconds: Wall-clock duration of the run
//   - artifactCount: Number of artifacts persisted
func (c *Client) WriteSequenceRun(setName, status string, durationSeconds float64, artifactCount int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sequence_runs",
		map[string]string{
			"status": status,
		},
		map[string]interface{}{
			"set_name":         setName,
			"duration_seconds": durationSeconds,
			"artifact_count":   artifactCount,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCapture records a single capture duration and size.
//
// Parameters:
//   - light: The light active during the capture
//   - durationSeconds: Time from capture request to persisted artifact
//   - sizeBytes: Size of the persisted artifact
func (c *Client) WriteCapture(light string, durationSeconds float64, sizeBytes int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"captures",
		map[string]string{
			"light": light,
		},
		map[string]interface{}{
			"duration_seconds": durationSeconds,
			"size_bytes":       sizeBytes,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
