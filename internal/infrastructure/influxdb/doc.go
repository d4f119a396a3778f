// Package influxdb writes rigbridge telemetry to InfluxDB v2.
//
// This package manages:
//   - Connection with token authentication and ping verification
//   - Non-blocking batched writes
//   - Async write-error reporting via callback
//
// # Measurements
//
//   - link_stats: device-link counters, written on an interval
//   - sequence_runs: one point per finished capture-set run
//   - captures: per-capture duration and artifact size
//
// Telemetry is optional; when influxdb.enabled is false the rest of the
// application runs without a client.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSequenceRun("scan-042", "completed", 18.2, 6)
package influxdb
