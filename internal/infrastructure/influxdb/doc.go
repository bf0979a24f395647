// Package influxdb records lexhost query and provisioning metrics in
// InfluxDB v2.
//
// Two measurements are written:
//
//	bridge_query   tags: app, db, status   fields: rows, duration_ms, error
//	provisioning   tags: app, status       fields: version_code, copied, duration_ms, error
//
// The error field is only present on failures. Writes are non-blocking and
// batched according to batch_size and flush_interval.
package influxdb
