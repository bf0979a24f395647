package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementQuery        = "bridge_query"
	measurementProvisioning = "provisioning"
)

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// queryPoint describes one bridge query. A failed query also carries the
// error text.
func queryPoint(db string, rows int, d time.Duration, err error, at time.Time) *write.Point {
	p := write.NewPointWithMeasurement(measurementQuery).
		AddTag("db", db).
		AddTag("status", status(err == nil)).
		AddField("rows", rows).
		AddField("duration_ms", millis(d)).
		SetTime(at)
	if err != nil {
		p.AddField("error", err.Error())
	}
	return p
}

// provisioningPoint describes one finished provisioning attempt. An empty
// failure means the attempt succeeded.
func provisioningPoint(versionCode, copied int, d time.Duration, failure string, at time.Time) *write.Point {
	p := write.NewPointWithMeasurement(measurementProvisioning).
		AddTag("status", status(failure == "")).
		AddField("version_code", versionCode).
		AddField("copied", copied).
		AddField("duration_ms", millis(d)).
		SetTime(at)
	if failure != "" {
		p.AddField("error", failure)
	}
	return p
}

// RecordQuery records one bridge query. It lets a Client serve as the
// bridge's recorder.
func (c *Client) RecordQuery(db string, rows int, d time.Duration, err error) {
	if c.IsConnected() {
		c.writeAPI.WritePoint(queryPoint(db, rows, d, err, time.Now()))
	}
}

// RecordProvisioning records one finished provisioning attempt.
func (c *Client) RecordProvisioning(versionCode, copied int, d time.Duration, failure string) {
	if c.IsConnected() {
		c.writeAPI.WritePoint(provisioningPoint(versionCode, copied, d, failure, time.Now()))
	}
}
