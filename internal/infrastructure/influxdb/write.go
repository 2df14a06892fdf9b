package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names under device_metrics.
const (
	MeasurementBrightness     = "brightness"
	MeasurementCaptureAverage = "capture_average"
)

// WriteBrightness records a brightness change. The point carries the raw
// value, the device maximum and the value as a fraction of it.
func (c *Client) WriteBrightness(deviceID string, value, maxValue int, at time.Time) {
	fields := map[string]interface{}{
		"value": float64(value),
		"max":   maxValue,
	}
	if maxValue > 0 {
		fields["ratio"] = float64(value) / float64(maxValue)
	}
	c.writeDeviceMetric(deviceID, MeasurementBrightness, fields, at)
}

// WriteCapture records the average of one frame capture.
func (c *Client) WriteCapture(deviceID string, average float64, frames int, took time.Duration, at time.Time) {
	c.writeDeviceMetric(deviceID, MeasurementCaptureAverage, map[string]interface{}{
		"value":       average,
		"frames":      frames,
		"duration_ms": took.Milliseconds(),
	}, at)
}

func (c *Client) writeDeviceMetric(deviceID, measurement string, fields map[string]interface{}, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		fields,
		at,
	)

	c.writeAPI.WritePoint(point)
}
