package notify

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/audit"
	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
	"github.com/nerrad567/gray-logic-backlightd/internal/capture"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/mqtt"
)

// Publisher is the part of *mqtt.Client the MQTT sink needs.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

// StateMessage is the retained payload on backlightd/state/<device>.
type StateMessage struct {
	Device     string    `json:"device"`
	Subsystem  string    `json:"subsystem"`
	Brightness int       `json:"brightness"`
	Max        int       `json:"max"`
	Previous   *int      `json:"previous,omitempty"`
	Caller     string    `json:"caller,omitempty"`
	CallID     string    `json:"call_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CaptureMessage is the payload on backlightd/capture/<device>.
type CaptureMessage struct {
	Device     string    `json:"device"`
	Frames     int       `json:"frames"`
	Average    float64   `json:"average"`
	DurationMS int64     `json:"duration_ms"`
	Caller     string    `json:"caller,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MQTTSink publishes state and capture results.
type MQTTSink struct {
	pub Publisher
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Name implements Sink.
func (*MQTTSink) Name() string { return "mqtt" }

// Change publishes the new state, retained.
func (s *MQTTSink) Change(_ context.Context, c brightness.Change) error {
	msg := StateMessage{
		Device:     c.Device,
		Subsystem:  c.Subsystem,
		Brightness: c.Value,
		Max:        c.Max,
		Caller:     c.Origin.Caller,
		CallID:     c.Origin.CallID,
		Timestamp:  c.At,
	}
	if c.HasPrevious {
		prev := c.Previous
		msg.Previous = &prev
	}
	return s.pub.PublishJSON(s.pub.Topics().State(c.Device), msg, true)
}

// Capture publishes a capture result, not retained.
func (s *MQTTSink) Capture(_ context.Context, r capture.Result) error {
	return s.pub.PublishJSON(s.pub.Topics().Capture(r.Device), CaptureMessage{
		Device:     r.Device,
		Frames:     r.Frames,
		Average:    r.Average,
		DurationMS: r.Duration.Milliseconds(),
		Caller:     r.Caller,
		Timestamp:  r.At,
	}, false)
}

// MetricsWriter is the part of *influxdb.Client the telemetry sink needs.
type MetricsWriter interface {
	WriteBrightness(deviceID string, value, maxValue int, at time.Time)
	WriteCapture(deviceID string, average float64, frames int, took time.Duration, at time.Time)
}

// InfluxSink writes device_metrics points. The client batches writes and
// reports failures through its own error callback, so it never fails here.
type InfluxSink struct {
	w MetricsWriter
}

// NewInfluxSink creates a telemetry sink.
func NewInfluxSink(w MetricsWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (*InfluxSink) Name() string { return "influxdb" }

// Change implements Sink.
func (s *InfluxSink) Change(_ context.Context, c brightness.Change) error {
	s.w.WriteBrightness(c.Device, c.Value, c.Max, c.At)
	return nil
}

// Capture implements Sink.
func (s *InfluxSink) Capture(_ context.Context, r capture.Result) error {
	s.w.WriteCapture(r.Device, r.Average, r.Frames, r.Duration, r.At)
	return nil
}

// AuditSink appends to the audit trail.
type AuditSink struct {
	repo audit.Repository
}

// NewAuditSink creates an audit sink.
func NewAuditSink(repo audit.Repository) *AuditSink {
	return &AuditSink{repo: repo}
}

// Name implements Sink.
func (*AuditSink) Name() string { return "audit" }

// Change records a set_brightness entry.
func (s *AuditSink) Change(ctx context.Context, c brightness.Change) error {
	details := map[string]any{
		"value":   c.Value,
		"max":     c.Max,
		"call_id": c.Origin.CallID,
	}
	if c.HasPrevious {
		details["previous"] = c.Previous
	}
	return s.repo.Create(ctx, &audit.AuditLog{
		Action:     audit.ActionSetBrightness,
		EntityType: audit.EntityBacklight,
		EntityID:   c.Device,
		Source:     sourceOf(c.Origin.Caller),
		Details:    details,
		CreatedAt:  c.At,
	})
}

// Capture records a capture_frames entry.
func (s *AuditSink) Capture(ctx context.Context, r capture.Result) error {
	return s.repo.Create(ctx, &audit.AuditLog{
		Action:     audit.ActionCaptureFrames,
		EntityType: audit.EntityVideo,
		EntityID:   r.Device,
		Source:     sourceOf(r.Caller),
		Details: map[string]any{
			"frames":      r.Frames,
			"average":     r.Average,
			"duration_ms": r.Duration.Milliseconds(),
			"call_id":     r.CallID,
		},
		CreatedAt: r.At,
	})
}

// sourceOf names changes that did not come through a call.
func sourceOf(caller string) string {
	if caller == "" {
		return "internal"
	}
	return caller
}
