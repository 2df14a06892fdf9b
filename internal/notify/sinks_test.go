package notify

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/audit"
	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
	"github.com/nerrad567/gray-logic-backlightd/internal/capture"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-backlightd/migrations"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	msgs []published
}

func (p *fakePublisher) PublishJSON(topic string, v any, retained bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: b, retained: retained})
	return nil
}

func (p *fakePublisher) Topics() mqtt.Topics { return mqtt.Topics{Prefix: "office"} }

var at = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func TestMQTTSink_Change(t *testing.T) {
	tests := []struct {
		name         string
		change       brightness.Change
		wantPrevious bool
	}{
		{
			name: "with previous",
			change: brightness.Change{
				Device: "intel_backlight", Subsystem: "backlight",
				Previous: 50, HasPrevious: true, Value: 60, Max: 100,
				Origin: brightness.Origin{Caller: ":1.42", CallID: "c1"}, At: at,
			},
			wantPrevious: true,
		},
		{
			name: "previous unreadable",
			change: brightness.Change{
				Device: "intel_backlight", Subsystem: "backlight", Value: 0, Max: 100, At: at,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			if err := NewMQTTSink(pub).Change(context.Background(), tt.change); err != nil {
				t.Fatalf("Change() error = %v", err)
			}
			if len(pub.msgs) != 1 {
				t.Fatalf("published %d messages, want 1", len(pub.msgs))
			}
			msg := pub.msgs[0]
			if msg.topic != "office/state/intel_backlight" || !msg.retained {
				t.Errorf("topic = %q retained = %v", msg.topic, msg.retained)
			}

			var got map[string]any
			if err := json.Unmarshal(msg.payload, &got); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if got["brightness"] != float64(tt.change.Value) || got["max"] != float64(100) {
				t.Errorf("payload = %v", got)
			}
			if _, ok := got["previous"]; ok != tt.wantPrevious {
				t.Errorf("previous present = %v, want %v", ok, tt.wantPrevious)
			}
		})
	}
}

func TestMQTTSink_Capture(t *testing.T) {
	pub := &fakePublisher{}
	err := NewMQTTSink(pub).Capture(context.Background(), capture.Result{
		Device: "video0", Frames: 5, Average: 0.25, Duration: 1500 * time.Millisecond, At: at,
	})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].topic != "office/capture/video0" || pub.msgs[0].retained {
		t.Fatalf("published = %+v", pub.msgs)
	}

	var got CaptureMessage
	if err := json.Unmarshal(pub.msgs[0].payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Average != 0.25 || got.DurationMS != 1500 || got.Frames != 5 {
		t.Errorf("payload = %+v", got)
	}
}

type fakeMetrics struct {
	brightness []string
	captures   []string
}

func (m *fakeMetrics) WriteBrightness(device string, _, _ int, _ time.Time) {
	m.brightness = append(m.brightness, device)
}

func (m *fakeMetrics) WriteCapture(device string, _ float64, _ int, _ time.Duration, _ time.Time) {
	m.captures = append(m.captures, device)
}

func TestInfluxSink(t *testing.T) {
	m := &fakeMetrics{}
	s := NewInfluxSink(m)
	ctx := context.Background()

	if err := s.Change(ctx, brightness.Change{Device: "intel_backlight", Value: 1, Max: 2, At: at}); err != nil {
		t.Errorf("Change() error = %v", err)
	}
	if err := s.Capture(ctx, capture.Result{Device: "video0", At: at}); err != nil {
		t.Errorf("Capture() error = %v", err)
	}
	if len(m.brightness) != 1 || m.brightness[0] != "intel_backlight" || len(m.captures) != 1 {
		t.Errorf("writes = %v %v", m.brightness, m.captures)
	}
}

func TestAuditSink(t *testing.T) {
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := audit.NewSQLiteRepository(db.DB)
	s := NewAuditSink(repo)

	if err := s.Change(ctx, brightness.Change{
		Device: "intel_backlight", Value: 60, Max: 100, Previous: 50, HasPrevious: true,
		Origin: brightness.Origin{Caller: "mqtt", CallID: "c1"}, At: at,
	}); err != nil {
		t.Fatalf("Change() error = %v", err)
	}
	if err := s.Capture(ctx, capture.Result{Device: "video0", Frames: 2, Average: 0.5, At: at.Add(time.Second)}); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	res, err := repo.List(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("Total = %d, want 2", res.Total)
	}

	captureLog, changeLog := res.Logs[0], res.Logs[1]
	if changeLog.Action != audit.ActionSetBrightness || changeLog.EntityType != audit.EntityBacklight ||
		changeLog.Source != "mqtt" || changeLog.Details["previous"] != float64(50) {
		t.Errorf("change log = %+v", changeLog)
	}
	if captureLog.Action != audit.ActionCaptureFrames || captureLog.EntityID != "video0" || captureLog.Source != "internal" {
		t.Errorf("capture log = %+v", captureLog)
	}
}
