//go:build integration

package influxdb

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/config"
)

// Requires an InfluxDB 2.x at 127.0.0.1:8086 with the token below.
func integrationConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "backlightd-dev-token",
		Org:           "backlightd",
		Bucket:        "backlightd",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestIntegration_ConnectAndWrite(t *testing.T) {
	client, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	client.WriteBrightness("intel_backlight", 60, 100, time.Now())
	client.WriteCapture("video0", 0.42, 5, time.Second, time.Now())
	client.Flush()
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := Connect(cfg); err == nil {
		t.Fatal("Connect() should fail for a closed port")
	}
}
