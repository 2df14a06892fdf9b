package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/notify"
	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Loop          service.Stats    `json:"loop"`
	Bus           BusMetrics       `json:"bus"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Notify        *notify.Stats    `json:"notify,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
	Capture       *CaptureMetrics  `json:"capture,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// BusMetrics contains bus connection state.
type BusMetrics struct {
	Connected bool `json:"connected"`
}

// MQTTMetrics contains MQTT client state. Enabled is false when MQTT is
// not configured.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains audit database pool statistics.
type DatabaseMetrics struct {
	Path            string `json:"path"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
}

// CaptureMetrics contains frame capture queue state. Omitted when capture
// is disabled.
type CaptureMetrics struct {
	Pending int `json:"pending"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Loop: s.loop.Stats(),
	}

	if s.bus != nil {
		metrics.Bus.Connected = s.bus.Connected()
	}
	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}
	if s.notify != nil {
		st := s.notify.Stats()
		metrics.Notify = &st
	}
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			Path:            s.db.Path(),
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	if s.capture != nil {
		metrics.Capture = &CaptureMetrics{Pending: s.capture.Pending()}
	}

	writeJSON(w, http.StatusOK, metrics)
}
