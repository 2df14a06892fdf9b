package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/audit"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-backlightd/internal/notify"
	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

type fakeLoop struct{ stats service.Stats }

func (l fakeLoop) Stats() service.Stats { return l.stats }

type fakeStatus bool

func (s fakeStatus) Connected() bool   { return bool(s) }
func (s fakeStatus) IsConnected() bool { return bool(s) }

type fakeNotify struct{}

func (fakeNotify) Stats() notify.Stats {
	return notify.Stats{Sinks: []string{"mqtt"}, Delivered: 3}
}

type fakeCheck struct{ err error }

func (c fakeCheck) HealthCheck(context.Context) error { return c.err }

type fakeCapture int

func (c fakeCapture) Pending() int { return int(c) }

type fakeAudit struct {
	filter audit.Filter
	err    error
}

func (a *fakeAudit) Create(context.Context, *audit.AuditLog) error { return nil }

func (a *fakeAudit) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	a.filter = f
	if a.err != nil {
		return nil, a.err
	}
	return &audit.ListResult{
		Logs:  []audit.AuditLog{{ID: "aud-1", Action: audit.ActionSetBrightness, EntityID: "intel_backlight", Source: "mqtt"}},
		Total: 1,
		Limit: f.Limit,
	}, nil
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	deps.Logger = testLogger()
	if deps.Loop == nil {
		deps.Loop = fakeLoop{stats: service.Stats{State: "waiting", Submitted: 4, Succeeded: 3, Failed: 1}}
	}
	deps.Version = "test"

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Loop: fakeLoop{}}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without loop succeeded")
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		bus        BusStatus
		loopState  string
		influx     HealthChecker
		wantStatus int
		wantBody   string
		wantInflux string
	}{
		{"connected", fakeStatus(true), "waiting", nil, http.StatusOK, "ok", ""},
		{"bus lost", fakeStatus(false), "waiting", nil, http.StatusServiceUnavailable, "degraded", ""},
		{"no bus", nil, "idle", nil, http.StatusServiceUnavailable, "degraded", ""},
		{"loop stopped", fakeStatus(true), "stopped", nil, http.StatusServiceUnavailable, "degraded", ""},
		{"influx ok", fakeStatus(true), "waiting", fakeCheck{}, http.StatusOK, "ok", "ok"},
		{"influx down", fakeStatus(true), "waiting", fakeCheck{err: errors.New("influxdb health check failed: refused")}, http.StatusServiceUnavailable, "degraded", "influxdb health check failed: refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, Deps{Bus: tt.bus, Influx: tt.influx, Loop: fakeLoop{stats: service.Stats{State: tt.loopState}}})

			rec := get(t, srv, "/api/v1/health")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var h Health
			if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if h.Status != tt.wantBody || h.Loop != tt.loopState || h.Version != "test" {
				t.Errorf("health = %+v", h)
			}
			if got := h.Checks["influxdb"]; got != tt.wantInflux {
				t.Errorf("checks[influxdb] = %q, want %q", got, tt.wantInflux)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestHandleHealth_Database(t *testing.T) {
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	srv := testServer(t, Deps{Bus: fakeStatus(true), DB: db})

	rec := get(t, srv, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var h Health
	if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if h.Checks["database"] != "ok" {
		t.Errorf("checks = %v, want database ok", h.Checks)
	}

	var m SystemMetrics
	if err := json.Unmarshal(get(t, srv, "/api/v1/metrics").Body.Bytes(), &m); err != nil {
		t.Fatalf("metrics body is not JSON: %v", err)
	}
	if m.Database == nil || m.Database.Path != db.Path() {
		t.Errorf("database metrics = %+v, want path %s", m.Database, db.Path())
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	rec = get(t, srv, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after close = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleMetrics(t *testing.T) {
	srv := testServer(t, Deps{Bus: fakeStatus(true), MQTT: fakeStatus(false), Notify: fakeNotify{}, Capture: fakeCapture(2)})

	rec := get(t, srv, "/api/v1/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var m SystemMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if m.Loop.Submitted != 4 || m.Loop.Failed != 1 || m.Loop.State != "waiting" {
		t.Errorf("loop = %+v", m.Loop)
	}
	if !m.Bus.Connected || !m.MQTT.Enabled || m.MQTT.Connected {
		t.Errorf("bus = %+v mqtt = %+v", m.Bus, m.MQTT)
	}
	if m.Notify == nil || m.Notify.Delivered != 3 {
		t.Errorf("notify = %+v", m.Notify)
	}
	if m.Database != nil {
		t.Errorf("database = %+v, want omitted", m.Database)
	}
	if m.Capture == nil || m.Capture.Pending != 2 {
		t.Errorf("capture = %+v, want 2 pending", m.Capture)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime metrics missing")
	}
}

func TestHandleListAuditLogs(t *testing.T) {
	t.Run("filters", func(t *testing.T) {
		repo := &fakeAudit{}
		srv := testServer(t, Deps{Audit: repo})

		rec := get(t, srv, "/api/v1/audit?action=set_brightness&entity_id=intel_backlight&source=mqtt&limit=10&offset=x")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		want := audit.Filter{Action: "set_brightness", EntityID: "intel_backlight", Source: "mqtt", Limit: 10}
		if repo.filter != want {
			t.Errorf("filter = %+v, want %+v", repo.filter, want)
		}
		var res audit.ListResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.Total != 1 {
			t.Errorf("result = %+v, err = %v", res, err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		rec := get(t, testServer(t, Deps{}), "/api/v1/audit")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("store error", func(t *testing.T) {
		rec := get(t, testServer(t, Deps{Audit: &fakeAudit{err: errors.New("disk I/O error")}}), "/api/v1/audit")
		var e Error
		if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if rec.Code != http.StatusInternalServerError || e.Code != ErrCodeInternal {
			t.Errorf("status = %d, error = %+v", rec.Code, e)
		}
	})
}

func TestRouter_ReadOnly(t *testing.T) {
	srv := testServer(t, Deps{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/v1/health", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/v1/metrics", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/devices", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.buildRouter().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	srv := testServer(t, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	req.Header.Set("X-Request-ID", "req-from-proxy-1")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-from-proxy-1" {
		t.Errorf("X-Request-ID = %q, want req-from-proxy-1", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, Deps{})
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartClose(t *testing.T) {
	srv := testServer(t, Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		Bus:    fakeStatus(true),
	})

	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close() //nolint:errcheck // Test cleanup

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Test cleanup
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	// A second server on the same port must fail in Start.
	clash := testServer(t, Deps{Config: srv.cfg})
	clash.cfg.Port = mustPort(t, srv.Addr())
	if err := clash.Start(context.Background()); err == nil {
		clash.Close() //nolint:errcheck // Test cleanup
		t.Error("Start() on a port in use succeeded")
	}
}

func mustPort(t *testing.T, addr string) int {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q) error = %v", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("port %q: %v", port, err)
	}
	return n
}
