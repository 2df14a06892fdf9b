// Package api provides the read-only health and metrics HTTP server of
// backlightd.
//
// There is no device control over HTTP; brightness is only changed through
// the bus (and MQTT, when enabled), which keeps every write on the serial
// request loop.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/audit"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-backlightd/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-backlightd/internal/notify"
	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// LoopStats reports request loop counters.
type LoopStats interface {
	Stats() service.Stats
}

// BusStatus reports whether the bus connection is up.
type BusStatus interface {
	Connected() bool
}

// BrokerStatus reports whether the MQTT client is connected.
type BrokerStatus interface {
	IsConnected() bool
}

// NotifyStats reports notification delivery counters.
type NotifyStats interface {
	Stats() notify.Stats
}

// HealthChecker is a dependency whose liveness is part of the health report.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CaptureQueue reports how many capture jobs are waiting.
type CaptureQueue interface {
	Pending() int
}

// Deps holds the dependencies of the API server. Only Logger and Loop are
// required.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Loop    LoopStats
	Bus     BusStatus
	MQTT    BrokerStatus
	Notify  NotifyStats
	Audit   audit.Repository
	DB      *database.DB
	Influx  HealthChecker
	Capture CaptureQueue
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	loop      LoopStats
	bus       BusStatus
	mqtt      BrokerStatus
	notify    NotifyStats
	auditRepo audit.Repository
	db        *database.DB
	capture   CaptureQueue
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Loop == nil {
		return nil, fmt.Errorf("request loop is required")
	}

	checks := make(map[string]HealthChecker)
	if deps.DB != nil {
		checks["database"] = deps.DB
	}
	if deps.Influx != nil {
		checks["influxdb"] = deps.Influx
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		loop:      deps.Loop,
		bus:       deps.Bus,
		mqtt:      deps.MQTT,
		notify:    deps.Notify,
		auditRepo: deps.Audit,
		db:        deps.DB,
		capture:   deps.Capture,
		checks:    checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine. A port
// already in use is reported here rather than logged later.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
