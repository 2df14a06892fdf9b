// Package bus exposes the backlight methods on D-Bus.
//
// The Server owns the bus connection: it exports the method object and its
// introspection data, claims the well-known name and reports loss of the
// connection, which is fatal to the daemon.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

// Default wire identity.
const (
	DefaultName      = "org.clight.backlight"
	DefaultPath      = "/org/clight/backlight"
	DefaultInterface = "org.clight.backlight"
)

// Bus types.
const (
	TypeSystem  = "system"
	TypeSession = "session"
)

// Config selects the bus and the identity to export.
type Config struct {
	Type      string
	Name      string
	Path      string
	Interface string
}

func (c Config) withDefaults() Config {
	if c.Type == "" {
		c.Type = TypeSystem
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Interface == "" {
		c.Interface = DefaultInterface
	}
	return c
}

// Logger defines the logging interface used by the Server.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MethodLister lists the methods a table serves.
type MethodLister interface {
	Methods() []service.Method
}

// Server is a connected bus endpoint.
type Server struct {
	conn   *dbus.Conn
	cfg    Config
	logger Logger
	order  *arrivals

	lost      chan error
	closing   atomic.Bool
	connected atomic.Bool
	closeOnce sync.Once
	watchOnce sync.Once
}

// Connect opens a private connection to the configured bus.
func Connect(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	order := newArrivals(cfg.Path, cfg.Interface)
	intercept := dbus.WithIncomingInterceptor(order.intercept)

	var (
		conn *dbus.Conn
		err  error
	)
	switch cfg.Type {
	case TypeSystem:
		conn, err = dbus.ConnectSystemBus(intercept)
	case TypeSession:
		conn, err = dbus.ConnectSessionBus(intercept)
	default:
		return nil, fmt.Errorf("bus: unknown bus type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %s bus: %w", cfg.Type, err)
	}

	s := &Server{
		conn:   conn,
		cfg:    cfg,
		logger: noopLogger{},
		order:  order,
		lost:   make(chan error, 1),
	}
	s.connected.Store(true)
	return s, nil
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
		s.order.onSkip(func(from, to uint64) {
			logger.Warn("calls never reached a handler, no longer waiting for them",
				"from", from,
				"to", to,
			)
		})
	}
}

// Export publishes the methods of table, served through loop, then claims
// the bus name. Not becoming the primary owner is an error. Only the
// methods the table lists are exported; calls to them reach the loop in
// the order they arrived on the connection.
func (s *Server) Export(loop Submitter, table MethodLister) error {
	path := dbus.ObjectPath(s.cfg.Path)
	methods := table.Methods()

	obj := newObject(loop, s.conn.Context, s.order)
	s.order.register(methods)
	if err := s.conn.ExportMethodTable(obj.methodTable(methods), path, s.cfg.Interface); err != nil {
		return fmt.Errorf("exporting %s: %w", s.cfg.Interface, err)
	}

	node := introspectNode(s.cfg, methods)
	if err := s.conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("exporting introspection data: %w", err)
	}

	reply, err := s.conn.RequestName(s.cfg.Name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("requesting name %s: %w", s.cfg.Name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s", ErrNameTaken, s.cfg.Name)
	}

	s.watch()
	s.logger.Info("bus name acquired",
		"bus", s.cfg.Type,
		"name", s.cfg.Name,
		"path", s.cfg.Path,
		"methods", len(node.Interfaces[len(node.Interfaces)-1].Methods),
	)
	return nil
}

// Lost delivers one error if the connection ends without Close.
func (s *Server) Lost() <-chan error {
	return s.lost
}

// Connected reports whether the connection is still up.
func (s *Server) Connected() bool {
	return s.connected.Load()
}

// Close releases the name and closes the connection.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if _, relErr := s.conn.ReleaseName(s.cfg.Name); relErr != nil {
			s.logger.Error("releasing bus name", "name", s.cfg.Name, "error", relErr)
		}
		err = s.conn.Close()
		s.connected.Store(false)
	})
	return err
}

func (s *Server) watch() {
	s.watchOnce.Do(func() {
		go func() {
			ctx := s.conn.Context()
			<-ctx.Done()
			s.connected.Store(false)
			if s.closing.Load() {
				return
			}
			err := ErrConnectionClosed
			if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
				err = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
			}
			s.lost <- err
		}()
	})
}

// introspectNode describes the standard interfaces plus exactly the methods
// the table serves.
func introspectNode(cfg Config, methods []service.Method) *introspect.Node {
	iface := introspect.Interface{Name: cfg.Interface}
	for _, m := range methods {
		im := introspect.Method{Name: m.Name}
		for _, a := range m.In {
			im.Args = append(im.Args, introspect.Arg{Name: a.Name, Type: a.Type, Direction: "in"})
		}
		for _, a := range m.Out {
			im.Args = append(im.Args, introspect.Arg{Name: a.Name, Type: a.Type, Direction: "out"})
		}
		iface.Methods = append(iface.Methods, im)
	}

	return &introspect.Node{
		Name: cfg.Path,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			iface,
		},
	}
}
