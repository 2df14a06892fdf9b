package bus

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

// Connection errors.
var (
	// ErrNameTaken is returned when another process owns the bus name.
	ErrNameTaken = errors.New("bus: name already owned")

	// ErrConnectionClosed is delivered on Lost when the bus drops us.
	ErrConnectionClosed = errors.New("bus: connection closed")
)

// D-Bus error names used in replies.
const (
	ErrorInvalidArgs   = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrorFileNotFound  = "org.freedesktop.DBus.Error.FileNotFound"
	ErrorAccessDenied  = "org.freedesktop.DBus.Error.AccessDenied"
	ErrorFailed        = "org.freedesktop.DBus.Error.Failed"
	ErrorUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
)

// toDBusError is the only place service errors become wire errors.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, service.ErrUnknownMethod) {
		return dbus.NewError(ErrorUnknownMethod, []any{err.Error()})
	}

	e := service.Classify(err)
	var name string
	switch e.Kind {
	case service.KindInvalidArgument:
		name = ErrorInvalidArgs
	case service.KindNotFound:
		name = ErrorFileNotFound
	case service.KindAccessDenied:
		name = ErrorAccessDenied
	default:
		name = ErrorFailed
	}
	return dbus.NewError(name, []any{e.Error()})
}
