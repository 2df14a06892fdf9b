package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // no device matches the selector
//	}
var (
	// ErrNotFound is returned when no device matches the subsystem/name selector.
	ErrNotFound = errors.New("device: not found")

	// ErrReleased is returned when a released Handle is used.
	ErrReleased = errors.New("device: handle released")

	// ErrNoAttribute is returned when a device has no attribute of the given name.
	ErrNoAttribute = errors.New("device: attribute not present")
)
