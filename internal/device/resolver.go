package device

import "fmt"

// Enumerator is the device-enumeration capability.
//
// Implementations return ErrNotFound (possibly wrapped) when nothing
// matches. Each call allocates a new Handle owned by the caller.
type Enumerator interface {
	// FindByName looks up a device by exact name within subsystem.
	FindByName(subsystem, name string) (*Handle, error)

	// EnumerateFirst returns the first device the subsystem yields.
	EnumerateFirst(subsystem string) (*Handle, error)
}

// Resolver selects the target device of a request.
type Resolver struct {
	enum Enumerator
}

// NewResolver creates a Resolver over enum.
func NewResolver(enum Enumerator) *Resolver {
	return &Resolver{enum: enum}
}

// Resolve returns a handle to exactly one device of subsystem.
//
// A non-empty name is matched exactly; an empty name selects the first
// enumerated device. The result is never cached: each call asks the
// enumerator again. The caller must Release the returned handle.
func (r *Resolver) Resolve(subsystem, name string) (*Handle, error) {
	var (
		h   *Handle
		err error
	)
	if name == "" {
		h, err = r.enum.EnumerateFirst(subsystem)
	} else {
		h, err = r.enum.FindByName(subsystem, name)
	}
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, subsystem, name)
	}
	return h, nil
}
