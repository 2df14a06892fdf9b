package device

import "fmt"

// Well-known subsystems.
const (
	SubsystemBacklight = "backlight"
	SubsystemVideo     = "video4linux"
)

// Store performs attribute I/O for device nodes.
//
// The sysfs implementation maps (sysPath, attr) to the file
// <sysPath>/<attr>. Test doubles keep attributes in memory.
type Store interface {
	ReadAttr(sysPath, attr string) (string, error)
	WriteAttr(sysPath, attr, value string) error
}

// Handle is a reference to one resolved device node.
//
// A Handle is owned by the request that resolved it and must be released
// before that request finishes. Every attribute call on a released Handle
// fails with ErrReleased.
type Handle struct {
	subsystem string
	name      string
	sysPath   string
	devNode   string

	store     Store
	onRelease func()
	released  bool
}

// NewHandle creates a Handle backed by store.
// onRelease, if non-nil, runs once when the handle is first released.
func NewHandle(subsystem, name, sysPath, devNode string, store Store, onRelease func()) *Handle {
	return &Handle{
		subsystem: subsystem,
		name:      name,
		sysPath:   sysPath,
		devNode:   devNode,
		store:     store,
		onRelease: onRelease,
	}
}

// Subsystem returns the device class, e.g. "backlight".
func (h *Handle) Subsystem() string { return h.subsystem }

// Name returns the kernel-assigned short name, e.g. "intel_backlight".
func (h *Handle) Name() string { return h.name }

// SysPath returns the resolved sysfs directory of the device.
func (h *Handle) SysPath() string { return h.sysPath }

// DevNode returns the /dev node of the device, or "" if it has none.
// Backlight devices have no node; video4linux devices do.
func (h *Handle) DevNode() string { return h.devNode }

// String implements fmt.Stringer.
func (h *Handle) String() string {
	return h.subsystem + "/" + h.name
}

// ReadAttr returns the raw value of attribute attr.
func (h *Handle) ReadAttr(attr string) (string, error) {
	if h.released {
		return "", ErrReleased
	}
	v, err := h.store.ReadAttr(h.sysPath, attr)
	if err != nil {
		return "", fmt.Errorf("reading %s of %s: %w", attr, h, err)
	}
	return v, nil
}

// WriteAttr writes value to attribute attr.
func (h *Handle) WriteAttr(attr, value string) error {
	if h.released {
		return ErrReleased
	}
	if err := h.store.WriteAttr(h.sysPath, attr, value); err != nil {
		return fmt.Errorf("writing %s of %s: %w", attr, h, err)
	}
	return nil
}

// Release ends the handle's lifetime. It is safe to call more than once.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	if h.onRelease != nil {
		h.onRelease()
	}
}

