// Package devicetest provides an in-memory device.Enumerator for tests.
package devicetest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-backlightd/internal/device"
)

// Enumerator is an in-memory device tree.
//
// It records every attribute operation in order, counts live handles and
// can be told to fail writes, which covers the behaviours a real sysfs
// tree cannot easily produce in a test (permission errors, slow devices).
type Enumerator struct {
	mu      sync.Mutex
	devices map[string]map[string]*fakeDevice // subsystem -> name -> device
	ops     []string
	open    int
	opened  int

	// WriteErr, if set, is returned by every attribute write.
	WriteErr error

	// OnOp, if set, runs (outside the lock) before each attribute operation.
	OnOp func(op string)
}

type fakeDevice struct {
	devNode string
	attrs   map[string]string
}

// New creates an empty tree.
func New() *Enumerator {
	return &Enumerator{devices: make(map[string]map[string]*fakeDevice)}
}

// Add creates or replaces a device with the given attributes.
func (e *Enumerator) Add(subsystem, name string, attrs map[string]string) *Enumerator {
	return e.AddNode(subsystem, name, "", attrs)
}

// AddNode is Add for a device that has a /dev node.
func (e *Enumerator) AddNode(subsystem, name, devNode string, attrs map[string]string) *Enumerator {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.devices[subsystem] == nil {
		e.devices[subsystem] = make(map[string]*fakeDevice)
	}
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	e.devices[subsystem][name] = &fakeDevice{devNode: devNode, attrs: copied}
	return e
}

// Remove deletes a device, as if it was unplugged.
func (e *Enumerator) Remove(subsystem, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.devices[subsystem], name)
}

// Attr returns the current value of an attribute.
func (e *Enumerator) Attr(subsystem, name, attr string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.devices[subsystem][name]
	if !ok {
		return "", false
	}
	v, ok := d.attrs[attr]
	return v, ok
}

// Ops returns the recorded attribute operations, e.g. "read backlight/a brightness".
func (e *Enumerator) Ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ops...)
}

// OpenHandles returns the number of handles not yet released.
func (e *Enumerator) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// HandlesOpened returns the total number of handles ever created.
func (e *Enumerator) HandlesOpened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

// FindByName implements device.Enumerator.
func (e *Enumerator) FindByName(subsystem, name string) (*device.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.devices[subsystem][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", device.ErrNotFound, subsystem, name)
	}
	return e.newHandleLocked(subsystem, name, d), nil
}

// EnumerateFirst implements device.Enumerator. Devices are yielded in name order.
func (e *Enumerator) EnumerateFirst(subsystem string) (*device.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.devices[subsystem]))
	for name := range e.devices[subsystem] {
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: subsystem %s has no devices", device.ErrNotFound, subsystem)
	}
	sort.Strings(names)
	return e.newHandleLocked(subsystem, names[0], e.devices[subsystem][names[0]]), nil
}

func (e *Enumerator) newHandleLocked(subsystem, name string, d *fakeDevice) *device.Handle {
	e.open++
	e.opened++
	sysPath := "/sys/class/" + subsystem + "/" + name
	return device.NewHandle(subsystem, name, sysPath, d.devNode, store{e}, func() {
		e.mu.Lock()
		e.open--
		e.mu.Unlock()
	})
}

// store adapts the tree to device.Store.
type store struct{ e *Enumerator }

func (s store) ReadAttr(sysPath, attr string) (string, error) {
	s.e.hook("read " + trimClass(sysPath) + " " + attr)

	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	d, err := s.e.lookupLocked(sysPath)
	if err != nil {
		return "", err
	}
	v, ok := d.attrs[attr]
	if !ok {
		return "", device.ErrNoAttribute
	}
	return v, nil
}

func (s store) WriteAttr(sysPath, attr, value string) error {
	s.e.hook("write " + trimClass(sysPath) + " " + attr + "=" + value)

	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.e.WriteErr != nil {
		return s.e.WriteErr
	}
	d, err := s.e.lookupLocked(sysPath)
	if err != nil {
		return err
	}
	if _, ok := d.attrs[attr]; !ok {
		return device.ErrNoAttribute
	}
	d.attrs[attr] = value
	return nil
}

func (e *Enumerator) hook(op string) {
	e.mu.Lock()
	e.ops = append(e.ops, op)
	fn := e.OnOp
	e.mu.Unlock()
	if fn != nil {
		fn(op)
	}
}

func (e *Enumerator) lookupLocked(sysPath string) (*fakeDevice, error) {
	subsystem, name, _ := strings.Cut(trimClass(sysPath), "/")
	d, ok := e.devices[subsystem][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrNotFound, sysPath)
	}
	return d, nil
}

func trimClass(sysPath string) string {
	return strings.TrimPrefix(sysPath, "/sys/class/")
}
