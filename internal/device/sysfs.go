package device

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Default filesystem roots.
const (
	DefaultSysRoot = "/sys"
	DefaultDevRoot = "/dev"
)

// ueventFile holds KEY=VALUE properties of a device node, including DEVNAME.
const ueventFile = "uevent"

// SysfsEnumerator enumerates devices from /sys/class/<subsystem>.
//
// Entries under a class directory are symlinks into /sys/devices; they are
// resolved so Handle.SysPath is the real device directory.
type SysfsEnumerator struct {
	sysRoot string
	devRoot string
	store   sysfsStore
}

// NewSysfsEnumerator creates an enumerator rooted at sysRoot (normally
// "/sys") that reports device nodes under devRoot (normally "/dev").
// Empty roots select the defaults.
func NewSysfsEnumerator(sysRoot, devRoot string) *SysfsEnumerator {
	if sysRoot == "" {
		sysRoot = DefaultSysRoot
	}
	if devRoot == "" {
		devRoot = DefaultDevRoot
	}
	return &SysfsEnumerator{sysRoot: sysRoot, devRoot: devRoot}
}

// FindByName implements Enumerator.
func (e *SysfsEnumerator) FindByName(subsystem, name string) (*Handle, error) {
	if !validComponent(subsystem) || !validComponent(name) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, subsystem, name)
	}

	path := filepath.Join(e.classDir(subsystem), name)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, subsystem, name)
	}
	return e.newHandle(subsystem, name, path), nil
}

// EnumerateFirst implements Enumerator.
func (e *SysfsEnumerator) EnumerateFirst(subsystem string) (*Handle, error) {
	if !validComponent(subsystem) {
		return nil, fmt.Errorf("%w: subsystem %q", ErrNotFound, subsystem)
	}

	entries, err := os.ReadDir(e.classDir(subsystem))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: subsystem %s has no devices", ErrNotFound, subsystem)
		}
		return nil, fmt.Errorf("scanning %s: %w", subsystem, err)
	}

	for _, entry := range entries {
		path := filepath.Join(e.classDir(subsystem), entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			// Dangling link or stray file: not a device.
			continue
		}
		return e.newHandle(subsystem, entry.Name(), path), nil
	}

	return nil, fmt.Errorf("%w: subsystem %s has no devices", ErrNotFound, subsystem)
}

func (e *SysfsEnumerator) classDir(subsystem string) string {
	return filepath.Join(e.sysRoot, "class", subsystem)
}

func (e *SysfsEnumerator) newHandle(subsystem, name, path string) *Handle {
	sysPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		sysPath = path
	}
	return NewHandle(subsystem, name, sysPath, e.devNode(sysPath), e.store, nil)
}

// devNode reads DEVNAME from the device's uevent file.
func (e *SysfsEnumerator) devNode(sysPath string) string {
	data, err := os.ReadFile(filepath.Join(sysPath, ueventFile))
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if ok && key == "DEVNAME" && value != "" {
			if filepath.IsAbs(value) {
				return value
			}
			return filepath.Join(e.devRoot, value)
		}
	}
	return ""
}

// validComponent rejects names that cannot be a single sysfs path element.
func validComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsRune(s, '/')
}

// sysfsStore reads and writes attribute files.
type sysfsStore struct{}

func (sysfsStore) ReadAttr(sysPath, attr string) (string, error) {
	if !validComponent(attr) {
		return "", ErrNoAttribute
	}
	data, err := os.ReadFile(filepath.Join(sysPath, attr))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoAttribute
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (sysfsStore) WriteAttr(sysPath, attr, value string) error {
	if !validComponent(attr) {
		return ErrNoAttribute
	}
	// sysfs attributes exist already; never create one.
	f, err := os.OpenFile(filepath.Join(sysPath, attr), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	return f.Close()
}
