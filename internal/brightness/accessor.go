// Package brightness reads and writes backlight attributes of a resolved
// device, applying bounds checks to writes.
//
// Writes are validated against max_brightness as read at the moment of the
// write; the bound is never cached. A successful write emits one Change
// record to the configured Recorder.
package brightness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/device"
)

// Attribute names of the backlight class.
const (
	AttrBrightness       = "brightness"
	AttrMaxBrightness    = "max_brightness"
	AttrActualBrightness = "actual_brightness"
)

// Change describes one successful brightness write.
type Change struct {
	Device    string
	Subsystem string

	// Previous is the brightness before the write; HasPrevious is false if
	// it could not be read.
	Previous    int
	HasPrevious bool

	Value int
	Max   int

	Origin Origin
	At     time.Time
}

// Recorder receives Change records. Implementations must not block for long:
// they run inline on the request path.
type Recorder interface {
	RecordChange(ctx context.Context, c Change)
}

// Logger defines the logging interface used by the Accessor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

type noopRecorder struct{}

func (noopRecorder) RecordChange(context.Context, Change) {}

// Accessor performs attribute reads and validated writes.
type Accessor struct {
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

// NewAccessor creates an Accessor. A nil recorder discards changes.
func NewAccessor(recorder Recorder) *Accessor {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Accessor{
		recorder: recorder,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the accessor.
func (a *Accessor) SetLogger(logger Logger) {
	a.logger = logger
}

// Read returns attr of h as a non-negative integer.
//
// A missing, unreadable or unparsable attribute fails with
// ErrAttributeUnavailable; no value is ever guessed.
func (a *Accessor) Read(h *device.Handle, attr string) (int, error) {
	raw, err := h.ReadAttr(attr)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAttributeUnavailable, err)
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s of %s is %q", ErrAttributeUnavailable, attr, h, raw)
	}

	a.logger.Debug("attribute read", "device", h.Name(), "attribute", attr, "value", v)
	return v, nil
}

// Write sets the brightness of h to value and returns the value written.
//
// It fails with ErrInvalidValue if value is negative or above the device's
// current max_brightness (the message carries the max), and with
// ErrAccessDenied if the write itself is rejected.
func (a *Accessor) Write(ctx context.Context, h *device.Handle, value int) (int, error) {
	if value < 0 {
		return 0, fmt.Errorf("%w: value must be greater or equal to 0", ErrInvalidValue)
	}

	maxValue, err := a.Read(h, AttrMaxBrightness)
	if err != nil {
		return 0, err
	}
	if value > maxValue {
		return 0, fmt.Errorf("%w: value must be smaller than or equal to %d", ErrInvalidValue, maxValue)
	}

	// Best effort: the previous value only feeds the change record.
	previous, prevErr := a.Read(h, AttrBrightness)

	if err := h.WriteAttr(AttrBrightness, strconv.Itoa(value)); err != nil {
		if errors.Is(err, device.ErrReleased) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}

	change := Change{
		Device:      h.Name(),
		Subsystem:   h.Subsystem(),
		Previous:    previous,
		HasPrevious: prevErr == nil,
		Value:       value,
		Max:         maxValue,
		Origin:      OriginFrom(ctx),
		At:          a.now().UTC(),
	}

	a.logger.Info("brightness changed",
		"device", change.Device,
		"value", change.Value,
		"max", change.Max,
		"caller", change.Origin.Caller,
		"call_id", change.Origin.CallID,
	)
	a.recorder.RecordChange(ctx, change)

	return value, nil
}
