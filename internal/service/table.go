package service

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
	"github.com/nerrad567/gray-logic-backlightd/internal/capture"
	"github.com/nerrad567/gray-logic-backlightd/internal/device"
)

// Wire names of the exported methods.
const (
	MethodSetBrightness       = "setbrightness"
	MethodGetBrightness       = "getbrightness"
	MethodGetMaxBrightness    = "getmaxbrightness"
	MethodGetActualBrightness = "getactualbrightness"
	MethodCaptureFrames       = "captureframes"
)

// Arg describes one argument or result of a method.
// Type is a D-Bus type code: "s", "i" or "d".
type Arg struct {
	Name string
	Type string
}

// Handler serves one call. It must Reply to the call exactly once, either
// before returning or later from another goroutine.
type Handler func(ctx context.Context, call *Call)

// Method is one entry of the dispatch table.
type Method struct {
	Name string
	In   []Arg
	Out  []Arg

	handle Handler
}

// Signature returns the concatenated input type codes, e.g. "si".
func (m Method) Signature() string {
	return signature(m.In)
}

// ReplySignature returns the concatenated output type codes, e.g. "i".
func (m Method) ReplySignature() string {
	return signature(m.Out)
}

func signature(args []Arg) string {
	s := ""
	for _, a := range args {
		s += a.Type
	}
	return s
}

// CaptureQueue accepts frame capture jobs without blocking.
type CaptureQueue interface {
	Enqueue(job capture.Job) error
}

// Table maps method names to handlers.
//
// Handlers hold no state beyond a single call: every call resolves its
// device afresh and releases the handle before returning.
type Table struct {
	resolver *device.Resolver
	accessor *brightness.Accessor
	capture  CaptureQueue

	methods []Method
	index   map[string]int
}

// NewTable creates a table with the four brightness methods.
func NewTable(resolver *device.Resolver, accessor *brightness.Accessor) *Table {
	t := &Table{
		resolver: resolver,
		accessor: accessor,
		index:    make(map[string]int),
	}

	device := Arg{Name: "device", Type: "s"}
	value := Arg{Name: "value", Type: "i"}

	t.register(Method{
		Name:   MethodSetBrightness,
		In:     []Arg{device, value},
		Out:    []Arg{value},
		handle: replyWith(t.setBrightness),
	})
	t.register(Method{
		Name:   MethodGetBrightness,
		In:     []Arg{device},
		Out:    []Arg{value},
		handle: replyWith(t.reader(brightness.AttrBrightness)),
	})
	t.register(Method{
		Name:   MethodGetMaxBrightness,
		In:     []Arg{device},
		Out:    []Arg{value},
		handle: replyWith(t.reader(brightness.AttrMaxBrightness)),
	})
	t.register(Method{
		Name:   MethodGetActualBrightness,
		In:     []Arg{device},
		Out:    []Arg{value},
		handle: replyWith(t.reader(brightness.AttrActualBrightness)),
	})

	return t
}

// EnableCapture registers captureframes, served through q.
func (t *Table) EnableCapture(q CaptureQueue) {
	t.capture = q
	if _, ok := t.index[MethodCaptureFrames]; ok {
		return
	}
	t.register(Method{
		Name:   MethodCaptureFrames,
		In:     []Arg{{Name: "device", Type: "s"}, {Name: "frames", Type: "i"}},
		Out:    []Arg{{Name: "average", Type: "d"}},
		handle: t.captureFrames,
	})
}

// Methods returns the registered methods in registration order.
func (t *Table) Methods() []Method {
	return append([]Method(nil), t.methods...)
}

// Lookup returns the method called name.
func (t *Table) Lookup(name string) (Method, bool) {
	i, ok := t.index[name]
	if !ok {
		return Method{}, false
	}
	return t.methods[i], true
}

// Dispatch hands call to its handler.
func (t *Table) Dispatch(ctx context.Context, call *Call) {
	m, ok := t.Lookup(call.Method)
	if !ok {
		call.Reply(nil, fmt.Errorf("%w: %q", ErrUnknownMethod, call.Method))
		return
	}
	m.handle(ctx, call)
}

func (t *Table) register(m Method) {
	t.index[m.Name] = len(t.methods)
	t.methods = append(t.methods, m)
}

func replyWith(fn func(ctx context.Context, call *Call) (any, error)) Handler {
	return func(ctx context.Context, call *Call) {
		v, err := fn(ctx, call)
		call.Reply(v, err)
	}
}

func (t *Table) setBrightness(ctx context.Context, call *Call) (any, error) {
	name, value, err := nameAndInt(call)
	if err != nil {
		return nil, err
	}
	// Reject before touching the device tree.
	if value < 0 {
		return nil, fmt.Errorf("%w: value must be greater or equal to 0", brightness.ErrInvalidValue)
	}

	h, err := t.resolver.Resolve(device.SubsystemBacklight, name)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	written, err := t.accessor.Write(ctx, h, value)
	if err != nil {
		return nil, err
	}
	return toInt32(written)
}

func (t *Table) reader(attr string) func(context.Context, *Call) (any, error) {
	return func(_ context.Context, call *Call) (any, error) {
		name, err := stringArg(call, 0)
		if err != nil {
			return nil, err
		}

		h, err := t.resolver.Resolve(device.SubsystemBacklight, name)
		if err != nil {
			return nil, err
		}
		defer h.Release()

		v, err := t.accessor.Read(h, attr)
		if err != nil {
			return nil, err
		}
		return toInt32(v)
	}
}

// captureFrames resolves the camera on the loop, then leaves the capture
// itself to the worker, which replies when it is done.
func (t *Table) captureFrames(_ context.Context, call *Call) {
	name, frames, err := nameAndInt(call)
	if err != nil {
		call.Reply(nil, err)
		return
	}
	if frames < 1 {
		call.Reply(nil, capture.ErrInvalidFrames)
		return
	}

	h, err := t.resolver.Resolve(device.SubsystemVideo, name)
	if err != nil {
		call.Reply(nil, err)
		return
	}
	job := capture.Job{
		Device:  h.Name(),
		DevNode: h.DevNode(),
		Frames:  frames,
		Caller:  call.Caller,
		CallID:  call.ID,
		Done: func(avg float64, err error) {
			if err != nil {
				call.Reply(nil, err)
				return
			}
			call.Reply(avg, nil)
		},
	}
	h.Release()

	if job.DevNode == "" {
		call.Reply(nil, &Error{
			Kind:    KindAttributeUnavailable,
			Message: fmt.Sprintf("%s/%s has no device node", device.SubsystemVideo, job.Device),
		})
		return
	}

	if err := t.capture.Enqueue(job); err != nil {
		call.Reply(nil, err)
	}
}

func stringArg(call *Call, i int) (string, error) {
	if i >= len(call.Args) {
		return "", invalidArgs(call.Method, "missing argument %d", i)
	}
	s, ok := call.Args[i].(string)
	if !ok {
		return "", invalidArgs(call.Method, "argument %d must be a string, got %T", i, call.Args[i])
	}
	return s, nil
}

func intArg(call *Call, i int) (int, error) {
	if i >= len(call.Args) {
		return 0, invalidArgs(call.Method, "missing argument %d", i)
	}
	switch v := call.Args[i].(type) {
	case int32:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, invalidArgs(call.Method, "argument %d must be an integer, got %T", i, call.Args[i])
	}
}

func nameAndInt(call *Call) (string, int, error) {
	name, err := stringArg(call, 0)
	if err != nil {
		return "", 0, err
	}
	n, err := intArg(call, 1)
	if err != nil {
		return "", 0, err
	}
	return name, n, nil
}

func toInt32(v int) (int32, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("%w: %d does not fit the reply type", brightness.ErrAttributeUnavailable, v)
	}
	return int32(v), nil
}
