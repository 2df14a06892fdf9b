package bus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

// Submitter queues a call and waits for its reply.
type Submitter interface {
	Submit(ctx context.Context, call *service.Call) (any, error)
}

// object is exported at the object path. godbus runs each method on its own
// goroutine; every one funnels into the serial loop through Submit, in the
// order the calls arrived when order is set.
type object struct {
	loop  Submitter
	ctx   func() context.Context
	order *arrivals
}

func newObject(loop Submitter, ctx func() context.Context, order *arrivals) *object {
	if ctx == nil {
		ctx = context.Background
	}
	return &object{loop: loop, ctx: ctx, order: order}
}

// methodTable returns the handlers for the methods the table serves, keyed
// by wire name. A method the table does not list is not exported.
func (o *object) methodTable(methods []service.Method) map[string]any {
	handlers := map[string]any{
		service.MethodSetBrightness:       o.SetBrightness,
		service.MethodGetBrightness:       o.GetBrightness,
		service.MethodGetMaxBrightness:    o.GetMaxBrightness,
		service.MethodGetActualBrightness: o.GetActualBrightness,
		service.MethodCaptureFrames:       o.CaptureFrames,
	}

	out := make(map[string]any, len(methods))
	for _, m := range methods {
		if h, ok := handlers[m.Name]; ok {
			out[m.Name] = h
		}
	}
	return out
}

func (o *object) SetBrightness(msg dbus.Message, device string, value int32) (int32, *dbus.Error) {
	return o.callInt(msg, service.MethodSetBrightness, device, value)
}

func (o *object) GetBrightness(msg dbus.Message, device string) (int32, *dbus.Error) {
	return o.callInt(msg, service.MethodGetBrightness, device)
}

func (o *object) GetMaxBrightness(msg dbus.Message, device string) (int32, *dbus.Error) {
	return o.callInt(msg, service.MethodGetMaxBrightness, device)
}

func (o *object) GetActualBrightness(msg dbus.Message, device string) (int32, *dbus.Error) {
	return o.callInt(msg, service.MethodGetActualBrightness, device)
}

func (o *object) CaptureFrames(msg dbus.Message, device string, frames int32) (float64, *dbus.Error) {
	v, derr := o.call(msg, service.MethodCaptureFrames, device, frames)
	if derr != nil {
		return 0, derr
	}
	avg, ok := v.(float64)
	if !ok {
		return 0, unexpectedReply(service.MethodCaptureFrames, v)
	}
	return avg, nil
}

func (o *object) callInt(msg dbus.Message, method string, args ...any) (int32, *dbus.Error) {
	v, derr := o.call(msg, method, args...)
	if derr != nil {
		return 0, derr
	}
	n, ok := v.(int32)
	if !ok {
		return 0, unexpectedReply(method, v)
	}
	return n, nil
}

func (o *object) call(msg dbus.Message, method string, args ...any) (any, *dbus.Error) {
	ctx := o.ctx()
	sender, _ := header[string](&msg, dbus.FieldSender)
	call := service.NewCall(method, sender, args...)

	if o.order != nil {
		if ticket, ok := o.order.take(&msg); ok {
			call.OnQueued(func() { o.order.release(ticket) })
			if err := o.order.await(ctx, ticket); err != nil {
				o.order.release(ticket)
				return nil, toDBusError(err)
			}
		}
	}

	v, err := o.loop.Submit(ctx, call)
	if err != nil {
		return nil, toDBusError(err)
	}
	return v, nil
}

func unexpectedReply(method string, v any) *dbus.Error {
	return dbus.NewError(ErrorFailed, []any{fmt.Sprintf("%s: unexpected reply type %T", method, v)})
}
