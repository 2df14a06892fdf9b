package bus

import (
	"context"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

// defaultOrderWait is how long a call waits before it gives up on earlier
// calls that godbus never handed to a method (rejected during decoding).
const defaultOrderWait = 2 * time.Second

type callKey struct {
	sender string
	serial uint32
}

// arrivals keeps method calls in the order they were read off the
// connection.
//
// godbus reads messages on one goroutine but runs every method call on a
// goroutine of its own, so the calls would otherwise race into the loop.
// intercept runs on the reader goroutine and hands each call a ticket;
// await lets a handler through once every earlier ticket has been queued
// on the loop.
type arrivals struct {
	path  dbus.ObjectPath
	iface string
	wait  time.Duration

	mu       sync.Mutex
	methods  map[string]string // wire name -> body signature
	tickets  map[callKey]uint64
	untaken  map[uint64]callKey
	issued   uint64
	next     uint64
	released map[uint64]bool
	advanced chan struct{}
	skipped  func(from, to uint64)
}

func newArrivals(path, iface string) *arrivals {
	return &arrivals{
		path:     dbus.ObjectPath(path),
		iface:    iface,
		wait:     defaultOrderWait,
		tickets:  make(map[callKey]uint64),
		untaken:  make(map[uint64]callKey),
		released: make(map[uint64]bool),
		advanced: make(chan struct{}),
		skipped:  func(uint64, uint64) {},
	}
}

// register sets the methods whose calls are sequenced. Calls to anything
// else bypass the order.
func (a *arrivals) register(methods []service.Method) {
	sigs := make(map[string]string, len(methods))
	for _, m := range methods {
		var sig string
		for _, arg := range m.In {
			sig += arg.Type
		}
		sigs[m.Name] = sig
	}

	a.mu.Lock()
	a.methods = sigs
	a.mu.Unlock()
}

// onSkip sets the function told about dropped tickets.
func (a *arrivals) onSkip(f func(from, to uint64)) {
	a.mu.Lock()
	a.skipped = f
	a.mu.Unlock()
}

// intercept is installed with dbus.WithIncomingInterceptor. It must not
// block: it runs on the connection's reader goroutine.
func (a *arrivals) intercept(msg *dbus.Message) {
	if msg.Type != dbus.TypeMethodCall {
		return
	}
	key, member, ok := a.identify(msg)
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	want, known := a.methods[member]
	if !known || signatureOf(msg) != want {
		// godbus answers these itself without calling a method.
		return
	}
	a.tickets[key] = a.issued
	a.untaken[a.issued] = key
	a.issued++
}

func (a *arrivals) identify(msg *dbus.Message) (callKey, string, bool) {
	path, _ := header[dbus.ObjectPath](msg, dbus.FieldPath)
	if path != a.path {
		return callKey{}, "", false
	}
	if iface, _ := header[string](msg, dbus.FieldInterface); iface != "" && iface != a.iface {
		return callKey{}, "", false
	}
	member, _ := header[string](msg, dbus.FieldMember)
	sender, _ := header[string](msg, dbus.FieldSender)
	return callKey{sender: sender, serial: msg.Serial()}, member, true
}

// take returns the ticket issued for msg, if any.
func (a *arrivals) take(msg *dbus.Message) (uint64, bool) {
	key, _, ok := a.identify(msg)
	if !ok {
		return 0, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tickets[key]
	if ok {
		delete(a.tickets, key)
		delete(a.untaken, t)
	}
	return t, ok
}

// await blocks until every ticket before t has been released. Earlier
// tickets that no handler has taken within the wait bound are dropped; a
// taken ticket is always waited for.
func (a *arrivals) await(ctx context.Context, t uint64) error {
	timer := time.NewTimer(a.wait)
	defer timer.Stop()

	for {
		a.mu.Lock()
		if t <= a.next {
			a.mu.Unlock()
			return nil
		}
		advanced := a.advanced
		a.mu.Unlock()

		select {
		case <-advanced:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			a.dropUntaken(t)
			timer.Reset(a.wait)
		}
	}
}

// release marks ticket t as queued on the loop and lets the next one in.
func (a *arrivals) release(t uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t < a.next {
		return
	}
	a.released[t] = true
	moved := false
	for a.released[a.next] {
		delete(a.released, a.next)
		a.next++
		moved = true
	}
	if moved {
		a.signalLocked()
	}
}

// dropUntaken advances past tickets before t whose handler never arrived.
func (a *arrivals) dropUntaken(t uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	from := a.next
	for a.next < t {
		if key, ok := a.untaken[a.next]; ok {
			delete(a.untaken, a.next)
			delete(a.tickets, key)
		} else if a.released[a.next] {
			delete(a.released, a.next)
		} else {
			break
		}
		a.next++
	}
	if a.next != from {
		a.skipped(from, a.next)
		a.signalLocked()
	}
}

func (a *arrivals) signalLocked() {
	close(a.advanced)
	a.advanced = make(chan struct{})
}

func signatureOf(msg *dbus.Message) string {
	sig, ok := header[dbus.Signature](msg, dbus.FieldSignature)
	if !ok {
		return ""
	}
	return sig.String()
}

func header[T any](msg *dbus.Message, field dbus.HeaderField) (T, bool) {
	v, ok := msg.Headers[field]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.Value().(T)
	return t, ok
}
