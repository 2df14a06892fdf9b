package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
)

// DefaultQueueSize is the number of calls that may wait for the loop before
// Submit starts blocking.
const DefaultQueueSize = 64

// ErrTransportLost is returned by Run when the transport connection goes away.
var ErrTransportLost = errors.New("service: transport connection lost")

// Dispatcher serves calls taken off the queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, call *Call)
}

// Logger is the interface the loop logs through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type loopState int32

const (
	stateIdle loopState = iota
	stateDraining
	stateWaiting
	stateStopped
)

func (s loopState) String() string {
	switch s {
	case stateDraining:
		return "draining"
	case stateWaiting:
		return "waiting"
	case stateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Loop serves calls one at a time.
//
// Transports may Submit from any goroutine. Dispatch happens only on the
// goroutine running Run, so no two handlers ever overlap. A handler that
// hands work to another goroutine (captureframes) frees the loop at once;
// its reply arrives later.
type Loop struct {
	dispatcher Dispatcher
	queue      chan *Call
	done       chan struct{}
	doneOnce   sync.Once
	running    atomic.Bool
	state      atomic.Int32
	logger     Logger

	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64

	mu     sync.Mutex
	byKind map[string]uint64
}

// NewLoop creates a loop over d. A queueSize below 1 means DefaultQueueSize.
func NewLoop(d Dispatcher, queueSize int) *Loop {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		dispatcher: d,
		queue:      make(chan *Call, queueSize),
		done:       make(chan struct{}),
		logger:     noopLogger{},
		byKind:     make(map[string]uint64),
	}
}

// SetLogger sets the logger. Call before Run.
func (l *Loop) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Submit queues call and waits for its reply.
//
// It returns ErrShuttingDown once the loop has stopped, and ctx.Err() if ctx
// ends first. The returned error is unclassified; transports use Classify.
func (l *Loop) Submit(ctx context.Context, call *Call) (any, error) {
	defer call.queued()

	select {
	case <-l.done:
		return nil, ErrShuttingDown
	default:
	}

	l.submitted.Add(1)

	select {
	case l.queue <- call:
		call.queued()
	case <-l.done:
		l.observe(ErrShuttingDown)
		return nil, ErrShuttingDown
	case <-ctx.Done():
		l.observe(ctx.Err())
		return nil, ctx.Err()
	}

	var res Result
	select {
	case res = <-call.reply:
	case <-l.done:
		r, ok := call.tryResult()
		if !ok {
			r = Result{Err: ErrShuttingDown}
		}
		res = r
	case <-ctx.Done():
		l.observe(ctx.Err())
		return nil, ctx.Err()
	}

	l.observe(res.Err)
	return res.Value, res.Err
}

// Run serves the queue until ctx is cancelled or lost delivers an error.
//
// The loop alternates between two states. Draining dispatches whatever is
// already queued without blocking. Waiting blocks until a call, a shutdown
// request or a transport failure arrives. Cancellation is only observed
// between calls; a handler in progress always completes.
//
// On return every call still queued is answered with ErrShuttingDown. Run
// returns nil on cancellation and an error wrapping ErrTransportLost when
// the transport goes away.
func (l *Loop) Run(ctx context.Context, lost <-chan error) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("service: loop already running")
	}
	defer l.stop()

	l.logger.Info("request loop started", "queue_size", cap(l.queue))

	l.setState(stateDraining)
	for {
		switch l.currentState() {
		case stateDraining:
			if ctx.Err() != nil {
				l.logger.Info("request loop stopping", "reason", "shutdown")
				return nil
			}
			select {
			case call := <-l.queue:
				l.dispatch(ctx, call)
			default:
				l.setState(stateWaiting)
			}

		case stateWaiting:
			select {
			case <-ctx.Done():
				l.logger.Info("request loop stopping", "reason", "shutdown")
				return nil
			case err := <-lost:
				l.logger.Error("transport lost", "error", err)
				if err == nil {
					return ErrTransportLost
				}
				return fmt.Errorf("%w: %w", ErrTransportLost, err)
			case call := <-l.queue:
				l.dispatch(ctx, call)
				l.setState(stateDraining)
			}
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) dispatch(ctx context.Context, call *Call) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("handler panicked",
				"method", call.Method,
				"call_id", call.ID,
				"panic", fmt.Sprint(r),
			)
			call.Reply(nil, fmt.Errorf("service: %s handler panicked: %v", call.Method, r))
		}
	}()

	ctx = brightness.WithOrigin(ctx, brightness.Origin{Caller: call.Caller, CallID: call.ID})
	l.dispatcher.Dispatch(ctx, call)

	l.logger.Debug("call dispatched",
		"method", call.Method,
		"call_id", call.ID,
		"caller", call.Caller,
		"duration", time.Since(start),
	)
}

func (l *Loop) stop() {
	l.setState(stateStopped)
	l.doneOnce.Do(func() { close(l.done) })

	drained := 0
	for {
		select {
		case call := <-l.queue:
			call.Reply(nil, ErrShuttingDown)
			drained++
		default:
			if drained > 0 {
				l.logger.Warn("answered queued calls at shutdown", "count", drained)
			}
			l.logger.Info("request loop stopped")
			return
		}
	}
}

func (l *Loop) setState(s loopState) {
	l.state.Store(int32(s))
}

func (l *Loop) currentState() loopState {
	return loopState(l.state.Load())
}

func (l *Loop) observe(err error) {
	if err == nil {
		l.succeeded.Add(1)
		return
	}
	l.failed.Add(1)
	kind := KindOf(err).String()
	l.mu.Lock()
	l.byKind[kind]++
	l.mu.Unlock()
}

// Stats is a point-in-time view of the loop counters.
type Stats struct {
	State     string            `json:"state"`
	Queued    int               `json:"queued"`
	Submitted uint64            `json:"submitted"`
	Succeeded uint64            `json:"succeeded"`
	Failed    uint64            `json:"failed"`
	ByKind    map[string]uint64 `json:"failed_by_kind"`
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	byKind := make(map[string]uint64, len(l.byKind))
	for k, v := range l.byKind {
		byKind[k] = v
	}
	l.mu.Unlock()

	return Stats{
		State:     l.currentState().String(),
		Queued:    len(l.queue),
		Submitted: l.submitted.Load(),
		Succeeded: l.succeeded.Load(),
		Failed:    l.failed.Load(),
		ByKind:    byKind,
	}
}
