package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Result is the outcome of one call.
type Result struct {
	Value any
	Err   error
}

// Call is one in-flight request.
//
// A transport creates it when a message arrives, the loop hands it to
// exactly one handler, and it is finished by exactly one Reply.
type Call struct {
	ID     string
	Method string
	Caller string
	Args   []any

	reply chan Result
	once  sync.Once

	onQueued   func()
	queuedOnce sync.Once
}

// NewCall creates a call for method with the given arguments.
// Caller identifies the sender (bus unique name, "mqtt", ...).
func NewCall(method, caller string, args ...any) *Call {
	return &Call{
		ID:     uuid.NewString(),
		Method: method,
		Caller: caller,
		Args:   args,
		reply:  make(chan Result, 1),
	}
}

// Reply finishes the call. Only the first reply counts; later ones are
// dropped and Reply reports false.
func (c *Call) Reply(value any, err error) bool {
	sent := false
	c.once.Do(func() {
		c.reply <- Result{Value: value, Err: err}
		sent = true
	})
	return sent
}

// OnQueued registers f to run once, when the loop has accepted the call
// onto its queue or Submit has given up on it. Set it before Submit.
func (c *Call) OnQueued(f func()) {
	c.onQueued = f
}

func (c *Call) queued() {
	c.queuedOnce.Do(func() {
		if c.onQueued != nil {
			c.onQueued()
		}
	})
}

// Wait blocks until the call is replied or ctx is done.
func (c *Call) Wait(ctx context.Context) (Result, error) {
	select {
	case r := <-c.reply:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// tryResult returns the reply if one is already available.
func (c *Call) tryResult() (Result, bool) {
	select {
	case r := <-c.reply:
		return r, true
	default:
		return Result{}, false
	}
}
