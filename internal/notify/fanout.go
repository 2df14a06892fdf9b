package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
	"github.com/nerrad567/gray-logic-backlightd/internal/capture"
)

// DefaultQueueSize is the number of records buffered ahead of the sinks.
const DefaultQueueSize = 256

// Sink receives records. Either method may be a no-op.
type Sink interface {
	Name() string
	Change(ctx context.Context, c brightness.Change) error
	Capture(ctx context.Context, r capture.Result) error
}

// Logger defines the logging interface used by the Fanout.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// record holds exactly one of change or result.
type record struct {
	change *brightness.Change
	result *capture.Result
}

// Fanout implements brightness.Recorder and capture.Recorder.
type Fanout struct {
	logger Logger
	queue  chan record

	mu      sync.RWMutex
	sinks   []Sink
	closed  bool
	started bool

	cancel context.CancelFunc
	done   chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

var (
	_ brightness.Recorder = (*Fanout)(nil)
	_ capture.Recorder    = (*Fanout)(nil)
)

// NewFanout creates a Fanout with the given queue size. A size below 1
// uses DefaultQueueSize.
func NewFanout(queueSize int) *Fanout {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Fanout{
		logger: noopLogger{},
		queue:  make(chan record, queueSize),
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the fanout.
func (f *Fanout) SetLogger(logger Logger) {
	f.logger = logger
}

// Add registers a sink. Sinks added after Start receive later records only.
func (f *Fanout) Add(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Sinks returns the names of the registered sinks.
func (f *Fanout) Sinks() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Start launches the delivery goroutine. Cancelling ctx does not stop
// delivery: records queued before Close still reach the sinks.
func (f *Fanout) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return
	}
	f.started = true
	ctx, f.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go f.run(ctx)
}

// Close stops accepting records, delivers what is queued and waits for the
// delivery goroutine. Without Start, queued records are discarded.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.queue)
	started := f.started
	f.mu.Unlock()

	if started {
		<-f.done
		f.cancel()
	}
}

// RecordChange queues a brightness change.
func (f *Fanout) RecordChange(_ context.Context, c brightness.Change) {
	f.enqueue(record{change: &c})
}

// RecordCapture queues a capture result.
func (f *Fanout) RecordCapture(_ context.Context, r capture.Result) {
	f.enqueue(record{result: &r})
}

func (f *Fanout) enqueue(rec record) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed || len(f.sinks) == 0 {
		return
	}
	select {
	case f.queue <- rec:
	default:
		f.dropped.Add(1)
		f.logger.Warn("notification queue full, record dropped", "dropped_total", f.dropped.Load())
	}
}

func (f *Fanout) run(ctx context.Context) {
	defer close(f.done)
	for rec := range f.queue {
		f.deliver(ctx, rec)
	}
}

func (f *Fanout) deliver(ctx context.Context, rec record) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		var err error
		switch {
		case rec.change != nil:
			err = s.Change(ctx, *rec.change)
		case rec.result != nil:
			err = s.Capture(ctx, *rec.result)
		}
		if err != nil {
			f.failed.Add(1)
			f.logger.Warn("notification sink failed", "sink", s.Name(), "error", err)
			continue
		}
		f.delivered.Add(1)
	}
}

// Stats is a snapshot of delivery counters.
type Stats struct {
	Sinks     []string `json:"sinks"`
	Queued    int      `json:"queued"`
	Delivered uint64   `json:"delivered"`
	Failed    uint64   `json:"failed"`
	Dropped   uint64   `json:"dropped"`
}

// Stats returns the delivery counters.
func (f *Fanout) Stats() Stats {
	return Stats{
		Sinks:     f.Sinks(),
		Queued:    len(f.queue),
		Delivered: f.delivered.Load(),
		Failed:    f.failed.Load(),
		Dropped:   f.dropped.Load(),
	}
}
