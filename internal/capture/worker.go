package capture

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueSize is used when NewWorker is given a non-positive size.
const DefaultQueueSize = 4

// Capturer produces the average brightness of frames captured from devNode.
type Capturer interface {
	Capture(ctx context.Context, devNode string, frames int) (float64, error)
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(ctx context.Context, devNode string, frames int) (float64, error)

// Capture implements Capturer.
func (f CapturerFunc) Capture(ctx context.Context, devNode string, frames int) (float64, error) {
	return f(ctx, devNode, frames)
}

// Result is a finished capture, as seen by a Recorder.
type Result struct {
	Device   string
	DevNode  string
	Caller   string
	CallID   string
	Frames   int
	Average  float64
	Duration time.Duration
	At       time.Time
}

// Recorder receives successful capture results.
type Recorder interface {
	RecordCapture(ctx context.Context, r Result)
}

// Logger defines the logging interface used by the Worker.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Job is one capture request.
type Job struct {
	Device  string
	DevNode string
	Frames  int

	// Caller and CallID are copied into the Result for attribution.
	Caller string
	CallID string

	// Done is called exactly once from the worker goroutine.
	Done func(avg float64, err error)
}

// Worker runs capture jobs on a dedicated goroutine.
type Worker struct {
	capturer Capturer
	recorder Recorder
	logger   Logger

	mu      sync.Mutex
	jobs    chan Job
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a Worker with room for queueSize pending jobs.
func NewWorker(c Capturer, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Worker{
		capturer: c,
		logger:   noopLogger{},
		jobs:     make(chan Job, queueSize),
	}
}

// SetLogger sets the logger for the worker.
func (w *Worker) SetLogger(logger Logger) {
	w.logger = logger
}

// SetRecorder sets where successful results are reported.
func (w *Worker) SetRecorder(r Recorder) {
	w.recorder = r
}

// Start launches the worker goroutine. Cancelling ctx aborts the running
// capture; Stop must still be called to release the goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Enqueue submits a job without blocking.
//
// It returns ErrInvalidFrames for a bad frame count, ErrBusy if the queue
// is full and ErrStopped after Stop. On error Done is not called.
func (w *Worker) Enqueue(job Job) error {
	if job.Frames < 1 {
		return ErrInvalidFrames
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrStopped
	}

	select {
	case w.jobs <- job:
		return nil
	default:
		return ErrBusy
	}
}

// Stop cancels the running capture, fails queued jobs with ErrStopped and
// waits for the goroutine to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.jobs)
	started := w.started
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	if !started {
		for job := range w.jobs {
			finish(job, 0, ErrStopped)
		}
		return
	}
	w.wg.Wait()
}

// Pending returns the number of queued jobs.
func (w *Worker) Pending() int {
	return len(w.jobs)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for job := range w.jobs {
		if ctx.Err() != nil {
			finish(job, 0, ErrStopped)
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	start := time.Now()
	avg, err := w.capturer.Capture(ctx, job.DevNode, job.Frames)
	elapsed := time.Since(start)

	if err != nil {
		w.logger.Warn("frame capture failed",
			"device", job.Device,
			"frames", job.Frames,
			"duration", elapsed,
			"error", err,
		)
		finish(job, 0, err)
		return
	}

	w.logger.Info("frames captured",
		"device", job.Device,
		"frames", job.Frames,
		"average", avg,
		"duration", elapsed,
	)
	if w.recorder != nil {
		w.recorder.RecordCapture(ctx, Result{
			Device:   job.Device,
			DevNode:  job.DevNode,
			Caller:   job.Caller,
			CallID:   job.CallID,
			Frames:   job.Frames,
			Average:  avg,
			Duration: elapsed,
			At:       start.UTC(),
		})
	}
	finish(job, avg, nil)
}

func finish(job Job, avg float64, err error) {
	if job.Done != nil {
		job.Done(avg, err)
	}
}
