package capture

import "errors"

// Domain errors for frame capture.
var (
	// ErrInvalidFrames is returned for a frame count below one.
	ErrInvalidFrames = errors.New("capture: frame count must be at least 1")

	// ErrBusy is returned when the job queue is full.
	ErrBusy = errors.New("capture: worker busy")

	// ErrStopped is returned when a job is submitted to a stopped worker.
	ErrStopped = errors.New("capture: worker stopped")

	// ErrInvalidOutput is returned when the capture helper prints something
	// other than a single number.
	ErrInvalidOutput = errors.New("capture: helper output is not a number")

	// ErrCaptureFailed is returned when the capture helper exits unsuccessfully.
	ErrCaptureFailed = errors.New("capture: helper failed")
)
