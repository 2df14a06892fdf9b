// Package capture runs camera frame captures off the request loop.
//
// Capturing frames can take seconds (or hang on a wedged camera), so the
// captureframes method must never run on the loop that serves brightness
// calls. The loop hands a Job to a Worker and moves on; the Worker owns one
// goroutine, runs jobs one at a time and reports each result through the
// job's Done callback.
//
//	w := capture.NewWorker(&capture.CommandCapturer{Binary: "/usr/libexec/backlightd-capture"}, 4)
//	w.Start(ctx)
//	defer w.Stop()
//
//	err := w.Enqueue(capture.Job{
//	    Device:  "video0",
//	    DevNode: "/dev/video0",
//	    Frames:  5,
//	    Done:    func(avg float64, err error) { ... },
//	})
//
// The pixel averaging itself is opaque to backlightd: a Capturer is any
// function from (device node, frame count) to an average brightness.
package capture
