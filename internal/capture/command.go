package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// maxStderr bounds how much helper stderr ends up in an error message.
const maxStderr = 512

// CommandCapturer captures frames by running an external helper:
//
//	<Binary> <Args...> <devNode> <frames>
//
// The helper prints the average brightness as a single floating point
// number on stdout and exits 0.
type CommandCapturer struct {
	// Binary is the path to the helper executable.
	Binary string

	// Args are passed before the device node and frame count.
	Args []string

	// Env are additional environment variables (key=value format).
	Env []string

	// Timeout bounds a single capture. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Capture implements Capturer.
func (c *CommandCapturer) Capture(ctx context.Context, devNode string, frames int) (float64, error) {
	if frames < 1 {
		return 0, ErrInvalidFrames
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := make([]string, 0, len(c.Args)+2)
	args = append(args, c.Args...)
	args = append(args, devNode, strconv.Itoa(frames))

	cmd := exec.CommandContext(ctx, c.Binary, args...) //nolint:gosec // Binary comes from the service configuration

	// Own process group so cancellation also reaches the helper's children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	if c.Env != nil {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %w", ErrCaptureFailed, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		if msg != "" {
			return 0, fmt.Errorf("%w: %w: %s", ErrCaptureFailed, err, msg)
		}
		return 0, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	out := strings.TrimSpace(stdout.String())
	avg, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOutput, out)
	}
	return avg, nil
}
