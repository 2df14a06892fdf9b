package capture

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// shell returns a capturer that runs script under /bin/sh with the device
// node and frame count as $1 and $2.
func shell(t *testing.T, script string) *CommandCapturer {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	return &CommandCapturer{Binary: "/bin/sh", Args: []string{"-c", script, "capture"}}
}

func TestCommandCapturer_ParsesOutput(t *testing.T) {
	c := shell(t, `test "$1" = /dev/video0 || exit 3; echo "0.$2"`)

	avg, err := c.Capture(context.Background(), "/dev/video0", 7)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if avg != 0.7 {
		t.Errorf("Capture() = %v, want 0.7", avg)
	}
}

func TestCommandCapturer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr error
		wantMsg string
	}{
		{"non-zero exit", `echo "no camera" >&2; exit 1`, ErrCaptureFailed, "no camera"},
		{"not a number", `echo bright`, ErrInvalidOutput, "bright"},
		{"empty output", `true`, ErrInvalidOutput, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := shell(t, tt.script).Capture(context.Background(), "/dev/video0", 1)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Capture() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Capture() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestCommandCapturer_Timeout(t *testing.T) {
	c := shell(t, `sleep 5; echo 1`)
	c.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := c.Capture(context.Background(), "/dev/video0", 1)
	if !errors.Is(err, ErrCaptureFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Capture() error = %v, want ErrCaptureFailed wrapping DeadlineExceeded", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Capture() did not stop the helper at the timeout")
	}
}

func TestCommandCapturer_InvalidFrames(t *testing.T) {
	c := &CommandCapturer{Binary: "/nonexistent"}
	if _, err := c.Capture(context.Background(), "/dev/video0", 0); !errors.Is(err, ErrInvalidFrames) {
		t.Errorf("Capture(frames=0) error = %v, want ErrInvalidFrames", err)
	}
}
