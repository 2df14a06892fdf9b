package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
	"github.com/nerrad567/gray-logic-backlightd/internal/capture"
)

// fakeSink records what it receives. A non-nil gate blocks each delivery
// until it is closed.
type fakeSink struct {
	name string
	err  error
	gate chan struct{}

	mu       sync.Mutex
	changes  []brightness.Change
	captures []capture.Result
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Change(_ context.Context, c brightness.Change) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
	return s.err
}

func (s *fakeSink) Capture(_ context.Context, r capture.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures = append(s.captures, r)
	return s.err
}

func (s *fakeSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes), len(s.captures)
}

func change(device string, value int) brightness.Change {
	return brightness.Change{Device: device, Subsystem: "backlight", Value: value, Max: 100, At: time.Now().UTC()}
}

func TestFanout_DeliversInOrderToEverySink(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}

	fan := NewFanout(8)
	fan.Add(a)
	fan.Add(b)
	fan.Add(nil)
	fan.Start(context.Background())

	ctx := context.Background()
	for v := range 5 {
		fan.RecordChange(ctx, change("intel_backlight", v))
	}
	fan.RecordCapture(ctx, capture.Result{Device: "video0", Frames: 3, Average: 0.5})
	fan.Close()

	for _, s := range []*fakeSink{a, b} {
		changes, captures := s.counts()
		if changes != 5 || captures != 1 {
			t.Errorf("sink %s got %d changes, %d captures; want 5, 1", s.name, changes, captures)
		}
		for i, c := range s.changes {
			if c.Value != i {
				t.Errorf("sink %s change %d has value %d", s.name, i, c.Value)
			}
		}
	}

	if got := fan.Sinks(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Sinks() = %v", got)
	}
	if st := fan.Stats(); st.Delivered != 12 || st.Failed != 0 || st.Dropped != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	bad := &fakeSink{name: "bad", err: errors.New("broker unreachable")}
	good := &fakeSink{name: "good"}

	fan := NewFanout(4)
	fan.Add(bad)
	fan.Add(good)
	fan.Start(context.Background())

	fan.RecordChange(context.Background(), change("intel_backlight", 10))
	fan.Close()

	if n, _ := good.counts(); n != 1 {
		t.Errorf("good sink got %d changes, want 1", n)
	}
	if st := fan.Stats(); st.Failed != 1 || st.Delivered != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestFanout_DropsWhenFull(t *testing.T) {
	slow := &fakeSink{name: "slow", gate: make(chan struct{})}

	fan := NewFanout(1)
	fan.Add(slow)
	fan.Start(context.Background())

	ctx := context.Background()
	// The first record is taken by the delivery goroutine and blocks on the
	// gate; wait for that so the queue is empty again.
	fan.RecordChange(ctx, change("intel_backlight", 1))
	deadline := time.Now().Add(2 * time.Second)
	for fan.Stats().Queued != 0 {
		if time.Now().After(deadline) {
			t.Fatal("delivery goroutine never picked up the first record")
		}
		time.Sleep(time.Millisecond)
	}

	fan.RecordChange(ctx, change("intel_backlight", 2)) // fills the queue
	fan.RecordChange(ctx, change("intel_backlight", 3)) // dropped

	close(slow.gate)
	fan.Close()

	if n, _ := slow.counts(); n != 2 {
		t.Errorf("delivered %d changes, want 2", n)
	}
	if st := fan.Stats(); st.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", st.Dropped)
	}
}

func TestFanout_DeliversAfterContextCancelled(t *testing.T) {
	s := &fakeSink{name: "s", gate: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	fan := NewFanout(4)
	fan.Add(s)
	fan.Start(ctx)

	fan.RecordChange(ctx, change("intel_backlight", 1))
	fan.RecordChange(ctx, change("intel_backlight", 2))
	cancel()
	close(s.gate)
	fan.Close()

	if n, _ := s.counts(); n != 2 {
		t.Errorf("delivered %d changes after cancel, want 2", n)
	}
}

func TestFanout_ClosedOrEmpty(t *testing.T) {
	t.Run("no sinks", func(t *testing.T) {
		fan := NewFanout(0)
		fan.Start(context.Background())
		fan.RecordChange(context.Background(), change("intel_backlight", 1))
		if st := fan.Stats(); st.Queued != 0 || st.Dropped != 0 {
			t.Errorf("Stats() = %+v, want nothing queued", st)
		}
		fan.Close()
	})

	t.Run("after close", func(t *testing.T) {
		s := &fakeSink{name: "s"}
		fan := NewFanout(4)
		fan.Add(s)
		fan.Start(context.Background())
		fan.Close()
		fan.Close()

		fan.RecordChange(context.Background(), change("intel_backlight", 1))
		if n, _ := s.counts(); n != 0 {
			t.Errorf("record after Close delivered %d times", n)
		}
	})

	t.Run("never started", func(t *testing.T) {
		s := &fakeSink{name: "s"}
		fan := NewFanout(4)
		fan.Add(s)
		fan.RecordChange(context.Background(), change("intel_backlight", 1))
		fan.Close()
		fan.Start(context.Background())

		if n, _ := s.counts(); n != 0 {
			t.Errorf("unstarted fanout delivered %d changes", n)
		}
	})
}
