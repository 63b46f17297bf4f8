package workflow

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestTimer_StartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, _, clock := newTestMachine(t, "a")
	clock.Advance(3 * time.Second)

	var ticks atomic.Int32
	var last atomic.Int64
	timer := NewTimer(m, time.Millisecond, func(id string, elapsed time.Duration) {
		ticks.Add(1)
		last.Store(int64(elapsed))
	})

	timer.Start()
	timer.Start()
	if !timer.Running() {
		t.Fatal("timer not running")
	}
	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	timer.Stop()
	timer.Stop()

	if ticks.Load() == 0 {
		t.Fatal("no ticks observed")
	}
	if got := time.Duration(last.Load()); got != 3*time.Second {
		t.Errorf("reported elapsed = %v, want 3s", got)
	}
	if got := m.Durations()["a"]; got != 0 {
		t.Errorf("timer changed recorded duration to %v", got)
	}

	timer.Start()
	timer.Stop()
	if timer.Running() {
		t.Error("timer still running after Stop")
	}
}
