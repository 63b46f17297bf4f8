package workflow

import (
	"sync"
	"time"
)

// Timer polls the machine on an interval and reports the elapsed time of
// the step in focus, for live display. It only reads from the machine, so
// starting or stopping it any number of times never changes a recorded
// duration.
type Timer struct {
	m        *Machine
	interval time.Duration
	onTick   func(stepID string, elapsed time.Duration)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTimer creates a stopped timer.
func NewTimer(m *Machine, interval time.Duration, onTick func(stepID string, elapsed time.Duration)) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{m: m, interval: interval, onTick: onTick}
}

// Start begins polling. Starting a running timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.stop, t.done)
}

// Stop halts polling and waits for the poller to exit. Stopping a stopped
// timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the poller is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Timer) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			id := t.m.CurrentStepID()
			if id == "" || t.onTick == nil {
				continue
			}
			t.onTick(id, t.m.Elapsed(id))
		}
	}
}
