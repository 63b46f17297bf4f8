// Package notify defines the collaborators the workflow engine reports to:
// a Sink for notification-worthy events and a Channel for collaboration
// broadcasts. Both are injected; neither is a package-level singleton.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind enumerates notification events.
type Kind string

const (
	KindStepCompleted      Kind = "step_completed"
	KindStepSkipped        Kind = "step_skipped"
	KindStepFailed         Kind = "step_failed"
	KindValidationFailed   Kind = "validation_failed"
	KindRequirementsNotMet Kind = "requirements_not_met"
	KindImported           Kind = "imported"
	KindHistoryCleared     Kind = "history_cleared"
)

// Event is a single notification.
type Event struct {
	Kind    Kind      `json:"kind"`
	StepID  string    `json:"stepId,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Sink receives notification events. Implementations must not block.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Notify(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Notify(e Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(e)
		}
	}
}

// LogSink writes events to a zap logger.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Notify(e Event) {
	if s.Log == nil {
		return
	}
	fields := []zap.Field{zap.String("kind", string(e.Kind))}
	if e.StepID != "" {
		fields = append(fields, zap.String("step", e.StepID))
	}
	switch e.Kind {
	case KindStepFailed, KindValidationFailed, KindRequirementsNotMet:
		s.Log.Info(e.Message, fields...)
	default:
		s.Log.Debug(e.Message, fields...)
	}
}

// Buffer collects events in memory. Safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Notify(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Events returns a copy of the collected events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Drain returns the collected events and empties the buffer.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Channel broadcasts workflow progress to other participants.
type Channel interface {
	Broadcast(Event) error
}

// NopChannel is a Channel with no participants.
type NopChannel struct{}

func (NopChannel) Broadcast(Event) error { return nil }
