package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// TraceRecord is one line of the JSONL audit trail.
type TraceRecord struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Event     Event     `json:"event"`
}

// TraceWriter is a Sink that appends every event to a JSONL stream.
type TraceWriter struct {
	mu        sync.Mutex
	w         io.Writer
	closer    io.Closer
	enc       *json.Encoder
	sessionID string
	err       error
}

// NewTraceWriter writes trace records for sessionID to w.
func NewTraceWriter(w io.Writer, sessionID string) *TraceWriter {
	return &TraceWriter{
		w:         w,
		enc:       json.NewEncoder(w),
		sessionID: sessionID,
	}
}

// NewTraceFile appends trace records to the file at path.
func NewTraceFile(path, sessionID string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewTraceWriter(f, sessionID)
	tw.closer = f
	return tw, nil
}

// Notify implements Sink. The first write error is kept and reported by Err;
// later events are dropped.
func (tw *TraceWriter) Notify(e Event) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.err != nil {
		return
	}
	rec := TraceRecord{
		SessionID: tw.sessionID,
		Timestamp: time.Now().UTC(),
		Event:     e,
	}
	if err := tw.enc.Encode(rec); err != nil {
		tw.err = fmt.Errorf("encode trace record: %w", err)
	}
}

// Err returns the first write error, if any.
func (tw *TraceWriter) Err() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.err
}

// Close closes the underlying file when the writer owns one.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}
