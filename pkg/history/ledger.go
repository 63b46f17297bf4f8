// Package history implements the append-only ledger of step outcomes.
package history

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/remedy/pkg/kv"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// Key is the store key the ledger is persisted under.
const Key = "remedy.history"

// Entry is one recorded step outcome. Entries are never modified.
type Entry struct {
	StepID    string          `json:"stepId"`
	StepTitle string          `json:"stepTitle"`
	Status    workflow.Status `json:"status"`
	Duration  int64           `json:"duration"` // milliseconds
	Timestamp time.Time       `json:"timestamp"`
	Notes     string          `json:"notes,omitempty"`
}

// Elapsed returns Duration as a time.Duration.
func (e Entry) Elapsed() time.Duration {
	return time.Duration(e.Duration) * time.Millisecond
}

// FromOutcome converts a state machine outcome into a ledger entry.
func FromOutcome(o workflow.Outcome) Entry {
	return Entry{
		StepID:    o.StepID,
		StepTitle: o.StepTitle,
		Status:    o.Status,
		Duration:  o.Duration.Milliseconds(),
		Timestamp: o.Timestamp,
		Notes:     o.Notes,
	}
}

// Ledger holds entries in append order and mirrors them to a kv.Store as
// one JSON array.
type Ledger struct {
	mu      sync.Mutex
	store   kv.Store
	entries []Entry
	log     *zap.Logger
}

// Open loads the ledger from store. A value that does not decode is
// treated as an empty ledger; only store I/O failures are returned.
func Open(store kv.Store, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{store: store, log: log}

	raw, ok, err := store.Get(Key)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !ok || raw == "" {
		return l, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Warn("history ledger is corrupt; starting empty", zap.Error(err))
		return l, nil
	}
	l.entries = entries
	return l, nil
}

// Append adds an entry and persists the ledger. On a persistence error the
// entry is not kept.
func (l *Ledger) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := append(slices.Clip(l.entries), e)
	if err := l.persist(next); err != nil {
		return err
	}
	l.entries = next
	return nil
}

// Record implements workflow.Recorder.
func (l *Ledger) Record(o workflow.Outcome) error {
	return l.Append(FromOutcome(o))
}

// All returns the entries, most recent first.
func (l *Ledger) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := slices.Clone(l.entries)
	slices.Reverse(out)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the ledger and removes it from the store. Any confirmation
// belongs to the caller.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Remove(Key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	l.entries = nil
	return nil
}

func (l *Ledger) persist(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := l.store.Set(Key, string(data)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
