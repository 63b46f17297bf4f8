// Package session binds one troubleshooting session together: the problem
// being worked on, the candidate solutions, the workflow state machine, and
// the persisted history and bookmarks.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/bookmarks"
	"github.com/ormasoftchile/remedy/pkg/ecosystem/recorder"
	"github.com/ormasoftchile/remedy/pkg/evidence"
	"github.com/ormasoftchile/remedy/pkg/history"
	"github.com/ormasoftchile/remedy/pkg/kv"
	"github.com/ormasoftchile/remedy/pkg/notify"
	"github.com/ormasoftchile/remedy/pkg/snapshot"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// Solution is a candidate fix produced upstream. remedy does not interpret
// it beyond an optional "title" key for display.
type Solution map[string]any

// Title returns the solution's "title" value, if it is a string.
func (s Solution) Title() string {
	t, _ := s["title"].(string)
	return t
}

// Options configure a Session. The zero value gives the default catalog
// started on its first step.
type Options struct {
	ID                string // generated when empty
	Catalog           *workflow.Catalog
	EntryStep         string
	ValidationTimeout time.Duration
	ExportedBy        string
	RangeDays         int

	// RedactEnv names environment variables whose values are scrubbed from
	// failure notes before they are written to history.
	RedactEnv   []string
	RedactRules []recorder.Rule

	Logger   *zap.Logger
	Sink     notify.Sink
	Channel  notify.Channel
	Insights analytics.InsightSource
	Clock    func() time.Time
}

// Session is one troubleshooting session.
type Session struct {
	ID        string
	Machine   *workflow.Machine
	Ledger    *history.Ledger
	Bookmarks *bookmarks.Book

	mu          sync.RWMutex
	problem     string
	solutions   []Solution
	attachments []evidence.Attachment

	opts Options
	log  *zap.Logger
}

// New starts a session whose history and bookmarks live in store.
func New(store kv.Store, opts Options) (*Session, error) {
	if opts.Catalog == nil {
		opts.Catalog = workflow.DefaultCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = notify.Discard
	}
	if opts.Channel == nil {
		opts.Channel = notify.NopChannel{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	s := &Session{ID: opts.ID, opts: opts}
	s.log = opts.Logger.With(zap.String("session", s.ID))

	ledger, err := history.Open(store, s.log)
	if err != nil {
		return nil, err
	}
	book, err := bookmarks.Open(store, s.log)
	if err != nil {
		return nil, err
	}
	rec := recorder.New(ledger)
	rec.SetSecrets(opts.RedactEnv)
	if err := rec.SetRules(opts.RedactRules); err != nil {
		return nil, err
	}

	steps, err := workflow.BuildInitialSteps(opts.Catalog, opts.EntryStep)
	if err != nil {
		return nil, fmt.Errorf("seed workflow: %w", err)
	}
	m, err := workflow.NewMachine(steps,
		workflow.WithClock(opts.Clock),
		workflow.WithRunner(workflow.Runner{Timeout: opts.ValidationTimeout}),
		workflow.WithRecorder(rec),
		workflow.WithNotifier(opts.Sink),
		workflow.WithChannel(opts.Channel),
		workflow.WithEnv(s.env),
		workflow.WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}

	s.Machine = m
	s.Ledger = ledger
	s.Bookmarks = book
	s.log.Debug("session started", zap.String("catalog", opts.Catalog.Name), zap.String("entry", m.CurrentStepID()))
	return s, nil
}

// SetProblem records the problem description, typically text extracted
// from an uploaded error screenshot.
func (s *Session) SetProblem(text string) {
	s.mu.Lock()
	s.problem = text
	s.mu.Unlock()
}

func (s *Session) Problem() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.problem
}

// SetSolutions replaces the candidate solutions.
func (s *Session) SetSolutions(sols []Solution) {
	s.mu.Lock()
	s.solutions = slices.Clone(sols)
	s.mu.Unlock()
}

func (s *Session) Solutions() []Solution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.solutions)
}

// Attach adds the file at path, typically a screenshot of the error, as
// evidence. Attaching the same content twice returns the first attachment.
func (s *Session) Attach(path string) (evidence.Attachment, error) {
	a, err := evidence.NewAttachment(path, s.opts.Clock())
	if err != nil {
		return evidence.Attachment{}, err
	}
	s.mu.Lock()
	for _, have := range s.attachments {
		if have.SHA256 == a.SHA256 {
			s.mu.Unlock()
			return have, nil
		}
	}
	s.attachments = append(s.attachments, *a)
	s.mu.Unlock()
	s.log.Info("evidence attached", zap.String("name", a.Name), zap.String("media_type", a.MediaType), zap.Int64("size", a.Size))
	return *a, nil
}

func (s *Session) Attachments() []evidence.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.attachments)
}

// env is what validation expressions see.
func (s *Session) env() workflow.Env {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return workflow.Env{
		"problem":     s.problem,
		"solutions":   len(s.solutions),
		"attachments": len(s.attachments),
		"history":     s.Ledger.Len(),
	}
}

// Analytics computes the current analytics snapshot.
func (s *Session) Analytics() analytics.Snapshot {
	return analytics.ComputeAnalytics(s.Machine.Steps(), s.Machine.Durations())
}

// Metrics computes ledger metrics over rangeDays; a negative value uses the
// session's configured range.
func (s *Session) Metrics(rangeDays int) analytics.Metrics {
	if rangeDays < 0 {
		rangeDays = s.opts.RangeDays
	}
	return analytics.ComputeMetrics(s.Ledger.All(), s.Machine.Steps(), rangeDays, s.opts.Clock())
}

// Report builds the full analytics report. An insight source failure is
// logged and the report is returned without insights.
func (s *Session) Report(ctx context.Context) analytics.Report {
	r, err := analytics.BuildReport(ctx, analytics.ReportInput{
		SessionID: s.ID,
		Steps:     s.Machine.Steps(),
		Durations: s.Machine.Durations(),
		Entries:   s.Ledger.All(),
		RangeDays: s.opts.RangeDays,
		Now:       s.opts.Clock(),
		Source:    s.opts.Insights,
	})
	if err != nil {
		s.log.Warn("insight source failed", zap.Error(err))
	}
	return r
}

// Export snapshots the workflow.
func (s *Session) Export() *snapshot.Document {
	return snapshot.Export(s.Machine.Steps(), s.Analytics(), s.opts.ExportedBy, s.opts.Clock())
}

// Import replaces the workflow with the document in raw. The ledger is not
// touched. On any error the current workflow is kept.
func (s *Session) Import(raw []byte) (*snapshot.Result, error) {
	res, err := snapshot.Import(raw)
	if err != nil {
		return nil, err
	}
	if err := s.Machine.Replace(res.Steps); err != nil {
		if errors.Is(err, workflow.ErrBusy) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", snapshot.ErrInvalidSchema, err)
	}
	s.notify(notify.KindImported, "", fmt.Sprintf("imported %d steps", len(res.Steps)))
	return res, nil
}

// ClearHistory empties the ledger. Confirmation is the caller's job.
func (s *Session) ClearHistory() error {
	n := s.Ledger.Len()
	if err := s.Ledger.Clear(); err != nil {
		return err
	}
	s.notify(notify.KindHistoryCleared, "", fmt.Sprintf("cleared %d history entries", n))
	return nil
}

func (s *Session) notify(kind notify.Kind, stepID, msg string) {
	ev := notify.Event{Kind: kind, StepID: stepID, Message: msg, Time: s.opts.Clock()}
	s.opts.Sink.Notify(ev)
	if err := s.opts.Channel.Broadcast(ev); err != nil {
		s.log.Warn("collaboration broadcast failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
