package workflow

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/ormasoftchile/remedy/pkg/notify"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingLedger struct {
	outcomes []Outcome
	err      error
}

func (r *recordingLedger) Record(o Outcome) error {
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, o)
	return nil
}

func abcCatalog() *Catalog {
	return &Catalog{
		APIVersion: APIVersionCatalog,
		Name:       "abc",
		Steps: []Step{
			{ID: "a", Title: "Step A"},
			{ID: "b", Title: "Step B", Requirements: []string{"a"}},
			{ID: "c", Title: "Step C", Requirements: []string{"a", "b"}},
			{ID: "d", Title: "Step D"},
			{ID: "e", Title: "Step E", Optional: true},
		},
	}
}

func newTestMachine(t *testing.T, entry string, opts ...Option) (*Machine, *recordingLedger, *fakeClock) {
	t.Helper()
	steps, err := BuildInitialSteps(abcCatalog(), entry)
	if err != nil {
		t.Fatalf("BuildInitialSteps: %v", err)
	}
	rec := &recordingLedger{}
	clock := newFakeClock()
	opts = append([]Option{WithRecorder(rec), WithClock(clock.Now)}, opts...)
	m, err := NewMachine(steps, opts...)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m, rec, clock
}

func statusOf(t *testing.T, m *Machine, id string) Status {
	t.Helper()
	s, ok := m.Step(id)
	if !ok {
		t.Fatalf("step %q not found", id)
	}
	return s.Status
}

func assertSingleFocus(t *testing.T, m *Machine) {
	t.Helper()
	active := 0
	for _, s := range m.Steps() {
		if s.Status == StatusActive {
			active++
			if s.ID != m.CurrentStepID() {
				t.Errorf("active step %q is not the current step %q", s.ID, m.CurrentStepID())
			}
		}
	}
	if active > 1 {
		t.Errorf("%d active steps, want at most 1", active)
	}
}

func TestMachine_AdvanceCompletesOutgoing(t *testing.T) {
	m, rec, clock := newTestMachine(t, "a")
	ctx := context.Background()

	clock.Advance(90 * time.Second)
	if err := m.AdvanceToStep(ctx, "b", false); err != nil {
		t.Fatalf("advance to b: %v", err)
	}
	if got := statusOf(t, m, "a"); got != StatusCompleted {
		t.Errorf("a = %s, want completed", got)
	}
	if got := statusOf(t, m, "b"); got != StatusActive {
		t.Errorf("b = %s, want active", got)
	}
	if m.CurrentStepID() != "b" {
		t.Errorf("current = %q, want b", m.CurrentStepID())
	}
	if got := m.Durations()["a"]; got != 90*time.Second {
		t.Errorf("duration a = %v, want 90s", got)
	}
	if len(rec.outcomes) != 1 {
		t.Fatalf("recorded %d outcomes, want 1", len(rec.outcomes))
	}
	o := rec.outcomes[0]
	if o.StepID != "a" || o.Status != StatusCompleted || o.Duration != 90*time.Second {
		t.Errorf("outcome = %+v", o)
	}
	assertSingleFocus(t, m)
}

func TestMachine_AdvanceRequirementsNotMet(t *testing.T) {
	m, rec, _ := newTestMachine(t, "a")
	before := m.Steps()

	err := m.AdvanceToStep(context.Background(), "c", false)
	if !errors.Is(err, ErrRequirementsNotMet) {
		t.Fatalf("err = %v, want ErrRequirementsNotMet", err)
	}
	var reqErr *RequirementsError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err is %T, want *RequirementsError", err)
	}
	if !slices.Equal(reqErr.Missing, []string{"Step B"}) {
		t.Errorf("missing = %v, want [Step B]", reqErr.Missing)
	}

	after := m.Steps()
	for i := range before {
		if before[i].Status != after[i].Status {
			t.Errorf("step %s changed %s -> %s", before[i].ID, before[i].Status, after[i].Status)
		}
	}
	if len(rec.outcomes) != 0 {
		t.Errorf("recorded %d outcomes, want 0", len(rec.outcomes))
	}
	if m.CurrentStepID() != "a" {
		t.Errorf("current = %q, want a", m.CurrentStepID())
	}
}

func TestMachine_AdvanceChain(t *testing.T) {
	m, rec, _ := newTestMachine(t, "a")
	ctx := context.Background()

	for _, id := range []string{"b", "c", "d"} {
		if err := m.AdvanceToStep(ctx, id, false); err != nil {
			t.Fatalf("advance to %s: %v", id, err)
		}
		assertSingleFocus(t, m)
	}
	for _, id := range []string{"a", "b", "c"} {
		if got := statusOf(t, m, id); got != StatusCompleted {
			t.Errorf("%s = %s, want completed", id, got)
		}
	}
	if len(rec.outcomes) != 3 {
		t.Errorf("recorded %d outcomes, want 3", len(rec.outcomes))
	}
}

func TestMachine_AdvanceToClosedStep(t *testing.T) {
	m, _, _ := newTestMachine(t, "b")
	err := m.AdvanceToStep(context.Background(), "a", false)
	if !errors.Is(err, ErrStepClosed) {
		t.Errorf("err = %v, want ErrStepClosed", err)
	}
	if got := statusOf(t, m, "b"); got != StatusActive {
		t.Errorf("b = %s, want active", got)
	}
}

func TestMachine_AdvanceUnknownStep(t *testing.T) {
	m, _, _ := newTestMachine(t, "a")
	if err := m.AdvanceToStep(context.Background(), "zz", false); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("err = %v, want ErrUnknownStep", err)
	}
}

func TestMachine_AdvanceBlockedByValidation(t *testing.T) {
	steps, err := BuildInitialSteps(abcCatalog(), "a")
	if err != nil {
		t.Fatal(err)
	}
	steps[0].Rules = []ValidationRule{
		{ID: "has-solutions", Expr: "solutions > 0", ErrorMessage: "no solutions"},
		{ID: "described", Expr: `problem != ""`, ErrorMessage: "no problem"},
	}
	rec := &recordingLedger{}
	buf := &notify.Buffer{}
	m, err := NewMachine(steps,
		WithRecorder(rec),
		WithNotifier(buf),
		WithEnv(func() Env { return Env{"solutions": 0, "problem": ""} }),
	)
	if err != nil {
		t.Fatal(err)
	}

	err = m.AdvanceToStep(context.Background(), "b", false)
	var vErr *ValidationFailedError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want *ValidationFailedError", err)
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Error("errors.Is(err, ErrValidationFailed) = false")
	}
	if !slices.Equal(vErr.Messages, []string{"no solutions", "no problem"}) {
		t.Errorf("messages = %v", vErr.Messages)
	}
	if got := statusOf(t, m, "a"); got != StatusActive {
		t.Errorf("a = %s, want active", got)
	}
	if len(rec.outcomes) != 0 {
		t.Errorf("recorded %d outcomes, want 0", len(rec.outcomes))
	}
	events := buf.Events()
	if len(events) != 1 || events[0].Kind != notify.KindValidationFailed {
		t.Errorf("events = %+v, want one validation_failed", events)
	}

	if err := m.AdvanceToStep(context.Background(), "b", true); err != nil {
		t.Fatalf("advance with skipValidation: %v", err)
	}
	if got := statusOf(t, m, "a"); got != StatusCompleted {
		t.Errorf("a = %s, want completed", got)
	}
}

func TestMachine_SkipNonOptional(t *testing.T) {
	m, rec, _ := newTestMachine(t, "a")
	err := m.SkipStep("d")
	if !errors.Is(err, ErrNotSkippable) {
		t.Fatalf("err = %v, want ErrNotSkippable", err)
	}
	if got := statusOf(t, m, "d"); got != StatusPending {
		t.Errorf("d = %s, want pending", got)
	}
	if len(rec.outcomes) != 0 {
		t.Errorf("recorded %d outcomes, want 0", len(rec.outcomes))
	}
}

func TestMachine_SkipOptional(t *testing.T) {
	m, rec, _ := newTestMachine(t, "a")
	if err := m.SkipStep("e"); err != nil {
		t.Fatalf("skip e: %v", err)
	}
	if got := statusOf(t, m, "e"); got != StatusSkipped {
		t.Errorf("e = %s, want skipped", got)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].Status != StatusSkipped || rec.outcomes[0].Duration != 0 {
		t.Errorf("outcomes = %+v, want one zero-duration skip", rec.outcomes)
	}
	if err := m.SkipStep("e"); !errors.Is(err, ErrStepClosed) {
		t.Errorf("second skip err = %v, want ErrStepClosed", err)
	}
	assertSingleFocus(t, m)
}

func TestMachine_MarkStepFailed(t *testing.T) {
	m, rec, clock := newTestMachine(t, "a")

	// Pending step with unmet requirements can still fail.
	if err := m.MarkStepFailed("c", "upstream outage"); err != nil {
		t.Fatalf("fail c: %v", err)
	}
	if got := statusOf(t, m, "c"); got != StatusFailed {
		t.Errorf("c = %s, want failed", got)
	}

	clock.Advance(30 * time.Second)
	if err := m.MarkStepFailed("a", ""); err != nil {
		t.Fatalf("fail a: %v", err)
	}
	if got := m.Durations()["a"]; got != 30*time.Second {
		t.Errorf("duration a = %v, want 30s", got)
	}
	if len(rec.outcomes) != 2 {
		t.Fatalf("recorded %d outcomes, want 2", len(rec.outcomes))
	}
	if rec.outcomes[0].Notes != "upstream outage" || rec.outcomes[0].Duration != 0 {
		t.Errorf("outcome[0] = %+v", rec.outcomes[0])
	}
	if rec.outcomes[1].Duration != 30*time.Second {
		t.Errorf("outcome[1].Duration = %v, want 30s", rec.outcomes[1].Duration)
	}
	assertSingleFocus(t, m)

	if err := m.MarkStepFailed("zz", ""); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("err = %v, want ErrUnknownStep", err)
	}
}

func TestMachine_RetryFailedStep(t *testing.T) {
	m, _, _ := newTestMachine(t, "a")
	if err := m.MarkStepFailed("a", "crashed"); err != nil {
		t.Fatal(err)
	}
	if err := m.AdvanceToStep(context.Background(), "a", false); err != nil {
		t.Fatalf("retry a: %v", err)
	}
	if got := statusOf(t, m, "a"); got != StatusActive {
		t.Errorf("a = %s, want active", got)
	}
	assertSingleFocus(t, m)
}

func TestMachine_RecorderErrorLeavesStateUnchanged(t *testing.T) {
	m, rec, _ := newTestMachine(t, "a")
	rec.err = errors.New("disk full")

	if err := m.AdvanceToStep(context.Background(), "b", false); err == nil {
		t.Fatal("expected error")
	}
	if got := statusOf(t, m, "a"); got != StatusActive {
		t.Errorf("a = %s, want active", got)
	}
	if got := statusOf(t, m, "b"); got != StatusPending {
		t.Errorf("b = %s, want pending", got)
	}
	if err := m.SkipStep("e"); err == nil {
		t.Error("expected skip error")
	}
	if got := statusOf(t, m, "e"); got != StatusPending {
		t.Errorf("e = %s, want pending", got)
	}
}

func TestMachine_ValidateStepIdempotent(t *testing.T) {
	steps := []Step{{
		ID:     "a",
		Title:  "A",
		Status: StatusActive,
		Rules: []ValidationRule{
			{ID: "ok", Expr: "true", ErrorMessage: "never"},
			{ID: "low", Expr: "solutions > 2", ErrorMessage: "need three solutions"},
			{ID: "boom", Predicate: func(context.Context, Env) (bool, error) { panic("kaput") }},
			{ID: "err", Predicate: func(context.Context, Env) (bool, error) { return false, errors.New("backend down") }},
		},
	}}
	m, err := NewMachine(steps, WithEnv(func() Env { return Env{"solutions": 1} }))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	ok1, err := m.ValidateStep(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	first := m.ValidationErrors("a")
	ok2, err := m.ValidateStep(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	second := m.ValidationErrors("a")

	if ok1 || ok2 {
		t.Error("validation should fail")
	}
	if len(first) != 3 {
		t.Fatalf("errors = %v, want 3 entries", first)
	}
	if !slices.Equal(first, second) {
		t.Errorf("not idempotent: %v vs %v", first, second)
	}
	if first[0] != "need three solutions" {
		t.Errorf("errors[0] = %q", first[0])
	}
}

func TestMachine_ValidateStepClearsErrorsOnSuccess(t *testing.T) {
	solutions := 0
	steps := []Step{{
		ID: "a", Title: "A", Status: StatusActive,
		Rules: []ValidationRule{{ID: "n", Expr: "solutions > 0", ErrorMessage: "none"}},
	}}
	m, err := NewMachine(steps, WithEnv(func() Env { return Env{"solutions": solutions} }))
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.ValidateStep(context.Background(), "a"); ok {
		t.Fatal("expected failure")
	}
	solutions = 2
	ok, _ := m.ValidateStep(context.Background(), "a")
	if !ok {
		t.Fatal("expected success")
	}
	if errs := m.ValidationErrors("a"); len(errs) != 0 {
		t.Errorf("errors = %v, want none", errs)
	}
}

func TestMachine_RejectsReentrantCalls(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	steps := []Step{
		{ID: "a", Title: "A", Status: StatusActive, Rules: []ValidationRule{{
			ID: "slow",
			Predicate: func(ctx context.Context, _ Env) (bool, error) {
				close(entered)
				<-release
				return true, nil
			},
		}}},
		{ID: "b", Title: "B", Status: StatusPending},
	}
	m, err := NewMachine(steps)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.ValidateStep(context.Background(), "a")
		done <- err
	}()
	<-entered

	if _, err := m.ValidateStep(context.Background(), "a"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent validate err = %v, want ErrBusy", err)
	}
	if err := m.AdvanceToStep(context.Background(), "b", false); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent advance err = %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first validate: %v", err)
	}
	if got := statusOf(t, m, "a"); got != StatusActive {
		t.Errorf("a = %s, want active", got)
	}
}

func TestMachine_RevisitIsReadOnly(t *testing.T) {
	m, _, _ := newTestMachine(t, "b")
	s, err := m.Revisit("a")
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusCompleted {
		t.Errorf("a = %s, want completed", s.Status)
	}
	if m.CurrentStepID() != "b" {
		t.Errorf("current = %q, want b", m.CurrentStepID())
	}
}

func TestMachine_ReplaceRejectsMultipleActive(t *testing.T) {
	m, _, _ := newTestMachine(t, "a")
	err := m.Replace([]Step{
		{ID: "x", Title: "X", Status: StatusActive},
		{ID: "y", Title: "Y", Status: StatusActive},
	})
	if !errors.Is(err, ErrMultipleActive) {
		t.Fatalf("err = %v, want ErrMultipleActive", err)
	}
	if m.CurrentStepID() != "a" {
		t.Errorf("current = %q, want a (unchanged)", m.CurrentStepID())
	}
}

func TestMachine_NextPending(t *testing.T) {
	m, _, _ := newTestMachine(t, "b")
	id, ok := m.NextPending()
	if !ok || id != "c" {
		t.Errorf("NextPending = %q, %v; want c, true", id, ok)
	}
}

func TestMachine_Elapsed(t *testing.T) {
	m, _, clock := newTestMachine(t, "a")
	clock.Advance(5 * time.Second)
	if got := m.Elapsed("a"); got != 5*time.Second {
		t.Errorf("Elapsed = %v, want 5s", got)
	}
	if got := m.Durations()["a"]; got != 0 {
		t.Errorf("recorded = %v, want 0 while running", got)
	}
}

func TestMachine_FinishLastStep(t *testing.T) {
	m, rec, clock := newTestMachine(t, "e")
	clock.Advance(30 * time.Second)
	if err := m.Finish(context.Background(), false); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := statusOf(t, m, "e"); got != StatusCompleted {
		t.Errorf("e = %s, want completed", got)
	}
	if got := m.Durations()["e"]; got != 30*time.Second {
		t.Errorf("duration e = %v, want 30s", got)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].StepID != "e" {
		t.Errorf("outcomes = %+v", rec.outcomes)
	}
	if err := m.Finish(context.Background(), false); !errors.Is(err, ErrStepClosed) {
		t.Errorf("second Finish error = %v, want ErrStepClosed", err)
	}
	assertSingleFocus(t, m)
}

func TestMachine_FinishBlockedByValidation(t *testing.T) {
	steps, err := BuildInitialSteps(abcCatalog(), "a")
	if err != nil {
		t.Fatal(err)
	}
	steps[0].Rules = []ValidationRule{{ID: "described", Expr: `problem != ""`, ErrorMessage: "no problem"}}
	m, err := NewMachine(steps, WithEnv(func() Env { return Env{"problem": ""} }))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finish(context.Background(), false); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("Finish error = %v, want ErrValidationFailed", err)
	}
	if got := statusOf(t, m, "a"); got != StatusActive {
		t.Errorf("a = %s, want active", got)
	}
	if err := m.Finish(context.Background(), true); err != nil {
		t.Fatalf("Finish with skipValidation: %v", err)
	}
}

func TestMachine_RestoreDurations(t *testing.T) {
	m, _, clock := newTestMachine(t, "b")
	m.RestoreDurations(map[string]time.Duration{
		"a":       90 * time.Second,
		"b":       30 * time.Second,
		"missing": time.Minute,
		"d":       -time.Second,
	})
	got := m.Durations()
	if len(got) != 2 || got["a"] != 90*time.Second || got["b"] != 30*time.Second {
		t.Fatalf("durations = %v", got)
	}
	clock.Advance(10 * time.Second)
	if e := m.Elapsed("b"); e != 40*time.Second {
		t.Errorf("Elapsed(b) = %v, want 40s", e)
	}
	if err := m.AdvanceToStep(context.Background(), "c", true); err != nil {
		t.Fatal(err)
	}
	if d := m.Durations()["b"]; d != 40*time.Second {
		t.Errorf("b after advance = %v, want 40s", d)
	}
}
