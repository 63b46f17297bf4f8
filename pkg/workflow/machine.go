package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/remedy/pkg/notify"
)

// Outcome is a terminal step transition handed to the Recorder.
type Outcome struct {
	StepID    string
	StepTitle string
	Status    Status // completed, skipped, or failed
	Duration  time.Duration
	Timestamp time.Time
	Notes     string
}

// Recorder persists outcomes. A Record error aborts the transition.
type Recorder interface {
	Record(Outcome) error
}

type nopRecorder struct{}

func (nopRecorder) Record(Outcome) error { return nil }

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

// WithRunner sets the validation runner.
func WithRunner(r Runner) Option { return func(m *Machine) { m.runner = r } }

// WithRecorder sets where terminal outcomes are recorded.
func WithRecorder(r Recorder) Option { return func(m *Machine) { m.recorder = r } }

// WithNotifier sets the notification sink.
func WithNotifier(s notify.Sink) Option { return func(m *Machine) { m.sink = s } }

// WithChannel sets the collaboration channel.
func WithChannel(c notify.Channel) Option { return func(m *Machine) { m.channel = c } }

// WithEnv sets the function producing the validation environment.
func WithEnv(fn func() Env) Option { return func(m *Machine) { m.env = fn } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Machine) { m.log = l } }

// Machine owns the step statuses, the focus pointer, step timing, and the
// validation errors of one troubleshooting session. At most one step is
// active at any time, and the active step is always the current step.
//
// Machine methods are safe to call from several goroutines, but an advance
// or validation for a step that already has one in flight is rejected with
// ErrBusy rather than queued.
type Machine struct {
	mu        sync.Mutex
	steps     []Step
	index     map[string]int
	current   string
	started   map[string]time.Time
	durations map[string]time.Duration
	errors    map[string][]string
	inflight  map[string]bool

	now      func() time.Time
	runner   Runner
	recorder Recorder
	sink     notify.Sink
	channel  notify.Channel
	env      func() Env
	log      *zap.Logger
}

// NewMachine creates a machine over steps, typically from BuildInitialSteps.
func NewMachine(steps []Step, opts ...Option) (*Machine, error) {
	m := &Machine{
		now:      time.Now,
		recorder: nopRecorder{},
		sink:     notify.Discard,
		channel:  notify.NopChannel{},
		env:      func() Env { return Env{} },
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.load(steps); err != nil {
		return nil, err
	}
	return m, nil
}

// load checks steps and installs them, resetting all per-step state.
func (m *Machine) load(steps []Step) error {
	if len(steps) == 0 {
		return errors.New("workflow has no steps")
	}
	index := make(map[string]int, len(steps))
	current := ""
	for i, s := range steps {
		if s.ID == "" {
			return fmt.Errorf("steps[%d]: step id is required", i)
		}
		if _, dup := index[s.ID]; dup {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		if !s.Status.Valid() {
			return fmt.Errorf("step %q: invalid status %q", s.ID, s.Status)
		}
		if s.Status == StatusActive {
			if current != "" {
				return fmt.Errorf("%w: %q and %q", ErrMultipleActive, current, s.ID)
			}
			current = s.ID
		}
		index[s.ID] = i
	}

	m.steps = CloneSteps(steps)
	resolveKinds(m.steps)
	m.index = index
	m.current = current
	m.started = make(map[string]time.Time)
	m.durations = make(map[string]time.Duration)
	m.errors = make(map[string][]string)
	m.inflight = make(map[string]bool)
	if current != "" {
		m.started[current] = m.now()
	}
	return nil
}

// Replace discards the current workflow state and installs steps wholesale,
// as after an import. Timers and validation errors are reset.
func (m *Machine) Replace(steps []Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inflight) > 0 {
		return fmt.Errorf("%w: cannot replace while an operation is running", ErrBusy)
	}
	return m.load(steps)
}

// AdvanceToStep moves focus to targetID. Every requirement of the target
// must be completed; the step being left counts as completed by this
// transition. Unless skipValidation is set, the step being left must pass
// validation first. On success the outgoing step is completed, its elapsed
// time is added to its duration, and a completed outcome is recorded.
func (m *Machine) AdvanceToStep(ctx context.Context, targetID string, skipValidation bool) error {
	m.mu.Lock()
	ti, ok := m.index[targetID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownStep, targetID)
	}
	if st := m.steps[ti].Status; st.Closed() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q is %s", ErrStepClosed, targetID, st)
	}
	if err := m.checkRequirements(ti); err != nil {
		m.mu.Unlock()
		m.log.Info("advance rejected", zap.String("step", targetID), zap.Error(err))
		m.emit(notify.KindRequirementsNotMet, targetID, err.Error())
		return err
	}
	outgoing := m.current
	if m.inflight[targetID] || (outgoing != "" && m.inflight[outgoing]) {
		m.mu.Unlock()
		return fmt.Errorf("%w %q", ErrBusy, targetID)
	}
	var outStep Step
	if outgoing != "" {
		outStep = m.steps[m.index[outgoing]].Clone()
	}
	m.inflight[targetID] = true
	if outgoing != "" {
		m.inflight[outgoing] = true
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, targetID)
		delete(m.inflight, outgoing)
		m.mu.Unlock()
	}()

	leaving := outgoing != "" && outgoing != targetID && outStep.Status == StatusActive
	if leaving && !skipValidation {
		if msgs := m.runValidation(ctx, outStep); len(msgs) > 0 {
			err := &ValidationFailedError{StepID: outgoing, Messages: msgs}
			m.log.Info("advance rejected", zap.String("step", targetID), zap.Error(err))
			m.emit(notify.KindValidationFailed, outgoing, err.Error())
			return err
		}
	}

	m.mu.Lock()
	// Predicates ran unlocked; make sure nothing moved underneath us.
	if m.current != outgoing || (outgoing != "" && m.steps[m.index[outgoing]].Status != outStep.Status) {
		m.mu.Unlock()
		return fmt.Errorf("%w: focus changed during validation", ErrBusy)
	}
	if err := m.checkRequirements(ti); err != nil {
		m.mu.Unlock()
		return err
	}

	now := m.now()
	var elapsed time.Duration
	if start, ok := m.started[outgoing]; ok {
		elapsed = now.Sub(start)
	}
	if leaving {
		out := Outcome{
			StepID:    outgoing,
			StepTitle: outStep.Title,
			Status:    StatusCompleted,
			Duration:  elapsed,
			Timestamp: now,
		}
		if err := m.recorder.Record(out); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("record outcome: %w", err)
		}
	}

	if outgoing != "" {
		if _, ok := m.started[outgoing]; ok {
			m.durations[outgoing] += elapsed
			delete(m.started, outgoing)
		}
		if leaving {
			m.steps[m.index[outgoing]].Status = StatusCompleted
		}
	}
	m.steps[ti].Status = StatusActive
	m.current = targetID
	m.started[targetID] = now
	title := m.steps[ti].Title
	m.mu.Unlock()

	m.log.Debug("step advanced", zap.String("from", outgoing), zap.String("to", targetID), zap.Duration("elapsed", elapsed))
	if leaving {
		m.emit(notify.KindStepCompleted, outgoing, fmt.Sprintf("%s completed; now on %s", outStep.Title, title))
	}
	return nil
}

// Finish completes the active step without moving focus anywhere, as when
// the last step of the workflow is done. Validation applies as in
// AdvanceToStep. Afterwards no step is active.
func (m *Machine) Finish(ctx context.Context, skipValidation bool) error {
	m.mu.Lock()
	cur := m.current
	i, ok := m.index[cur]
	if !ok || m.steps[i].Status != StatusActive {
		m.mu.Unlock()
		return fmt.Errorf("%w: no active step", ErrStepClosed)
	}
	if m.inflight[cur] {
		m.mu.Unlock()
		return fmt.Errorf("%w %q", ErrBusy, cur)
	}
	step := m.steps[i].Clone()
	m.inflight[cur] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, cur)
		m.mu.Unlock()
	}()

	if !skipValidation {
		if msgs := m.runValidation(ctx, step); len(msgs) > 0 {
			err := &ValidationFailedError{StepID: cur, Messages: msgs}
			m.emit(notify.KindValidationFailed, cur, err.Error())
			return err
		}
	}

	m.mu.Lock()
	if m.current != cur || m.steps[i].Status != StatusActive {
		m.mu.Unlock()
		return fmt.Errorf("%w: focus changed during validation", ErrBusy)
	}
	now := m.now()
	var elapsed time.Duration
	if start, ok := m.started[cur]; ok {
		elapsed = now.Sub(start)
	}
	out := Outcome{StepID: cur, StepTitle: step.Title, Status: StatusCompleted, Duration: elapsed, Timestamp: now}
	if err := m.recorder.Record(out); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("record outcome: %w", err)
	}
	m.durations[cur] += elapsed
	delete(m.started, cur)
	m.steps[i].Status = StatusCompleted
	m.mu.Unlock()

	m.log.Debug("step finished", zap.String("step", cur), zap.Duration("elapsed", elapsed))
	m.emit(notify.KindStepCompleted, cur, step.Title+" completed")
	return nil
}

// checkRequirements reports the requirements of steps[ti] that are not
// completed. Callers hold m.mu.
func (m *Machine) checkRequirements(ti int) error {
	target := m.steps[ti]
	var missing []string
	for _, req := range target.Requirements {
		ri, ok := m.index[req]
		if !ok {
			missing = append(missing, req)
			continue
		}
		rs := m.steps[ri]
		if rs.Status == StatusCompleted {
			continue
		}
		if req == m.current && rs.Status == StatusActive && req != target.ID {
			continue
		}
		missing = append(missing, rs.Title)
	}
	if len(missing) > 0 {
		return &RequirementsError{StepID: target.ID, Missing: missing}
	}
	return nil
}

// SkipStep marks an optional step skipped and records a zero-duration
// outcome. Requirements are not checked.
func (m *Machine) SkipStep(stepID string) error {
	m.mu.Lock()
	i, ok := m.index[stepID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownStep, stepID)
	}
	step := m.steps[i]
	switch {
	case !step.Optional:
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotSkippable, stepID)
	case step.Status.Closed():
		m.mu.Unlock()
		return fmt.Errorf("%w: %q is %s", ErrStepClosed, stepID, step.Status)
	case m.inflight[stepID]:
		m.mu.Unlock()
		return fmt.Errorf("%w %q", ErrBusy, stepID)
	}

	out := Outcome{
		StepID:    stepID,
		StepTitle: step.Title,
		Status:    StatusSkipped,
		Timestamp: m.now(),
	}
	if err := m.recorder.Record(out); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("record outcome: %w", err)
	}
	m.steps[i].Status = StatusSkipped
	delete(m.started, stepID)
	m.mu.Unlock()

	m.log.Debug("step skipped", zap.String("step", stepID))
	m.emit(notify.KindStepSkipped, stepID, step.Title+" skipped")
	return nil
}

// MarkStepFailed records an externally detected failure. It bypasses
// requirement and validation checks so a failure can always be reported.
// The only errors are an unknown step id or a Recorder failure.
func (m *Machine) MarkStepFailed(stepID, reason string) error {
	m.mu.Lock()
	i, ok := m.index[stepID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownStep, stepID)
	}
	step := m.steps[i]
	now := m.now()
	start, running := m.started[stepID]
	var elapsed time.Duration
	if running {
		elapsed = now.Sub(start)
	}

	out := Outcome{
		StepID:    stepID,
		StepTitle: step.Title,
		Status:    StatusFailed,
		Duration:  elapsed,
		Timestamp: now,
		Notes:     reason,
	}
	if err := m.recorder.Record(out); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("record outcome: %w", err)
	}
	if running {
		m.durations[stepID] += elapsed
		delete(m.started, stepID)
	}
	m.steps[i].Status = StatusFailed
	m.mu.Unlock()

	msg := step.Title + " failed"
	if reason != "" {
		msg += ": " + reason
	}
	m.log.Debug("step failed", zap.String("step", stepID), zap.String("reason", reason))
	m.emit(notify.KindStepFailed, stepID, msg)
	return nil
}

// ValidateStep runs every rule of the step and replaces its stored
// validation errors with the result. It reports whether all rules held.
func (m *Machine) ValidateStep(ctx context.Context, stepID string) (bool, error) {
	m.mu.Lock()
	i, ok := m.index[stepID]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrUnknownStep, stepID)
	}
	if m.inflight[stepID] {
		m.mu.Unlock()
		return false, fmt.Errorf("%w %q", ErrBusy, stepID)
	}
	m.inflight[stepID] = true
	step := m.steps[i].Clone()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, stepID)
		m.mu.Unlock()
	}()

	msgs := m.runValidation(ctx, step)
	if len(msgs) > 0 {
		m.emit(notify.KindValidationFailed, stepID, (&ValidationFailedError{StepID: stepID, Messages: msgs}).Error())
		return false, nil
	}
	return true, nil
}

// runValidation evaluates the step's rules without holding the lock and
// stores the resulting error list.
func (m *Machine) runValidation(ctx context.Context, step Step) []string {
	env := Env{}
	maps.Copy(env, m.env())
	env["step"] = step.ID

	msgs := m.runner.Run(ctx, step, env)

	m.mu.Lock()
	m.errors[step.ID] = msgs
	m.mu.Unlock()
	return msgs
}

func (m *Machine) emit(kind notify.Kind, stepID, msg string) {
	ev := notify.Event{Kind: kind, StepID: stepID, Message: msg, Time: m.now()}
	m.sink.Notify(ev)
	if err := m.channel.Broadcast(ev); err != nil {
		m.log.Warn("collaboration broadcast failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Steps returns a copy of the ordered step list.
func (m *Machine) Steps() []Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CloneSteps(m.steps)
}

// Step returns a copy of one step.
func (m *Machine) Step(id string) (Step, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	if !ok {
		return Step{}, false
	}
	return m.steps[i].Clone(), true
}

// Revisit returns a step for read-only inspection. Looking at a finished
// step never changes its status; navigation back to it is a presentation
// concern.
func (m *Machine) Revisit(id string) (Step, error) {
	s, ok := m.Step(id)
	if !ok {
		return Step{}, fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
	return s, nil
}

// CurrentStepID returns the id of the step in focus.
func (m *Machine) CurrentStepID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// NextPending returns the first pending step after the current one in
// catalog order, falling back to the first pending step overall.
func (m *Machine) NextPending() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := 0
	if i, ok := m.index[m.current]; ok {
		from = i + 1
	}
	for _, s := range m.steps[from:] {
		if s.Status == StatusPending {
			return s.ID, true
		}
	}
	for _, s := range m.steps[:from] {
		if s.Status == StatusPending {
			return s.ID, true
		}
	}
	return "", false
}

// Durations returns the cumulative recorded time per step. Time spent in
// the currently running stint is not included; see Elapsed.
func (m *Machine) Durations() map[string]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.durations)
}

// RestoreDurations installs previously recorded step durations, as when a
// saved workflow is resumed in a new process. Unknown ids and non-positive
// values are ignored; a running stint keeps counting from its current start.
func (m *Machine) RestoreDurations(d map[string]time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, v := range d {
		if _, ok := m.index[id]; ok && v > 0 {
			m.durations[id] = v
		}
	}
}

// Elapsed is the recorded duration of a step plus its running stint.
func (m *Machine) Elapsed(id string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.durations[id]
	if start, ok := m.started[id]; ok {
		d += m.now().Sub(start)
	}
	return d
}

// ValidationErrors returns the messages from the step's last validation.
func (m *Machine) ValidationErrors(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.errors[id])
}
