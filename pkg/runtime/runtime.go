// Package runtime assembles a running remedy process from its configuration:
// logger, state store, trace file and the session, with the workflow resumed
// from and saved back to the store.
package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ormasoftchile/remedy/pkg/config"
	"github.com/ormasoftchile/remedy/pkg/ecosystem/recorder"
	"github.com/ormasoftchile/remedy/pkg/kv"
	"github.com/ormasoftchile/remedy/pkg/logging"
	"github.com/ormasoftchile/remedy/pkg/notify"
	"github.com/ormasoftchile/remedy/pkg/session"
	"github.com/ormasoftchile/remedy/pkg/snapshot"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// Store keys of the saved workflow. Snapshot documents carry no timing, so
// the recorded step durations (in milliseconds) are kept beside them.
const (
	WorkflowKey = "remedy.workflow"
	TimingsKey  = "remedy.workflow.timings"
)

// Runtime owns everything a command needs and releases it on Close.
type Runtime struct {
	Config  *config.Config
	Log     *zap.Logger
	Store   kv.Store
	Session *session.Session

	trace   *notify.TraceWriter
	closers []io.Closer
}

// Options adjust Open for a particular binary.
type Options struct {
	// Logger overrides the logger built from the config.
	Logger *zap.Logger
	// Fresh skips resuming the saved workflow.
	Fresh bool
	// Clock overrides time.Now for the session.
	Clock func() time.Time
}

// Open builds a runtime from cfg. The saved workflow, when present and
// readable, replaces the catalog's initial steps unless opts.Fresh is set.
func Open(cfg *config.Config, opts Options) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg, Log: opts.Logger}
	defer func() {
		if err != nil {
			_ = rt.closeResources()
		}
	}()

	if rt.Log == nil {
		rt.Log, err = logging.New(cfg.LogLevel, cfg.LogJSON)
		if err != nil {
			return nil, err
		}
	}

	rt.Store, err = OpenStore(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	if c, ok := rt.Store.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}

	catalog, err := LoadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sinks := notify.Multi{notify.LogSink{Log: rt.Log.Named("events")}}
	if cfg.TracePath != "" {
		rt.trace, err = notify.NewTraceFile(cfg.TracePath, id)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, rt.trace)
	}

	rules := make([]recorder.Rule, 0, len(cfg.RedactPatterns))
	for _, r := range cfg.RedactPatterns {
		rules = append(rules, recorder.Rule{Pattern: r.Pattern, Replace: r.Replace})
	}

	rt.Session, err = session.New(rt.Store, session.Options{
		ID:                id,
		Catalog:           catalog,
		EntryStep:         cfg.EntryStep,
		ValidationTimeout: cfg.ValidationTimeout.Duration,
		ExportedBy:        cfg.ExportedBy,
		RangeDays:         cfg.MetricsRangeDays,
		RedactEnv:         cfg.RedactEnv,
		RedactRules:       rules,
		Logger:            rt.Log,
		Sink:              sinks,
		Clock:             opts.Clock,
	})
	if err != nil {
		return nil, err
	}

	if !opts.Fresh {
		rt.resume()
	}
	return rt, nil
}

// OpenStore opens the SQLite store at path, or an in-memory store for
// config.MemoryStore.
func OpenStore(path string) (kv.Store, error) {
	if path == config.MemoryStore {
		return kv.NewMemory(), nil
	}
	return kv.OpenSQLite(path)
}

// LoadCatalog returns the configured catalog, or the built-in one.
func LoadCatalog(cfg *config.Config) (*workflow.Catalog, error) {
	if cfg.CatalogPath == "" {
		return workflow.DefaultCatalog(), nil
	}
	return workflow.LoadCatalogFile(cfg.CatalogPath)
}

func (rt *Runtime) resume() {
	raw, ok, err := rt.Store.Get(WorkflowKey)
	if err != nil {
		rt.Log.Warn("read saved workflow", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if _, err := rt.Session.Import([]byte(raw)); err != nil {
		rt.Log.Warn("saved workflow ignored", zap.Error(err))
		return
	}
	rt.restoreTimings()
	rt.Log.Debug("workflow resumed", zap.String("current", rt.Session.Machine.CurrentStepID()))
}

func (rt *Runtime) restoreTimings() {
	raw, ok, err := rt.Store.Get(TimingsKey)
	if err != nil {
		rt.Log.Warn("read saved step timings", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var ms map[string]int64
	if err := json.Unmarshal([]byte(raw), &ms); err != nil {
		rt.Log.Warn("saved step timings ignored", zap.Error(err))
		return
	}
	d := make(map[string]time.Duration, len(ms))
	for id, v := range ms {
		d[id] = time.Duration(v) * time.Millisecond
	}
	rt.Session.Machine.RestoreDurations(d)
}

// Save writes the current workflow and its step timings to the store. The
// active step's running stint is folded into its saved duration.
func (rt *Runtime) Save() error {
	m := rt.Session.Machine
	data, err := snapshot.Marshal(rt.Session.Export())
	if err != nil {
		return err
	}

	ms := make(map[string]int64)
	for id, d := range m.Durations() {
		ms[id] = d.Milliseconds()
	}
	if cur := m.CurrentStepID(); cur != "" {
		ms[cur] = m.Elapsed(cur).Milliseconds()
	}
	timings, err := json.Marshal(ms)
	if err != nil {
		return fmt.Errorf("marshal step timings: %w", err)
	}

	if err := rt.Store.Set(WorkflowKey, string(data)); err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	if err := rt.Store.Set(TimingsKey, string(timings)); err != nil {
		return fmt.Errorf("save step timings: %w", err)
	}
	return nil
}

// Discard forgets the saved workflow so the next Open starts fresh.
func (rt *Runtime) Discard() error {
	return errors.Join(rt.Store.Remove(WorkflowKey), rt.Store.Remove(TimingsKey))
}

// Close saves the workflow and releases the trace file and store.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Session != nil {
		errs = append(errs, rt.Save())
	}
	errs = append(errs, rt.closeResources())
	_ = rt.Log.Sync()
	return errors.Join(errs...)
}

func (rt *Runtime) closeResources() error {
	var errs []error
	if rt.trace != nil {
		errs = append(errs, rt.trace.Err(), rt.trace.Close())
		rt.trace = nil
	}
	for _, c := range rt.closers {
		errs = append(errs, c.Close())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
