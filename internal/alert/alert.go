// Package alert runs a script when something in the system needs to be
// recorded or reported.
//
// An Alert owns one script. Each time it fires, an Activation collects the
// script's parameters from the objects handed to it (the agent that fired,
// the event that triggered it) and then emits: every statement runs in one
// transaction, and rows returned by selects become the activation's
// results, visible to the statements that follow.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/value"
)

// Alert is immutable and safe for concurrent use.
type Alert struct {
	name   string
	exec   *executor.Executor
	script *script.Script
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Alert.
type Option func(*Alert)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Alert) {
		a.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Alert) {
		a.now = now
	}
}

// New creates an alert running s.
func New(name string, exec *executor.Executor, s *script.Script, opts ...Option) *Alert {
	a := &Alert{
		name:   name,
		exec:   exec,
		script: s,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("alert", name)
	return a
}

// Name returns the alert name.
func (a *Alert) Name() string {
	return a.name
}

// Activate starts an activation and collects parameters from sources.
func (a *Alert) Activate(sources ...value.Source) *Activation {
	act := &Activation{
		alert:   a,
		params:  value.NewObject(),
		results: value.NewObject(),
	}
	for _, src := range sources {
		act.Set(src)
	}
	return act
}

// Fire activates and emits in one call.
func (a *Alert) Fire(ctx context.Context, sources ...value.Source) (*value.Object, error) {
	act := a.Activate(sources...)
	if err := act.Emit(ctx); err != nil {
		return nil, err
	}
	return act.Results(), nil
}

// Activation is one firing of an Alert.
type Activation struct {
	alert *Alert

	mu      sync.Mutex
	params  *value.Object // Collected parameter values
	results *value.Object
	emitted time.Time
}

// Set fills still-missing parameters from src. Parameters already
// collected keep their first value.
func (act *Activation) Set(src value.Source) *Activation {
	if src == nil {
		return act
	}

	act.mu.Lock()
	defer act.mu.Unlock()

	for _, name := range act.alert.script.Params() {
		if _, ok := act.params.Lookup(name); ok {
			continue
		}
		if v, ok := src.Lookup(name); ok {
			act.params.Set(name, v)
		}
	}
	return act
}

// Missing returns the parameters no source has provided yet.
func (act *Activation) Missing() []string {
	act.mu.Lock()
	defer act.mu.Unlock()
	return act.missing()
}

func (act *Activation) missing() []string {
	var out []string
	for _, name := range act.alert.script.Params() {
		if _, ok := act.params.Lookup(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

// Emit runs the alert script. A parameter that is neither collected nor
// produced by an earlier statement of the script fails the emit, and
// nothing is written.
//
// Parameters produced by the script itself are not required up front:
// missing names are reported only if the executor cannot resolve them
// either.
func (act *Activation) Emit(ctx context.Context) error {
	act.mu.Lock()
	defer act.mu.Unlock()

	a := act.alert
	a.logger.Debug("emitting alert", "missing", act.missing())

	results := act.results.Clone()
	if err := a.exec.Exec(ctx, a.script, act.params, results); err != nil {
		if sqlerr.IsMissingParameter(err) {
			a.logger.Warn("alert parameter unavailable", "error", err)
		} else {
			a.logger.Error("alert failed", "error", err)
		}
		return err
	}

	act.results = results
	act.emitted = a.now()
	a.logger.Info("alert emitted")
	return nil
}

// Results returns a copy of the values selected by the last emit.
func (act *Activation) Results() *value.Object {
	act.mu.Lock()
	defer act.mu.Unlock()
	return act.results.Clone()
}

// Emitted returns when the last successful emit finished, or the zero time.
func (act *Activation) Emitted() time.Time {
	act.mu.Lock()
	defer act.mu.Unlock()
	return act.emitted
}

// Properties adds the alert name, the emit time and the results to out.
func (act *Activation) Properties(out *value.Object) {
	act.mu.Lock()
	defer act.mu.Unlock()

	out.Merge(act.results)
	out.Set("alert", value.String(act.alert.name))
	if !act.emitted.IsZero() {
		out.Set("emitted", value.NewTimestamp(act.emitted))
	}
}
