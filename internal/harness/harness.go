package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/sqlscript/internal/engine"
	"github.com/roach88/sqlscript/internal/engine/embedded"
	"github.com/roach88/sqlscript/internal/engine/generic"
	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/testutil"
	"github.com/roach88/sqlscript/internal/value"
)

// Harness runs one scenario against a private database file.
type Harness struct {
	exec       *executor.Executor
	connection string
	logger     *slog.Logger
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger *slog.Logger
	dir    string
}

// WithLogger sets the logger. Default: logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDir places the scenario database in dir instead of a fresh
// temporary directory.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database file with a fixed execution
// id, so traces are reproducible.
//
// Execution flow:
// 1. Create a fresh database file
// 2. Run setup scripts
// 3. Run steps, checking each expect clause
// 4. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := &options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	dir := o.dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "sqlscript-scenario-*")
		if err != nil {
			return nil, fmt.Errorf("create scenario directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	path := filepath.Join(dir, scenario.Name+".sqlite")

	registry := engine.NewRegistry(
		embedded.New(embedded.WithLock(&sync.Mutex{}), embedded.WithLogger(o.logger)),
		generic.New(generic.WithLogger(o.logger)),
	)
	name := scenario.Engine
	if name == "" {
		name = embedded.Name
	}
	adapter, err := registry.Get(name)
	if err != nil {
		return nil, err
	}

	connection := path
	if name == generic.Name {
		connection = "sqlite3:" + path
	}

	h := &Harness{
		exec: executor.New(adapter,
			executor.WithLogger(o.logger),
			executor.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.Name)),
		),
		connection: connection,
		logger:     o.logger.With("scenario", scenario.Name),
	}

	result := NewResult()

	if err := h.setup(ctx, scenario.Setup); err != nil {
		return nil, err
	}
	if err := h.steps(ctx, scenario.Steps, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, h) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished", "pass", result.Pass, "steps", len(result.Trace))
	return result, nil
}

func (h *Harness) setup(ctx context.Context, steps []SetupStep) error {
	for i, step := range steps {
		s, err := script.New(h.connection, step.Script)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if err := h.exec.Exec(ctx, s, nil, nil); err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) steps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		var opts []script.Option
		if step.ChildName != "" {
			opts = append(opts, script.WithChildName(step.ChildName))
		}
		s, err := script.New(h.connection, step.Script, opts...)
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Name, err)
		}

		request, err := toObject(step.Request)
		if err != nil {
			return fmt.Errorf("step %d (%s) request: %w", i, step.Name, err)
		}
		response, err := toObject(step.Response)
		if err != nil {
			return fmt.Errorf("step %d (%s) response: %w", i, step.Name, err)
		}

		ev := TraceEvent{Step: step.Name}
		if request.Len() > 0 {
			ev.Request = request.Clone()
		}

		var execErr error
		if step.Mode == ModeTable {
			ev.Report, execErr = h.exec.ExecTable(ctx, s, request)
		} else {
			execErr = h.exec.Exec(ctx, s, request, response)
			if execErr == nil {
				ev.Response = response
			}
		}
		if execErr != nil {
			ev.Error = string(sqlerr.KindOf(execErr))
			if ev.Error == "" {
				ev.Error = execErr.Error()
			}
		}
		result.AddTrace(ev)

		for _, msg := range checkExpect(step, ev, execErr) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Name, msg))
		}

		h.logger.Debug("step completed", "step", step.Name, "error", ev.Error)
	}
	return nil
}

// checkExpect compares a step outcome with its expect clause.
func checkExpect(step Step, ev TraceEvent, execErr error) []string {
	exp := step.Expect
	if exp == nil || exp.Error == "" {
		if execErr != nil {
			return []string{fmt.Sprintf("unexpected error: %v", execErr)}
		}
	}
	if exp == nil {
		return nil
	}

	if exp.Error != "" {
		if execErr == nil {
			return []string{fmt.Sprintf("expected %s, step succeeded", exp.Error)}
		}
		if ev.Error != exp.Error {
			return []string{fmt.Sprintf("expected %s, got %v", exp.Error, execErr)}
		}
		return nil
	}

	var errs []string
	if exp.Rows != nil && ev.Report.Len() != *exp.Rows {
		errs = append(errs, fmt.Sprintf("expected %d rows, got %d", *exp.Rows, ev.Report.Len()))
	}
	if msg := matchValues(ev.Response, exp.Values); msg != "" {
		errs = append(errs, msg)
	}
	return errs
}

// toObject converts YAML-decoded data into an Object with keys in sorted
// order.
func toObject(m map[string]any) (*value.Object, error) {
	if m == nil {
		return value.NewObject(), nil
	}
	v, err := value.FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(*value.Object), nil
}
