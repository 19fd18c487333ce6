package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/sqlscript/internal/engine"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/value"
)

// Executor runs scripts through one adapter. Safe for concurrent use;
// every execution opens its own session.
type Executor struct {
	adapter engine.Adapter
	logger  *slog.Logger
	ids     IDGenerator
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithIDGenerator sets the execution id generator. Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Executor) {
		e.ids = ids
	}
}

// New creates an Executor for adapter.
func New(adapter engine.Adapter, opts ...Option) *Executor {
	e := &Executor{
		adapter: adapter,
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Adapter returns the adapter scripts run through.
func (e *Executor) Adapter() engine.Adapter {
	return e.adapter
}

// Open opens a session on the script's connection, for callers that run
// several scripts through ExecSession.
func (e *Executor) Open(ctx context.Context, s *script.Script) (engine.Session, error) {
	return e.adapter.Open(ctx, s.Connection())
}

// Exec runs s with parameters from request and response, shaping results
// into response. On error response is left unchanged.
func (e *Executor) Exec(ctx context.Context, s *script.Script, request value.Source, response *value.Object) error {
	sess, err := e.Open(ctx, s)
	if err != nil {
		return err
	}
	defer sess.Close()

	return e.ExecSession(ctx, sess, s, request, response)
}

// ExecValue runs s with obj as both request and response.
func (e *Executor) ExecValue(ctx context.Context, s *script.Script, obj *value.Object) error {
	return e.Exec(ctx, s, obj, obj)
}

// ExecTable runs s and returns the rows of the last statement that produced
// any, as a report. Single rows are also merged into the accumulator so
// later statements can use them.
func (e *Executor) ExecTable(ctx context.Context, s *script.Script, request value.Source) (*value.Report, error) {
	sess, err := e.Open(ctx, s)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	report, err := e.run(ctx, sess, s, request, value.NewObject(), true)
	if err != nil {
		return nil, err
	}
	if report == nil {
		report = value.NewReport()
	}
	return report, nil
}

// ExecSession runs s on a session the caller owns. The session is not
// closed.
func (e *Executor) ExecSession(ctx context.Context, sess engine.Session, s *script.Script, request value.Source, response *value.Object) error {
	_, err := e.run(ctx, sess, s, request, response, false)
	return err
}

// run executes every statement in one transaction.
func (e *Executor) run(
	ctx context.Context,
	sess engine.Session,
	s *script.Script,
	request value.Source,
	response *value.Object,
	table bool,
) (*value.Report, error) {
	if response == nil {
		response = value.NewObject()
	}

	id := e.ids.Generate()
	log := e.logger.With("execution", id, "engine", e.adapter.Name())
	start := time.Now()

	log.Debug("script starting", "statements", s.Len())

	guard, err := engine.Begin(ctx, sess)
	if err != nil {
		log.Error("begin failed", "error", err)
		return nil, err
	}
	defer guard.Close() // No-op if committed

	work := response.Clone()
	var last *value.Report

	for i, stmt := range s.Statements() {
		if err := ctx.Err(); err != nil {
			return nil, sqlerr.Wrap(sqlerr.KindDriver, err, "execution cancelled").WithStatement(stmt.Text)
		}

		rows, err := e.statement(ctx, sess, stmt, request, work)
		if err != nil {
			log.Warn("statement failed, rolling back",
				"index", i,
				"kind", sqlerr.KindOf(err),
				"error", err,
			)
			return nil, err
		}

		log.Debug("statement done", "index", i, "rows", len(rows))

		if table && len(rows) > 0 {
			if last, err = buildReport(rows); err != nil {
				return nil, err
			}
			if len(rows) == 1 {
				mergeRow(rows[0], work)
			}
			continue
		}

		if err := shape(rows, work, s.ChildName()); err != nil {
			return nil, err
		}
	}

	if err := guard.Commit(); err != nil {
		log.Error("commit failed", "error", err)
		return nil, err
	}

	response.Replace(work)

	log.Info("script executed",
		"statements", s.Len(),
		"duration", time.Since(start),
	)
	return last, nil
}

// statement resolves, binds and steps one statement and returns its rows.
func (e *Executor) statement(
	ctx context.Context,
	sess engine.Session,
	stmt script.Statement,
	request value.Source,
	work *value.Object,
) (rows [][]engine.Column, err error) {
	args := make([]value.Value, len(stmt.Params))
	for i, name := range stmt.Params {
		v, ok := Resolve(name, request, work)
		if !ok {
			return nil, sqlerr.MissingParameter(name).WithStatement(stmt.Text)
		}
		args[i] = v
	}

	h, err := sess.Prepare(ctx, stmt.Render(sess.Placeholder))
	if err != nil {
		return nil, err
	}
	defer func() {
		if ferr := h.Finalize(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	for i, v := range args {
		if err := h.Bind(i+1, v); err != nil {
			var se *sqlerr.Error
			if errors.As(err, &se) && se.Param == "" {
				c := *se
				c.Param = stmt.Params[i]
				return nil, &c
			}
			return nil, err
		}
	}

	for {
		res, err := h.Step(ctx)
		if err != nil {
			return nil, err
		}
		if res == engine.Done {
			return rows, nil
		}
		cols, err := h.Row()
		if err != nil {
			return nil, err
		}
		rows = append(rows, cols)
	}
}
