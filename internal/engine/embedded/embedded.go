// Package embedded implements the engine adapter for a local SQLite file,
// driven at the driver level (prepare, bind, step, finalize).
//
// Opening and closing a database always happens under a process-wide lock.
// In strict mode every prepare, step and finalize takes the same lock too,
// serializing all database work in the process.
//
// A statement that is already stepping is not interrupted when its context
// is cancelled; cancellation is observed before the next step.
package embedded

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlscript/internal/engine"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/value"
)

// Name is the engine selection string of this adapter.
const Name = "embedded"

// DSN parameters applied to every connection.
const (
	defaultBusyTimeout = "5000" // 5 seconds
)

// processLock guards sqlite open and close for every adapter that does not
// bring its own lock.
var processLock sync.Mutex

// Adapter opens sessions on SQLite files.
type Adapter struct {
	lock   *sync.Mutex
	strict bool
	logger *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLock replaces the process-wide lock. Adapters sharing one database
// file must share one lock.
func WithLock(mu *sync.Mutex) Option {
	return func(a *Adapter) {
		a.lock = mu
	}
}

// WithStrict holds the lock around every prepare, step and finalize.
func WithStrict(strict bool) Option {
	return func(a *Adapter) {
		a.strict = strict
	}
}

// WithLogger sets the logger used for session lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates an embedded adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{lock: &processLock, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements engine.Adapter.
func (a *Adapter) Name() string {
	return Name
}

// Open implements engine.Adapter. connection is a file path, optionally
// written as "sqlite3:/path" or "sqlite3:db=/path".
func (a *Adapter) Open(ctx context.Context, connection string) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, sqlerr.Wrap(sqlerr.KindConnection, err, "open %q", connection)
	}

	path := databasePath(connection)
	if path == "" {
		return nil, sqlerr.New(sqlerr.KindConnection, "empty database path")
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.logger.Debug("opening database", "engine", Name, "path", path)

	drv := &sqlite3.SQLiteDriver{}
	conn, err := drv.Open(DSN(path))
	if err != nil {
		return nil, sqlerr.Wrap(sqlerr.KindConnection, err, "open %q", path)
	}

	sc, ok := conn.(*sqlite3.SQLiteConn)
	if !ok {
		conn.Close()
		return nil, sqlerr.New(sqlerr.KindConnection, "unexpected driver connection %T", conn)
	}

	return &session{adapter: a, conn: sc, path: path}, nil
}

// databasePath strips the optional scheme and "db=" key.
func databasePath(connection string) string {
	s := strings.TrimSpace(connection)
	s = strings.TrimPrefix(s, "sqlite3:")
	s = strings.TrimPrefix(s, "sqlite:")
	s = strings.TrimPrefix(s, "db=")
	return strings.TrimSpace(s)
}

// DSN builds the SQLite data source name for path, adding the busy timeout
// and foreign key parameters unless path already sets them.
func DSN(path string) string {
	base, query, _ := strings.Cut(path, "?")
	params, err := url.ParseQuery(query)
	if err != nil {
		params = url.Values{}
	}
	if params.Get("_busy_timeout") == "" {
		params.Set("_busy_timeout", defaultBusyTimeout)
	}
	if params.Get("_foreign_keys") == "" {
		params.Set("_foreign_keys", "on")
	}
	return base + "?" + params.Encode()
}

// session is one open SQLite connection.
type session struct {
	adapter *Adapter
	conn    *sqlite3.SQLiteConn
	path    string
}

// guarded runs fn under the adapter lock in strict mode.
func (s *session) guarded(fn func() error) error {
	if s.adapter.strict {
		s.adapter.lock.Lock()
		defer s.adapter.lock.Unlock()
	}
	return fn()
}

func (s *session) Placeholder(int) string {
	return "?"
}

func (s *session) Begin(ctx context.Context) (engine.Tx, error) {
	var tx driver.Tx
	err := s.guarded(func() error {
		var err error
		tx, err = s.conn.BeginTx(ctx, driver.TxOptions{})
		return err
	})
	if err != nil {
		return nil, sqlerr.Wrap(sqlerr.KindDriver, err, "begin transaction on %q", s.path)
	}
	return &transaction{session: s, tx: tx}, nil
}

func (s *session) Prepare(ctx context.Context, text string) (engine.Handle, error) {
	var stmt driver.Stmt
	err := s.guarded(func() error {
		var err error
		stmt, err = s.conn.PrepareContext(ctx, text)
		return err
	})
	if err != nil {
		return nil, (&sqlerr.Error{
			Kind:    sqlerr.KindSyntax,
			Message: "prepare failed",
			Err:     err,
		}).WithStatement(text)
	}

	queryer, ok := stmt.(driver.StmtQueryContext)
	if !ok {
		stmt.Close()
		return nil, sqlerr.New(sqlerr.KindDriver, "statement %T cannot be queried", stmt).WithStatement(text)
	}

	return &handle{
		session: s,
		stmt:    stmt,
		queryer: queryer,
		text:    text,
		args:    make([]driver.NamedValue, stmt.NumInput()),
	}, nil
}

func (s *session) Close() error {
	s.adapter.lock.Lock()
	defer s.adapter.lock.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		s.adapter.logger.Warn("closing database with unfinished operations", "path", s.path, "error", err)
		return sqlerr.Wrap(sqlerr.KindDriver, err, "close %q", s.path)
	}
	s.adapter.logger.Debug("database closed", "engine", Name, "path", s.path)
	return nil
}

type transaction struct {
	session *session
	tx      driver.Tx
}

func (t *transaction) Commit() error {
	return t.session.guarded(t.tx.Commit)
}

func (t *transaction) Rollback() error {
	return t.session.guarded(t.tx.Rollback)
}

// handle is one prepared statement.
type handle struct {
	session *session
	stmt    driver.Stmt
	queryer driver.StmtQueryContext
	text    string
	args    []driver.NamedValue

	rows    driver.Rows
	columns []string
	types   []string
	current []driver.Value
	done    bool
}

func (h *handle) Bind(position int, v value.Value) error {
	if position < 1 || position > len(h.args) {
		return (&sqlerr.Error{
			Kind:    sqlerr.KindBind,
			Message: fmt.Sprintf("position %d out of range (statement has %d markers)", position, len(h.args)),
		}).WithStatement(h.text)
	}

	encoded, err := engine.Encode(v)
	if err != nil {
		var se *sqlerr.Error
		if errors.As(err, &se) {
			return se.WithStatement(h.text)
		}
		return err
	}

	h.args[position-1] = driver.NamedValue{Ordinal: position, Value: encoded}
	return nil
}

func (h *handle) Step(ctx context.Context) (engine.StepResult, error) {
	if h.done {
		return engine.Done, nil
	}
	if err := ctx.Err(); err != nil {
		return engine.Done, h.driverError(err)
	}

	err := h.session.guarded(func() error {
		if h.rows == nil {
			rows, err := h.queryer.QueryContext(ctx, h.args)
			if err != nil {
				return err
			}
			h.rows = rows
			h.columns = rows.Columns()
			h.types = columnTypes(rows, len(h.columns))
		}

		dest := make([]driver.Value, len(h.columns))
		if err := h.rows.Next(dest); err != nil {
			return err
		}
		// A statement without result columns never yields a row. Empty
		// compiled statements report success on every step.
		if len(h.columns) == 0 {
			return io.EOF
		}
		h.current = dest
		return nil
	})

	switch {
	case errors.Is(err, io.EOF):
		h.done = true
		h.current = nil
		return engine.Done, nil
	case err != nil:
		h.done = true
		return engine.Done, h.driverError(err)
	}
	return engine.RowAvailable, nil
}

func (h *handle) Row() ([]engine.Column, error) {
	if h.current == nil {
		return nil, sqlerr.New(sqlerr.KindDriver, "no current row").WithStatement(h.text)
	}
	cols := make([]engine.Column, len(h.columns))
	for i, name := range h.columns {
		cols[i] = engine.Column{Name: name, DatabaseType: h.types[i], Raw: h.current[i]}
	}
	return cols, nil
}

func (h *handle) Finalize() error {
	return h.session.guarded(func() error {
		var errs []error
		if h.rows != nil {
			errs = append(errs, h.rows.Close())
			h.rows = nil
		}
		if h.stmt != nil {
			errs = append(errs, h.stmt.Close())
			h.stmt = nil
		}
		if err := errors.Join(errs...); err != nil {
			return sqlerr.Wrap(sqlerr.KindDriver, err, "finalize").WithStatement(h.text)
		}
		return nil
	})
}

func (h *handle) driverError(err error) error {
	return (&sqlerr.Error{
		Kind:    sqlerr.KindDriver,
		Message: "step failed",
		Err:     err,
	}).WithStatement(h.text)
}

// columnTypes reads the declared column types, upper-cased.
func columnTypes(rows driver.Rows, n int) []string {
	types := make([]string, n)
	typed, ok := rows.(driver.RowsColumnTypeDatabaseTypeName)
	if !ok {
		return types
	}
	for i := range types {
		types[i] = strings.ToUpper(typed.ColumnTypeDatabaseTypeName(i))
	}
	return types
}
