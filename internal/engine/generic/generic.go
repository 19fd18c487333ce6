// Package generic implements the engine adapter on database/sql. The
// driver is chosen by the connection string: sqlite3 (go-sqlite3),
// postgres (lib/pq) or duckdb (duckdb-go).
//
// Each session holds one *sql.DB limited to a single connection. No
// process lock is taken; concurrency is left to the driver.
package generic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlscript/internal/engine"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/value"
)

// Name is the engine selection string of this adapter.
const Name = "generic"

// Adapter opens database/sql sessions.
type Adapter struct {
	logger *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for session lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates a generic adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements engine.Adapter.
func (a *Adapter) Name() string {
	return Name
}

// Open implements engine.Adapter.
func (a *Adapter) Open(ctx context.Context, connection string) (engine.Session, error) {
	tgt, err := parseConnection(connection)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("opening database", "engine", Name, "driver", tgt.driver)

	db, err := sql.Open(tgt.driver, tgt.dsn)
	if err != nil {
		return nil, sqlerr.Wrap(sqlerr.KindConnection, err, "open %s database", tgt.driver)
	}

	// One session, one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, sqlerr.Wrap(sqlerr.KindConnection, err, "connect to %s database", tgt.driver)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, sqlerr.Wrap(sqlerr.KindConnection, err, "acquire %s connection", tgt.driver)
	}

	return &session{adapter: a, target: tgt, db: db, conn: conn}, nil
}

type session struct {
	adapter *Adapter
	target  target
	db      *sql.DB
	conn    *sql.Conn
	tx      *sql.Tx
}

func (s *session) Placeholder(position int) string {
	if s.target.numbered {
		return dollar(position)
	}
	return "?"
}

func (s *session) Begin(ctx context.Context) (engine.Tx, error) {
	if s.tx != nil {
		return nil, sqlerr.New(sqlerr.KindDriver, "transaction already open")
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, driverError(err, "begin transaction")
	}
	s.tx = tx
	return &transaction{session: s, tx: tx}, nil
}

func (s *session) Prepare(ctx context.Context, text string) (engine.Handle, error) {
	var (
		stmt *sql.Stmt
		err  error
	)
	if s.tx != nil {
		stmt, err = s.tx.PrepareContext(ctx, text)
	} else {
		stmt, err = s.conn.PrepareContext(ctx, text)
	}
	if err != nil {
		return nil, (&sqlerr.Error{
			Kind:    sqlerr.KindSyntax,
			Message: "prepare failed" + sqlState(err),
			Err:     err,
		}).WithStatement(text)
	}
	query := s.target.driver != "duckdb" || !isCommand(text)
	return &handle{stmt: stmt, text: text, query: query}, nil
}

func (s *session) Close() error {
	var errs []error
	if s.tx != nil {
		errs = append(errs, s.tx.Rollback())
		s.tx = nil
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if err := errors.Join(errs...); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return sqlerr.Wrap(sqlerr.KindDriver, err, "close %s session", s.target.driver)
	}
	s.adapter.logger.Debug("database closed", "engine", Name, "driver", s.target.driver)
	return nil
}

type transaction struct {
	session *session
	tx      *sql.Tx
}

func (t *transaction) Commit() error {
	t.session.tx = nil
	return t.tx.Commit()
}

func (t *transaction) Rollback() error {
	t.session.tx = nil
	return t.tx.Rollback()
}

// handle is one prepared statement. Statements run through QueryContext,
// except duckdb commands, whose row count result set is not a result.
type handle struct {
	stmt  *sql.Stmt
	text  string
	query bool
	args  []any

	started bool
	done    bool
	rows    *sql.Rows
	types   []*sql.ColumnType
	current []any
}

func (h *handle) Bind(position int, v value.Value) error {
	if position < 1 {
		return (&sqlerr.Error{
			Kind:    sqlerr.KindBind,
			Message: fmt.Sprintf("invalid position %d", position),
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

	for len(h.args) < position {
		h.args = append(h.args, nil)
	}
	h.args[position-1] = encoded
	return nil
}

func (h *handle) Step(ctx context.Context) (engine.StepResult, error) {
	if h.done {
		return engine.Done, nil
	}

	if !h.started {
		h.started = true
		if !h.query {
			h.done = true
			if _, err := h.stmt.ExecContext(ctx, h.args...); err != nil {
				return engine.Done, h.stepError(err)
			}
			return engine.Done, nil
		}

		rows, err := h.stmt.QueryContext(ctx, h.args...)
		if err != nil {
			h.done = true
			return engine.Done, h.stepError(err)
		}
		h.rows = rows

		types, err := rows.ColumnTypes()
		if err != nil {
			h.done = true
			return engine.Done, h.stepError(err)
		}
		h.types = types
	}

	if !h.rows.Next() {
		h.done = true
		h.current = nil
		if err := h.rows.Err(); err != nil {
			return engine.Done, h.stepError(err)
		}
		return engine.Done, nil
	}

	if len(h.types) == 0 {
		h.done = true
		return engine.Done, nil
	}

	raw := make([]any, len(h.types))
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := h.rows.Scan(ptrs...); err != nil {
		h.done = true
		return engine.Done, h.stepError(err)
	}
	h.current = raw
	return engine.RowAvailable, nil
}

func (h *handle) Row() ([]engine.Column, error) {
	if h.current == nil {
		return nil, sqlerr.New(sqlerr.KindDriver, "no current row").WithStatement(h.text)
	}
	cols := make([]engine.Column, len(h.types))
	for i, ct := range h.types {
		cols[i] = engine.Column{
			Name:         ct.Name(),
			DatabaseType: strings.ToUpper(ct.DatabaseTypeName()),
			Raw:          h.current[i],
		}
	}
	return cols, nil
}

func (h *handle) Finalize() error {
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
}

func (h *handle) stepError(err error) error {
	return driverError(err, "step failed").WithStatement(h.text)
}

func driverError(err error, msg string) *sqlerr.Error {
	return sqlerr.Wrap(sqlerr.KindDriver, err, "%s%s", msg, sqlState(err))
}

// sqlState reports the postgres SQLSTATE code carried by err, if any.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Sprintf(" (sqlstate %s)", pqErr.Code)
	}
	return ""
}

// commandKeywords start statements that change data or schema.
var commandKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "MERGE", "CREATE", "DROP", "ALTER",
	"COPY", "ATTACH", "DETACH", "SET", "RESET", "CHECKPOINT", "VACUUM",
	"INSTALL", "LOAD", "BEGIN", "COMMIT", "ROLLBACK",
}

// isCommand reports whether text changes data or schema without returning
// rows. Leading comments and parentheses are skipped.
func isCommand(text string) bool {
	upper := strings.ToUpper(script.StripComments(text))
	upper = strings.TrimLeft(upper, " \t\r\n(")
	if strings.Contains(" "+upper+" ", " RETURNING ") {
		return false
	}
	for _, kw := range commandKeywords {
		if strings.HasPrefix(upper, kw) && (len(upper) == len(kw) || !isWordByte(upper[len(kw)])) {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
