package engine

import (
	"context"

	"github.com/roach88/sqlscript/internal/value"
)

// StepResult reports what a Step produced.
type StepResult int

const (
	// Done means the statement finished and no more rows follow.
	Done StepResult = iota

	// RowAvailable means a row can be read with Handle.Row.
	RowAvailable
)

func (r StepResult) String() string {
	if r == RowAvailable {
		return "row"
	}
	return "done"
}

// Column is one fetched column of the current row.
type Column struct {
	// Name is the column name (or alias) reported by the engine.
	Name string

	// DatabaseType is the declared or reported column type, upper-cased
	// by the adapter. Empty when the engine does not know it.
	DatabaseType string

	// Raw is the driver value; nil for SQL NULL.
	Raw any
}

// Value decodes the column into a value.Value.
func (c Column) Value() value.Value {
	return Decode(c)
}

// Adapter opens sessions for one engine.
type Adapter interface {
	// Name is the engine selection string ("embedded", "generic").
	Name() string

	// Open connects to the database named by connection.
	// Failures are ConnectionErrors.
	Open(ctx context.Context, connection string) (Session, error)
}

// Session is one open connection. Sessions are not safe for concurrent use.
type Session interface {
	// Placeholder returns the engine-native marker for a 1-based position.
	Placeholder(position int) string

	// Begin starts a transaction. Statements prepared afterwards run in it.
	Begin(ctx context.Context) (Tx, error)

	// Prepare compiles text. Failures are SyntaxErrors.
	Prepare(ctx context.Context, text string) (Handle, error)

	// Close releases the connection.
	Close() error
}

// Tx is an open transaction.
type Tx interface {
	Commit() error
	Rollback() error
}

// Handle is a prepared statement. Finalize must always be called.
type Handle interface {
	// Bind sets the value for a 1-based position.
	Bind(position int, v value.Value) error

	// Step advances the statement. The first call executes it.
	Step(ctx context.Context) (StepResult, error)

	// Row returns the columns of the current row.
	Row() ([]Column, error)

	// Finalize releases the statement.
	Finalize() error
}
