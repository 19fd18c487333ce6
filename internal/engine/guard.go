package engine

import (
	"context"
	"errors"

	"github.com/roach88/sqlscript/internal/sqlerr"
)

// Guard owns one transaction for the length of a script execution.
type Guard struct {
	tx        Tx
	committed bool
	closed    bool
}

// Begin opens a transaction on sess.
func Begin(ctx context.Context, sess Session) (*Guard, error) {
	tx, err := sess.Begin(ctx)
	if err != nil {
		var se *sqlerr.Error
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, sqlerr.Wrap(sqlerr.KindDriver, err, "begin transaction")
	}
	return &Guard{tx: tx}, nil
}

// Commit commits the transaction. After Commit, Close is a no-op.
func (g *Guard) Commit() error {
	if g.closed {
		return sqlerr.New(sqlerr.KindDriver, "commit on a closed transaction")
	}
	g.closed = true
	if err := g.tx.Commit(); err != nil {
		return sqlerr.Wrap(sqlerr.KindDriver, err, "commit transaction")
	}
	g.committed = true
	return nil
}

// Close rolls the transaction back unless it was committed.
func (g *Guard) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	if err := g.tx.Rollback(); err != nil {
		return sqlerr.Wrap(sqlerr.KindDriver, err, "rollback transaction")
	}
	return nil
}

// Committed reports whether Commit succeeded.
func (g *Guard) Committed() bool {
	return g.committed
}
