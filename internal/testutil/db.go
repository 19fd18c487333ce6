package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/sqlscript/internal/engine"
	"github.com/roach88/sqlscript/internal/engine/embedded"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/value"
)

// TempDatabase returns the path of a fresh SQLite file under t.TempDir().
func TempDatabase(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.sqlite")
}

// MustScript builds a script or fails the test.
func MustScript(t *testing.T, connection string, blocks []string, opts ...script.Option) *script.Script {
	t.Helper()
	s, err := script.New(connection, blocks, opts...)
	if err != nil {
		t.Fatalf("script.New() failed: %v", err)
	}
	return s
}

// Query runs text against the database at path outside any script and
// returns the first column of every row. Used to check database state.
func Query(t *testing.T, path, text string) []value.Value {
	t.Helper()
	ctx := context.Background()

	sess, err := embedded.New().Open(ctx, path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer sess.Close()

	h, err := sess.Prepare(ctx, text)
	if err != nil {
		t.Fatalf("prepare %q: %v", text, err)
	}
	defer h.Finalize()

	var out []value.Value
	for {
		res, err := h.Step(ctx)
		if err != nil {
			t.Fatalf("step %q: %v", text, err)
		}
		if res == engine.Done {
			return out
		}
		cols, err := h.Row()
		if err != nil {
			t.Fatalf("row %q: %v", text, err)
		}
		if len(cols) > 0 {
			out = append(out, cols[0].Value())
		}
	}
}
