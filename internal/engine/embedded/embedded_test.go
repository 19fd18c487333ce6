package embedded

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlscript/internal/engine"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/value"
)

// openTestSession opens a session on a fresh database file.
func openTestSession(t *testing.T, opts ...Option) engine.Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	sess, err := New(opts...).Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

// run prepares text, binds args in order and collects every row.
func run(t *testing.T, sess engine.Session, text string, args ...value.Value) [][]engine.Column {
	t.Helper()
	ctx := context.Background()

	h, err := sess.Prepare(ctx, text)
	require.NoError(t, err)
	defer h.Finalize()

	for i, arg := range args {
		require.NoError(t, h.Bind(i+1, arg))
	}

	var rows [][]engine.Column
	for {
		res, err := h.Step(ctx)
		require.NoError(t, err)
		if res == engine.Done {
			return rows
		}
		cols, err := h.Row()
		require.NoError(t, err)
		rows = append(rows, cols)
	}
}

func TestSession_InsertAndSelect(t *testing.T) {
	sess := openTestSession(t)

	run(t, sess, "create table alerts (id integer primary key, url text, action text, payload text)")
	run(t, sess, "insert into alerts (url, action, payload) values (?, ?, ?)",
		value.String("http://localhost"), value.String("post"), value.String("{}"))

	rows := run(t, sess, "select id, url, action, payload from alerts")
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 4)

	assert.Equal(t, "id", rows[0][0].Name)
	assert.Equal(t, value.Signed(1), rows[0][0].Value())
	assert.Equal(t, value.String("http://localhost"), rows[0][1].Value())
	assert.Equal(t, value.String("post"), rows[0][2].Value())
	assert.Equal(t, value.String("{}"), rows[0][3].Value())
}

func TestSession_ExpressionColumns(t *testing.T) {
	sess := openTestSession(t)

	rows := run(t, sess, "select 1 + 2 as total, 'x' as label, null as nothing")
	require.Len(t, rows, 1)

	assert.Equal(t, value.Signed(3), rows[0][0].Value())
	assert.Equal(t, value.String("x"), rows[0][1].Value())
	assert.Equal(t, value.String(""), rows[0][2].Value(), "NULL decodes as empty string")
}

func TestSession_CommentOnlyStatementIsDone(t *testing.T) {
	sess := openTestSession(t)

	assert.Empty(t, run(t, sess, "/* trailing note */"))
	assert.Empty(t, run(t, sess, "-- nothing"))
}

func TestSession_StatementWithoutColumnsYieldsNoRows(t *testing.T) {
	sess := openTestSession(t)

	assert.Empty(t, run(t, sess, "create table t (a integer)"))
	assert.Empty(t, run(t, sess, "insert into t (a) values (1), (2)"))
	rows := run(t, sess, "select count(*) as n from t")
	require.Len(t, rows, 1)
	assert.Equal(t, value.Signed(2), rows[0][0].Value())
}

func TestSession_FractionRoundTrip(t *testing.T) {
	sess := openTestSession(t)

	run(t, sess, "create table levels (f fraction)")
	run(t, sess, "insert into levels (f) values (?)", value.Fraction(0.25))

	rows := run(t, sess, "select f from levels")
	require.Len(t, rows, 1)
	assert.Equal(t, value.Fraction(0.25), rows[0][0].Value())

	// Stored scaled.
	rows = run(t, sess, "select f * 1 as raw from levels")
	assert.Equal(t, value.Signed(25), rows[0][0].Value())
}

func TestSession_TimestampRoundTrip(t *testing.T) {
	sess := openTestSession(t)
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	run(t, sess, "create table events (at timestamp)")
	run(t, sess, "insert into events (at) values (?)", value.NewTimestamp(ts))

	rows := run(t, sess, "select at from events")
	require.Len(t, rows, 1)

	got, ok := rows[0][0].Value().(value.Timestamp)
	require.True(t, ok, "got %T", rows[0][0].Value())
	assert.True(t, ts.Equal(got.Time()))
}

func TestSession_NullBindsNull(t *testing.T) {
	sess := openTestSession(t)

	rows := run(t, sess, "select ? is null as missing", value.Null{})
	require.Len(t, rows, 1)
	assert.Equal(t, value.Signed(1), rows[0][0].Value())
}

func TestSession_RollbackDiscardsWrites(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	run(t, sess, "create table t (a integer)")

	guard, err := engine.Begin(ctx, sess)
	require.NoError(t, err)
	run(t, sess, "insert into t (a) values (?)", value.Signed(1))
	require.NoError(t, guard.Close())

	rows := run(t, sess, "select count(*) from t")
	assert.Equal(t, value.Signed(0), rows[0][0].Value())
}

func TestSession_CommitKeepsWrites(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	run(t, sess, "create table t (a integer)")

	guard, err := engine.Begin(ctx, sess)
	require.NoError(t, err)
	run(t, sess, "insert into t (a) values (?)", value.Signed(1))
	require.NoError(t, guard.Commit())
	require.NoError(t, guard.Close())

	rows := run(t, sess, "select count(*) from t")
	assert.Equal(t, value.Signed(1), rows[0][0].Value())
}

func TestSession_SyntaxError(t *testing.T) {
	sess := openTestSession(t)

	_, err := sess.Prepare(context.Background(), "selec nothing from")
	require.Error(t, err)
	assert.True(t, sqlerr.Is(err, sqlerr.KindSyntax))

	var se *sqlerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "selec nothing from", se.Statement)
}

func TestSession_DriverErrorOnStep(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	run(t, sess, "create table t (a integer not null)")

	h, err := sess.Prepare(ctx, "insert into t (a) values (?)")
	require.NoError(t, err)
	defer h.Finalize()
	require.NoError(t, h.Bind(1, value.Null{}))

	_, err = h.Step(ctx)
	require.Error(t, err)
	assert.True(t, sqlerr.Is(err, sqlerr.KindDriver))
}

func TestHandle_BindOutOfRange(t *testing.T) {
	sess := openTestSession(t)

	h, err := sess.Prepare(context.Background(), "select ?")
	require.NoError(t, err)
	defer h.Finalize()

	err = h.Bind(2, value.Signed(1))
	assert.True(t, sqlerr.Is(err, sqlerr.KindBind))

	err = h.Bind(1, value.NewObject())
	assert.True(t, sqlerr.Is(err, sqlerr.KindUnsupportedType))
}

func TestAdapter_ConnectionError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "db.sqlite")
	_, err := New().Open(context.Background(), path)
	require.Error(t, err)
	assert.True(t, sqlerr.Is(err, sqlerr.KindConnection))
}

func TestAdapter_ReleasesLock(t *testing.T) {
	var mu sync.Mutex
	sess := openTestSession(t, WithLock(&mu), WithStrict(true))

	run(t, sess, "select 1")

	require.True(t, mu.TryLock(), "lock must be free between operations")
	mu.Unlock()
}

func TestDatabasePath(t *testing.T) {
	assert.Equal(t, "/var/db.sqlite", databasePath("/var/db.sqlite"))
	assert.Equal(t, "/var/db.sqlite", databasePath("sqlite3:/var/db.sqlite"))
	assert.Equal(t, "/var/db.sqlite", databasePath("sqlite3:db=/var/db.sqlite"))
	assert.Equal(t, "", databasePath("  "))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "/tmp/x.db?_busy_timeout=5000&_foreign_keys=on", DSN("/tmp/x.db"))
	assert.Equal(t, "/tmp/x.db?_busy_timeout=100&_foreign_keys=on", DSN("/tmp/x.db?_busy_timeout=100"))
}
