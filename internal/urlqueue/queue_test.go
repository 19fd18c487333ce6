package urlqueue

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlscript/internal/engine/embedded"
	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/testutil"
	"github.com/roach88/sqlscript/internal/value"
)

const alertsTable = `create table alerts (
	id integer primary key autoincrement,
	url text, action text, payload text
)`

// received records requests seen by a test server.
type received struct {
	mu       sync.Mutex
	methods  []string
	payloads []string
}

func (r *received) handler(status *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.methods = append(r.methods, req.Method)
		r.payloads = append(r.payloads, string(body))
		r.mu.Unlock()
		w.WriteHeader(int(status.Load()))
	}
}

func (r *received) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.methods)
}

func newTestQueue(t *testing.T, withCount bool, opts ...Option) (*Queue, string) {
	t.Helper()
	path := testutil.TempDatabase(t)
	testutil.Query(t, path, alertsTable)

	exec := executor.New(embedded.New(),
		executor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	scripts := Scripts{
		Insert:    testutil.MustScript(t, path, []string{"insert into alerts (url, action, payload) values (${url}, ${action}, ${payload})"}),
		Get:       testutil.MustScript(t, path, []string{"select id, url, action, payload from alerts order by id limit 1"}),
		AfterSend: testutil.MustScript(t, path, []string{"delete from alerts where id = ${id}"}),
	}
	if withCount {
		scripts.Count = testutil.MustScript(t, path, []string{"select count(*) as value from alerts"})
	}

	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetries(0, time.Millisecond),
	}, opts...)
	q, err := New("alerts", exec, scripts, opts...)
	require.NoError(t, err)
	return q, path
}

func TestQueue_EnqueueSendAck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	rec := &received{}
	srv := httptest.NewServer(rec.handler(&status))
	defer srv.Close()

	q, path := newTestQueue(t, false)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, srv.URL+"/hook", "post", `{"id":1}`))
	require.NoError(t, q.Enqueue(ctx, srv.URL+"/ping", "get", ""))
	assert.Equal(t, 2, q.Pending())
	assert.Equal(t, []value.Value{value.Signed(2)}, testutil.Query(t, path, "select count(*) from alerts"))

	sent, err := q.Send(ctx)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = q.Send(ctx)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = q.Send(ctx)
	require.NoError(t, err)
	assert.False(t, sent, "queue is drained")

	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, []value.Value{value.Signed(0)}, testutil.Query(t, path, "select count(*) from alerts"))
	assert.Equal(t, []string{"POST", "GET"}, rec.methods)
	assert.Equal(t, []string{`{"id":1}`, ""}, rec.payloads)
}

func TestQueue_FailedSendKeepsRequest(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadGateway)
	rec := &received{}
	srv := httptest.NewServer(rec.handler(&status))
	defer srv.Close()

	q, path := newTestQueue(t, false)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, srv.URL, "+", "payload"))

	sent, err := q.Send(ctx)
	require.Error(t, err)
	assert.False(t, sent)
	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, []value.Value{value.Signed(1)}, testutil.Query(t, path, "select count(*) from alerts"))

	status.Store(http.StatusNoContent)
	sent, err = q.Send(ctx)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []string{"POST", "POST"}, rec.methods)
}

func TestQueue_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q, _ := newTestQueue(t, false, WithRetries(2, time.Millisecond))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, srv.URL, "post", "x"))
	sent, err := q.Send(ctx)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueue_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	q, _ := newTestQueue(t, false, WithRetries(3, time.Millisecond))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, srv.URL, "get", ""))
	_, err := q.Send(ctx)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_RefreshFromCountScript(t *testing.T) {
	q, path := newTestQueue(t, true)
	ctx := context.Background()

	testutil.Query(t, path, "insert into alerts (url, action, payload) values ('http://a', 'get', ''), ('http://b', 'get', '')")

	n, err := q.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, q.Pending())
}

func TestQueue_TickSkipsWhenCountIsZero(t *testing.T) {
	q, _ := newTestQueue(t, true)
	require.NoError(t, q.Tick(context.Background()))
	assert.Equal(t, 0, q.Pending())
}

func TestQueue_RunSendsAfterDelay(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	rec := &received{}
	srv := httptest.NewServer(rec.handler(&status))
	defer srv.Close()

	q, _ := newTestQueue(t, false, WithSendInterval(time.Hour), WithSendDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, srv.URL, "post", "hello"))

	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("queue did not stop")
	}
}

func TestQueue_RejectsUnsupportedVerb(t *testing.T) {
	q, path := newTestQueue(t, false)

	err := q.Enqueue(context.Background(), "http://localhost", "PATCHY", "")
	require.Error(t, err)
	assert.Equal(t, []value.Value{value.Signed(0)}, testutil.Query(t, path, "select count(*) from alerts"))
}

func TestNew_RequiresScripts(t *testing.T) {
	_, err := New("q", nil, Scripts{})
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]string{"": "GET", "get": "GET", "+": "POST", "post": "POST", "PUT": "PUT", "delete": "DELETE"} {
		got, err := parseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
