package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlscript/internal/agent"
	"github.com/roach88/sqlscript/internal/alert"
	"github.com/roach88/sqlscript/internal/engine/embedded"
	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/testutil"
	"github.com/roach88/sqlscript/internal/urlqueue"
	"github.com/roach88/sqlscript/internal/value"
)

func newBuiltinServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := executor.New(
		embedded.New(embedded.WithLock(&sync.Mutex{})),
		executor.WithLogger(discard),
	)
	path := testutil.TempDatabase(t)
	require.NoError(t, exec.Exec(context.Background(), testutil.MustScript(t, path, []string{
		"create table requests (id integer primary key autoincrement, url text, action text, payload text)",
		"create table events (agent text, state text)",
	}), nil, nil))

	pending := agent.New("pending", exec,
		testutil.MustScript(t, path, []string{"select count(*) as value from requests"}),
		agent.WithLogger(discard),
	)
	_, err := pending.Refresh(context.Background())
	require.NoError(t, err)

	notify := alert.New("notify", exec,
		testutil.MustScript(t, path, []string{
			"insert into events (agent, state) values (${agent}, ${state})",
			"select count(*) as events from events",
		}),
		alert.WithLogger(discard),
	)

	queue, err := urlqueue.New("outbox", exec, urlqueue.Scripts{
		Insert:    testutil.MustScript(t, path, []string{"insert into requests (url, action, payload) values (${url}, ${action}, ${payload})"}),
		Get:       testutil.MustScript(t, path, []string{"select id, url, action, payload from requests order by id limit 1"}),
		AfterSend: testutil.MustScript(t, path, []string{"delete from requests where id = ${id}"}),
	}, urlqueue.WithLogger(discard))
	require.NoError(t, err)

	srv, err := New(exec, nil,
		WithLogger(discard),
		WithAgents(pending),
		WithAlerts(notify),
		WithQueues(queue),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, path
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	ts, _ := newBuiltinServer(t)

	resp, err := http.Get(ts.URL + HealthPath)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok"}, decode(t, resp))
}

func TestAgentRoute(t *testing.T) {
	ts, _ := newBuiltinServer(t)

	resp, err := http.Get(ts.URL + "/-/agents/pending")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "pending", body["name"])
	assert.Equal(t, float64(0), body["value"])
	assert.Contains(t, body, "updated")

	resp, err = http.Get(ts.URL + "/-/agents/unknown")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAlertRoute(t *testing.T) {
	ts, path := newBuiltinServer(t)

	resp, err := http.Post(ts.URL+"/-/alerts/notify?state=critical", "application/json",
		strings.NewReader(`{"agent":"disk"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"events": float64(1)}, decode(t, resp))

	assert.Equal(t, []value.Value{value.String("critical")}, testutil.Query(t, path, "select state from events"))

	resp, err = http.Post(ts.URL+"/-/alerts/notify", "application/json", strings.NewReader(`{"agent":"disk"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestQueueRoute(t *testing.T) {
	ts, path := newBuiltinServer(t)

	resp, err := http.Post(ts.URL+"/-/queues/outbox", "application/json",
		strings.NewReader(`{"url":"http://example.invalid/hook","action":"POST","payload":"{}"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, map[string]any{"pending": float64(1)}, decode(t, resp))

	assert.Equal(t, []value.Value{value.String("http://example.invalid/hook")}, testutil.Query(t, path, "select url from requests"))

	resp, err = http.Post(ts.URL+"/-/queues/outbox", "application/json", strings.NewReader(`{"action":"GET"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/-/queues/inbox", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
