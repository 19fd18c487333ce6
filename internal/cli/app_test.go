package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlscript/internal/config"
	"github.com/roach88/sqlscript/internal/testutil"
	"github.com/roach88/sqlscript/internal/value"
)

const appConfig = `init:
  - script:
      - create table requests (id integer primary key autoincrement, url text, action text, payload text)
      - create table events (agent text, value text)
      - create table hosts (name text, state text)
      - insert into hosts (name, state) values ('db1', 'up'), ('web1', 'down')
alerts:
  - name: notify
    script: insert into events (agent, value) values (${name}, ${value})
agents:
  - name: pending
    interval: 1h
    refresh: select count(*) as value from requests
    alerts: [notify]
  - name: hosts_down
    schedule: "@hourly"
    refresh: select count(*) as value from hosts where state = 'down'
queues:
  - name: outbox
    send_interval: 1h
    insert: insert into requests (url, action, payload) values (${url}, ${action}, ${payload})
    get: select id, url, action, payload from requests order by id limit 1
    after_send: delete from requests where id = ${id}
api:
  calls:
    - path: /hosts/{name}
      script: select state from hosts where name = ${name}
    - path: /hosts
      response_type: table
      script: select name, state from hosts order by name
`

func newApp(t *testing.T) (*App, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.sqlite")
	cfg, err := config.Parse([]byte("database:\n  connection: " + path + "\n" + appConfig))
	require.NoError(t, err)

	app, err := Build(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, app.RunInit(context.Background()))
	return app, path
}

func TestBuild_WiresComponents(t *testing.T) {
	app, _ := newApp(t)

	assert.Len(t, app.Init, 1)
	assert.Len(t, app.Agents, 2)
	assert.Len(t, app.Queues, 1)
	assert.Len(t, app.Alerts, 1)
	assert.Equal(t, time.Hour, app.intervals["pending"])
	assert.Equal(t, map[string]string{"hosts_down": "@hourly"}, app.schedules)
	assert.Empty(t, app.triggers["hosts_down"])
	require.Len(t, app.triggers["pending"], 1)
	assert.Equal(t, "notify", app.triggers["pending"][0].Name())
	assert.Equal(t, "embedded", app.Exec.Adapter().Name())
}

func TestBuild_RejectsInvalidConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`database:
  connection: /tmp/app.sqlite
agents:
  - name: pending
    refresh: select 1 as value
    alerts: [missing]
`))
	require.NoError(t, err)

	_, err = Build(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown alert "missing"`)
}

func TestRefresh_FiresAlertsOnChange(t *testing.T) {
	app, path := newApp(t)
	ctx := context.Background()
	pending := app.Agents[0]

	require.NoError(t, app.Refresh(ctx, pending))
	assert.Equal(t, []value.Value{value.String("0")}, testutil.Query(t, path, "select value from events"))

	// Unchanged value: no new event.
	require.NoError(t, app.Refresh(ctx, pending))
	assert.Len(t, testutil.Query(t, path, "select value from events"), 1)

	require.NoError(t, app.Queues[0].Enqueue(ctx, "http://example.invalid/hook", "GET", ""))
	require.NoError(t, app.Refresh(ctx, pending))
	assert.Equal(t, []value.Value{value.String("0"), value.String("1")},
		testutil.Query(t, path, "select value from events order by value"))
	assert.Equal(t, []value.Value{value.String("pending"), value.String("pending")},
		testutil.Query(t, path, "select agent from events"))
}

func TestApp_APIRoutes(t *testing.T) {
	app, _ := newApp(t)
	ts := httptest.NewServer(app.API.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/hosts/web1")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"state":"down"}`, string(body))

	resp, err = http.Get(ts.URL + "/hosts")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["name","state"],"rows":[["db1","up"],["web1","down"]]}`, string(body))

	resp, err = http.Get(ts.URL + "/-/agents/pending")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServe_StopsOnCancel(t *testing.T) {
	app, path := newApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, app.Serve(ctx, "127.0.0.1:0"))

	// The initial refresh ran and fired the alert.
	assert.Len(t, testutil.Query(t, path, "select value from events"), 1)
}
