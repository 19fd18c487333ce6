package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `database:
  connection: /tmp/app.sqlite
alerts:
  - name: notify
    script: insert into events (state) values (${state})
agents:
  - name: pending
    interval: 30s
    refresh: select count(*) as value from requests
    alerts: [notify]
api:
  calls:
    - path: /hosts/{name}
      script: select * from hosts where name = ${name}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlscript.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateValidConfig(t *testing.T) {
	path := writeConfig(t, validConfig)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ "+path+" is valid")
}

func TestValidateValidConfigJSON(t *testing.T) {
	path := writeConfig(t, validConfig)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidateUsesConfigFlag(t *testing.T) {
	path := writeConfig(t, validConfig)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text", Config: path})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "is valid")
}

func TestValidateNonExistentFile(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "absent.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [NOT_FOUND]")
}

func TestValidateSchemaViolation(t *testing.T) {
	path := writeConfig(t, "database:\n  connection: /tmp/app.sqlite\n  engine: oracle\n")

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Validation failed")
	assert.Contains(t, buf.String(), "CONFIG_ERROR")
}

func TestValidateReportsEveryScriptError(t *testing.T) {
	path := writeConfig(t, `database:
  connection: /tmp/app.sqlite
alerts:
  - name: notify
    script: select ${broken
agents:
  - name: pending
    refresh: select 1 as value
    alerts: [missing]
`)

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 2)
	assert.Equal(t, "CONFIG_ERROR", resp.Data.Errors[0].Code)
	assert.Contains(t, resp.Data.Errors[0].Message, `unknown alert "missing"`)
	assert.Equal(t, "PARSE_ERROR", resp.Data.Errors[1].Code)
	assert.Contains(t, resp.Data.Errors[1].Message, "alert notify")
}
