package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	cfgPath string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	c := &cli{cfgPath: filepath.Join(dir, "config.yaml")}
	c.mustRun(t, "config", "set", "store.driver", "sqlite")
	c.mustRun(t, "config", "set", "store.sqlite.path", filepath.Join(dir, "jobs.db"))
	c.mustRun(t, "config", "set", "logging.level", "error")
	return c
}

func (c *cli) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", c.cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(args...)
	require.NoError(t, err, out)
	return out
}

func TestCLI_EnqueueWorkDLQ(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun(t, "enqueue", "echo hi", "--id", "a")
	assert.Contains(t, out, "Job a enqueued.")
	c.mustRun(t, "enqueue", `{"id":"b","command":"exit 3","max_retries":0}`)

	out = c.mustRun(t, "list", "--state", "pending")
	assert.Contains(t, out, "echo hi")
	assert.Contains(t, out, "exit 3")

	out = c.mustRun(t, "worker", "run-once")
	assert.Contains(t, out, "Processed 2 job(s).")

	out = c.mustRun(t, "--json", "status")
	var sum map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &sum), out)
	assert.Equal(t, 0, sum["pending"])
	assert.Equal(t, 1, sum["completed"])
	assert.Equal(t, 1, sum["dead"])

	out = c.mustRun(t, "dlq", "list")
	assert.Contains(t, out, "b")
	assert.Contains(t, out, "exit status 3")

	out = c.mustRun(t, "dlq", "retry", "b")
	assert.Contains(t, out, "Job b moved from DLQ to pending.")

	out = c.mustRun(t, "dlq", "list")
	assert.Contains(t, out, "Dead letter queue is empty.")

	out = c.mustRun(t, "list", "--state", "pending")
	assert.Contains(t, out, "exit 3")
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("list", "--state", "bogus")
	require.Error(t, err)

	_, err = c.run("enqueue", "   ")
	require.Error(t, err)

	_, err = c.run("enqueue", `{"command":`)
	require.Error(t, err)

	c.mustRun(t, "enqueue", "true", "--id", "dup")
	_, err = c.run("enqueue", "false", "--id", "dup")
	require.Error(t, err)

	_, err = c.run("dlq", "retry", "missing")
	require.Error(t, err)

	_, err = c.run("dlq", "retry", "dup")
	require.Error(t, err, "pending job is not in the DLQ")

	_, err = c.run("config", "set", "queue.nope", "1")
	require.Error(t, err)

	_, err = c.run("config", "set", "max-retries", "-1")
	require.Error(t, err)
}

func TestCLI_ConfigAndToken(t *testing.T) {
	c := newCLI(t)

	c.mustRun(t, "config", "set", "max-retries", "5")
	out := c.mustRun(t, "config", "show")
	assert.Contains(t, out, "driver: sqlite")
	assert.Contains(t, out, "max_retries: 5")

	_, err := c.run("token")
	require.Error(t, err, "no secret configured")

	c.mustRun(t, "config", "set", "server.auth_secret", "s3cret")
	out = c.mustRun(t, "config", "show")
	assert.NotContains(t, out, "s3cret")

	out = c.mustRun(t, "token", "--subject", "ops")
	assert.Len(t, bytes.Split(bytes.TrimSpace([]byte(out)), []byte(".")), 3)
}

func TestCLI_EnqueueUsesConfiguredRetries(t *testing.T) {
	c := newCLI(t)
	c.mustRun(t, "config", "set", "max-retries", "7")
	c.mustRun(t, "enqueue", "true", "--id", "x")

	out := c.mustRun(t, "--json", "list", "--state", "pending")
	var jobs []struct {
		ID         string `json:"id"`
		MaxRetries int    `json:"max_retries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &jobs), out)
	require.Len(t, jobs, 1)
	assert.Equal(t, 7, jobs[0].MaxRetries)
}
