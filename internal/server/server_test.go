package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bitmap/internal/core"
	"bitmap/internal/ledger"
	"bitmap/internal/security"
	"bitmap/internal/storage"
)

const workflow = `
name: CI
on:
  push:
    branches: [main]
  pull_request:
concurrency:
  group: ${{ github.ref }}
  cancel-in-progress: true
jobs:
  check:
    steps:
      - run: echo ok
`

type fixture struct {
	server    *httptest.Server
	scheduler *core.Scheduler
	ledger    *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	wf, err := core.ParseWorkflow([]byte(workflow))
	require.NoError(t, err)

	l, err := ledger.OpenLedger(filepath.Join(dir, "ledger.jsonl"))
	require.NoError(t, err)
	pub, priv, err := security.GenerateKeyPair()
	require.NoError(t, err)

	logs := storage.NewLogStorage(filepath.Join(dir, "logs"))
	runner := core.NewRunner(core.NewExecutor(dir, time.Minute), logs, zap.NewNop())
	runner.Ledger, runner.PubKey, runner.PrivKey = l, pub, priv

	scheduler := core.NewScheduler(runner, 0, zap.NewNop())
	srv := New(scheduler, func() (*core.Workflow, error) { return wf, nil }, l, logs, zap.NewNop())
	ts := httptest.NewServer(srv.Router())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = scheduler.Shutdown(ctx)
	})
	return &fixture{server: ts, scheduler: scheduler, ledger: l}
}

func (f *fixture) post(t *testing.T, path, githubEvent, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if githubEvent != "" {
		req.Header.Set("X-GitHub-Event", githubEvent)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSubmitEventAndFetchRun(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/events", "", `{"event":"push","ref":"refs/heads/main"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	run := decode[core.RunSnapshot](t, resp)
	assert.Equal(t, "refs/heads/main", run.Group)
	assert.Equal(t, "CI", run.Workflow)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := f.scheduler.Wait(ctx, run.ID)
	require.NoError(t, err)

	got, err := http.Get(f.server.URL + "/runs/" + run.ID)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	snap := decode[core.RunSnapshot](t, got)
	assert.Equal(t, core.StatusSuccess, snap.Status)
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, "check", snap.Jobs[0].ID)

	list, err := http.Get(f.server.URL + "/runs")
	require.NoError(t, err)
	defer list.Body.Close()
	assert.Len(t, decode[[]core.RunSnapshot](t, list), 1)

	logResp, err := http.Get(f.server.URL + "/runs/" + run.ID + "/jobs/check/steps/0/log")
	require.NoError(t, err)
	defer logResp.Body.Close()
	require.Equal(t, http.StatusOK, logResp.StatusCode)
	output, err := io.ReadAll(logResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(output))

	missing, err := http.Get(f.server.URL + "/runs/" + run.ID + "/jobs/check/steps/4/log")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	verify, err := http.Get(f.server.URL + "/ledger/verify")
	require.NoError(t, err)
	defer verify.Body.Close()
	assert.Equal(t, http.StatusOK, verify.StatusCode)
}

func TestGitHubWebhook(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/events", "pull_request",
		`{"action":"opened","number":7,"pull_request":{"head":{"ref":"x","sha":""},"base":{"ref":"main"}}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	run := decode[core.RunSnapshot](t, resp)
	assert.Equal(t, "refs/pull/7/merge", run.Event.Ref)

	ping := f.post(t, "/events", "ping", `{}`)
	assert.Equal(t, http.StatusNoContent, ping.StatusCode)
}

func TestEventNotTriggering(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/events", "", `{"event":"push","ref":"refs/heads/feature"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, f.scheduler.List())
}

func TestBadEvent(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.post(t, "/events", "", `{`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.post(t, "/events", "", `{"event":"release","ref":"x"}`).StatusCode)
}

func TestRunNotFound(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/runs/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, f.post(t, "/runs/nope/cancel", "", "").StatusCode)
}

func TestCancelFinishedRun(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/events", "", `{"event":"push","ref":"refs/heads/main"}`)
	run := decode[core.RunSnapshot](t, resp)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := f.scheduler.Wait(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict, f.post(t, "/runs/"+run.ID+"/cancel", "", "").StatusCode)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
