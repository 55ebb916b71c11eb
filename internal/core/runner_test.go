package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bitmap/internal/ledger"
	"bitmap/internal/security"
	"bitmap/internal/storage"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	require.NoError(t, os.MkdirAll(workspace, 0o755))

	r := NewRunner(
		NewExecutor(workspace, time.Minute),
		storage.NewLogStorage(filepath.Join(dir, "logs")),
		zaptest.NewLogger(t),
	)

	l, err := ledger.OpenLedger(filepath.Join(dir, "ledger.jsonl"))
	require.NoError(t, err)
	pub, priv, err := security.GenerateKeyPair()
	require.NoError(t, err)
	r.Ledger, r.PubKey, r.PrivKey = l, pub, priv
	return r
}

func mustParse(t *testing.T, doc string) *Workflow {
	t.Helper()
	wf, err := ParseWorkflow([]byte(doc))
	require.NoError(t, err)
	return wf
}

var pushMain = Event{Name: EventPush, Ref: "refs/heads/main"}

func TestRunnerSuccess(t *testing.T) {
	r := newTestRunner(t)
	wf := mustParse(t, `
name: CI
on: push
jobs:
  check:
    steps:
      - uses: actions/checkout@v4
      - name: Build
        run: echo building $GITHUB_REF
      - name: Test
        run: echo testing in $GITHUB_JOB
`)

	run := r.Run(context.Background(), "run-1", wf, pushMain)

	snap := run.Snapshot()
	require.Equal(t, StatusSuccess, snap.Status)
	require.Len(t, snap.Jobs, 1)
	job := snap.Jobs[0]
	assert.Equal(t, StatusSuccess, job.Status)
	for _, step := range job.Steps {
		assert.Equal(t, StatusSuccess, step.Status, step.Name)
		assert.NotEmpty(t, step.LogPath)
	}

	out, err := r.LogStorage.ReadLog(job.Steps[1].LogPath)
	require.NoError(t, err)
	assert.Equal(t, "building refs/heads/main\n", out)

	blocks := r.Ledger.Blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, "run-1", blocks[1].RunID)
	assert.Equal(t, "Build", blocks[1].Step)
	assert.NoError(t, r.Ledger.VerifyChain())
}

func TestRunnerStepFailureSkipsRemainingSteps(t *testing.T) {
	r := newTestRunner(t)
	wf := mustParse(t, `
on: push
jobs:
  check:
    steps:
      - run: echo one
      - run: exit 1
      - run: echo three
  bench:
    steps:
      - run: echo benching
`)

	run := r.Run(context.Background(), "run-2", wf, pushMain)

	assert.Equal(t, StatusFailure, run.Status())

	check, ok := run.Job("check")
	require.True(t, ok)
	assert.Equal(t, StatusFailure, check.Status)
	assert.Equal(t, StatusSuccess, check.Steps[0].Status)
	assert.Equal(t, StatusFailure, check.Steps[1].Status)
	assert.Equal(t, 1, check.Steps[1].ExitCode)
	assert.Equal(t, StatusSkipped, check.Steps[2].Status)

	bench, _ := run.Job("bench")
	assert.Equal(t, StatusSuccess, bench.Status, "independent jobs are unaffected")
}

func TestRunnerContinueOnError(t *testing.T) {
	r := newTestRunner(t)
	wf := mustParse(t, `
on: push
jobs:
  lint:
    steps:
      - run: exit 2
        continue-on-error: true
      - run: echo after
`)

	run := r.Run(context.Background(), "run-3", wf, pushMain)

	assert.Equal(t, StatusSuccess, run.Status())
	job, _ := run.Job("lint")
	assert.Equal(t, StatusFailure, job.Steps[0].Status)
	assert.Equal(t, StatusSuccess, job.Steps[1].Status)
}

func TestRunnerNeeds(t *testing.T) {
	r := newTestRunner(t)
	wf := mustParse(t, `
on: push
jobs:
  build: {steps: [{run: 'exit 1'}]}
  test: {needs: build, steps: [{run: 'echo test'}]}
  docs: {steps: [{run: 'echo docs'}]}
`)

	run := r.Run(context.Background(), "run-4", wf, pushMain)

	assert.Equal(t, StatusFailure, run.Status())
	test, _ := run.Job("test")
	assert.Equal(t, StatusSkipped, test.Status)
	assert.Equal(t, StatusSkipped, test.Steps[0].Status)
	docs, _ := run.Job("docs")
	assert.Equal(t, StatusSuccess, docs.Status)
}

func TestRunnerCancelled(t *testing.T) {
	r := newTestRunner(t)
	wf := mustParse(t, `
on: push
jobs:
  slow:
    steps:
      - run: exec sleep 5
      - run: echo never
`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	run := r.Run(ctx, "run-5", wf, pushMain)

	assert.Equal(t, StatusCancelled, run.Status())
	job, _ := run.Job("slow")
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Equal(t, StatusCancelled, job.Steps[0].Status)
	assert.Equal(t, StatusCancelled, job.Steps[1].Status)
}

func TestRunnerJobTimeoutIsFailure(t *testing.T) {
	r := newTestRunner(t)
	wf := mustParse(t, `
on: push
jobs:
  slow:
    timeout-minutes: 0.002
    steps:
      - run: exec sleep 5
`)

	run := r.Run(context.Background(), "run-6", wf, pushMain)

	assert.Equal(t, StatusFailure, run.Status())
}

func TestRunnerWithoutLedger(t *testing.T) {
	r := NewRunner(NewExecutor(t.TempDir(), time.Minute), nil, nil)
	wf := mustParse(t, "on: push\njobs: {a: {steps: [{run: 'true'}]}}")

	run := r.Run(context.Background(), "run-7", wf, pushMain)

	assert.Equal(t, StatusSuccess, run.Status())
	job, _ := run.Job("a")
	assert.Empty(t, job.Steps[0].LogPath)
}
