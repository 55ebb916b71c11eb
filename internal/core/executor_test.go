package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStepSuccess(t *testing.T) {
	e := NewExecutor(t.TempDir(), time.Minute)

	res := e.RunStep(context.Background(), StepSpec{
		Name: "greet",
		Run:  "echo hello $WHO; echo oops >&2",
		Env:  map[string]string{"WHO": "bitmap"},
	})

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 0, res.ExitCode)
	assert.NoError(t, res.Err)
	assert.Contains(t, res.Output, "hello bitmap")
	assert.Contains(t, res.Output, "oops")
	assert.False(t, res.Finished.Before(res.Started))
}

func TestRunStepNonZeroExit(t *testing.T) {
	e := NewExecutor(t.TempDir(), time.Minute)

	res := e.RunStep(context.Background(), StepSpec{Name: "fail", Run: "echo before; exit 3"})

	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, 3, res.ExitCode)
	assert.Error(t, res.Err)
	assert.Contains(t, res.Output, "before")
}

func TestRunStepStopsOnFirstFailingCommand(t *testing.T) {
	e := NewExecutor(t.TempDir(), time.Minute)

	res := e.RunStep(context.Background(), StepSpec{Run: "false\necho unreachable"})

	assert.Equal(t, StatusFailure, res.Status)
	assert.NotContains(t, res.Output, "unreachable")
}

func TestRunStepTimeout(t *testing.T) {
	e := NewExecutor(t.TempDir(), time.Minute)

	res := e.RunStep(context.Background(), StepSpec{Run: "exec sleep 5", Timeout: 100 * time.Millisecond})

	assert.Equal(t, StatusFailure, res.Status)
	assert.ErrorContains(t, res.Err, "timed out")
}

func TestRunStepCancelled(t *testing.T) {
	e := NewExecutor(t.TempDir(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res := e.RunStep(ctx, StepSpec{Run: "exec sleep 5"})

	assert.Equal(t, StatusCancelled, res.Status)
}

func TestRunStepWorkingDirectory(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(workspace, "sub"), 0o755))
	e := NewExecutor(workspace, time.Minute)

	res := e.RunStep(context.Background(), StepSpec{Run: "pwd", Dir: "sub"})

	require.Equal(t, StatusSuccess, res.Status)
	assert.Contains(t, res.Output, filepath.Join(workspace, "sub"))
}

func TestRunStepActions(t *testing.T) {
	e := NewExecutor(t.TempDir(), time.Minute)

	checkout := e.RunStep(context.Background(), StepSpec{Uses: "actions/checkout@v4"})
	assert.Equal(t, StatusSuccess, checkout.Status)
	assert.Contains(t, checkout.Output, "using workspace as is")

	unknown := e.RunStep(context.Background(), StepSpec{Uses: "acme/deploy@v1"})
	assert.Equal(t, StatusSkipped, unknown.Status)
	assert.Contains(t, unknown.Output, "not available")
}

func TestRunStepCheckoutOutsideRepository(t *testing.T) {
	e := NewExecutor(t.TempDir(), time.Minute)

	res := e.RunStep(context.Background(), StepSpec{
		Uses: "actions/checkout@v4",
		Env:  map[string]string{"GITHUB_SHA": "deadbeef"},
	})

	assert.Equal(t, StatusFailure, res.Status)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
