package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/reconquest/karma-go"
)

// StepSpec is a fully resolved step ready to execute.
type StepSpec struct {
	Name    string
	Run     string
	Uses    string
	With    map[string]string
	Env     map[string]string
	Dir     string
	Timeout time.Duration
}

// StepResult is the outcome of one step.
type StepResult struct {
	Status   Status
	ExitCode int
	Output   string
	Err      error
	Started  time.Time
	Finished time.Time
}

type action func(ctx context.Context, e *Executor, spec StepSpec) StepResult

// Executor runs steps inside a workspace directory.
type Executor struct {
	Workspace string
	Shell     []string
	Timeout   time.Duration

	actions map[string]action
}

func NewExecutor(workspace string, timeout time.Duration) *Executor {
	e := &Executor{
		Workspace: workspace,
		Shell:     []string{"sh", "-e", "-c"},
		Timeout:   timeout,
	}
	e.actions = map[string]action{
		"actions/checkout": checkoutAction,
		"actions/setup-go": toolchainAction("go", "version"),
	}
	return e
}

// RunStep executes a single step and returns its result. It never returns
// a nil error for a failing step; the error is carried in StepResult.
func (e *Executor) RunStep(ctx context.Context, spec StepSpec) StepResult {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if spec.Uses != "" {
		return e.runAction(ctx, spec)
	}
	return e.runScript(ctx, spec, spec.Run)
}

func (e *Executor) runAction(ctx context.Context, spec StepSpec) StepResult {
	name, _, _ := strings.Cut(spec.Uses, "@")
	act, ok := e.actions[name]
	if !ok && strings.HasSuffix(name, "-toolchain") {
		act, ok = toolchainAction("go", "version"), true
	}
	if !ok {
		now := time.Now()
		return StepResult{
			Status:   StatusSkipped,
			Output:   fmt.Sprintf("action %s is not available on this runner\n", spec.Uses),
			Started:  now,
			Finished: now,
		}
	}
	return act(ctx, e, spec)
}

func (e *Executor) runScript(ctx context.Context, spec StepSpec, script string) StepResult {
	result := StepResult{Started: time.Now()}

	args := append(append([]string{}, e.Shell[1:]...), script)
	cmd := exec.CommandContext(ctx, e.Shell[0], args...)
	cmd.Dir = e.dir(spec.Dir)
	cmd.Env = append(os.Environ(), envList(spec.Env)...)
	cmd.WaitDelay = 5 * time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result.Finished = time.Now()
	result.Output = out.String()

	return finish(ctx, result, err, karma.
		Describe("step", spec.Name).
		Describe("dir", cmd.Dir))
}

// finish classifies err into a status: cancelled when the caller's context
// was cancelled, failure for timeouts and non-zero exits.
func finish(ctx context.Context, result StepResult, err error, facts *karma.Context) StepResult {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Status = StatusSuccess
	case errors.Is(ctx.Err(), context.Canceled):
		result.Status = StatusCancelled
		result.ExitCode = -1
		result.Err = facts.Format(ctx.Err(), "step cancelled")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Status = StatusFailure
		result.ExitCode = -1
		result.Err = facts.Format(ctx.Err(), "step timed out")
	case errors.As(err, &exitErr):
		result.Status = StatusFailure
		result.ExitCode = exitErr.ExitCode()
		result.Err = facts.Describe("exit code", result.ExitCode).Format(err, "step failed")
	default:
		result.Status = StatusFailure
		result.ExitCode = -1
		result.Err = facts.Format(err, "step could not start")
	}
	return result
}

func (e *Executor) dir(sub string) string {
	switch {
	case sub == "":
		return e.Workspace
	case filepath.IsAbs(sub):
		return sub
	default:
		return filepath.Join(e.Workspace, sub)
	}
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for key, value := range env {
		list = append(list, key+"="+value)
	}
	sort.Strings(list)
	return list
}

// checkoutAction moves the workspace to the event's commit. Without a commit
// the workspace is used as is.
func checkoutAction(ctx context.Context, e *Executor, spec StepSpec) StepResult {
	sha := spec.Env["GITHUB_SHA"]
	if sha == "" {
		now := time.Now()
		return StepResult{
			Status:   StatusSuccess,
			Output:   "no commit to check out, using workspace as is\n",
			Started:  now,
			Finished: now,
		}
	}
	return e.runScript(ctx, spec, "git checkout --force --detach "+shellQuote(sha))
}

// toolchainAction probes that the toolchain is installed.
func toolchainAction(probe ...string) action {
	return func(ctx context.Context, e *Executor, spec StepSpec) StepResult {
		script := strings.Join(probe, " ")
		if version := spec.With["go-version"]; version != "" {
			script = fmt.Sprintf("echo requested go %s && %s", shellQuote(version), script)
		}
		return e.runScript(ctx, spec, script)
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
