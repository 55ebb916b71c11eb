package core

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bitmap/internal/ledger"
	"bitmap/internal/storage"
	"bitmap/pkg/utils"
)

// Runner ties together Executor, log storage and the ledger.
type Runner struct {
	Executor        *Executor
	LogStorage      *storage.LogStorage
	Ledger          *ledger.Ledger
	PrivKey         ed25519.PrivateKey
	PubKey          ed25519.PublicKey
	AgentID         string
	MaxParallelJobs int
	Logger          *zap.Logger
}

// NewRunner returns a runner without ledger recording; set Ledger and the
// keys to enable it.
func NewRunner(executor *Executor, logs *storage.LogStorage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Executor:   executor,
		LogStorage: logs,
		AgentID:    "local-agent",
		Logger:     logger,
	}
}

// Run executes wf for event synchronously and returns the finished run.
func (r *Runner) Run(ctx context.Context, id string, wf *Workflow, event Event) *Run {
	run := NewRun(id, wf, event)
	run.Group = wf.ConcurrencyGroup(event)
	r.Execute(ctx, run)
	return run
}

// Execute runs the jobs of run wave by wave. Jobs of one wave run in
// parallel; a job whose needs did not all succeed is skipped.
func (r *Runner) Execute(ctx context.Context, run *Run) {
	wf := run.workflow
	log := r.Logger.With(
		zap.String("run", run.ID),
		zap.String("workflow", wf.Name),
		zap.String("event", run.Event.Name),
		zap.String("ref", run.Event.Ref),
	)

	run.start()
	log.Info("run started")

	exprs := NewExprContext(wf, run.Event, run.ID)

	for _, wave := range wf.Waves() {
		if ctx.Err() != nil {
			break
		}

		g := new(errgroup.Group)
		if r.MaxParallelJobs > 0 {
			g.SetLimit(r.MaxParallelJobs)
		}
		for _, id := range wave {
			job := wf.Jobs[id]
			if !needsSucceeded(run, job) {
				log.Info("job skipped, a needed job did not succeed", zap.String("job", id))
				run.finishJob(id, StatusSkipped)
				continue
			}
			g.Go(func() error {
				r.runJob(ctx, log.With(zap.String("job", id)), run, exprs, id, job)
				return nil
			})
		}
		_ = g.Wait()
	}

	status := run.outcome()
	if ctx.Err() != nil && status != StatusSuccess {
		status = StatusCancelled
	}
	run.finish(status)

	log.Info("run finished", zap.String("status", string(status)))
}

func needsSucceeded(run *Run, job *Job) bool {
	for _, need := range job.Needs {
		if run.jobStatus(need) != StatusSuccess {
			return false
		}
	}
	return true
}

func (r *Runner) runJob(
	ctx context.Context,
	log *zap.Logger,
	run *Run,
	exprs ExprContext,
	id string,
	job *Job,
) {
	run.startJob(id)
	log.Info("job started")

	jobCtx := ctx
	if job.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, minutes(job.TimeoutMinutes))
		defer cancel()
	}

	env := exprs.Env()
	env["GITHUB_JOB"] = id
	env["GITHUB_WORKSPACE"] = r.Executor.Workspace
	merge(env, run.workflow.Env, job.Env)

	status := StatusSuccess
	for i := range job.Steps {
		step := &job.Steps[i]

		if ctx.Err() != nil {
			status = StatusCancelled
			break
		}

		result := r.runStep(jobCtx, log, run, exprs, env, id, i, step)
		if result.Status == StatusCancelled {
			status = StatusCancelled
			break
		}
		if result.Status == StatusFailure && !step.ContinueOnError {
			status = StatusFailure
			break
		}
	}

	run.finishJob(id, status)
	log.Info("job finished", zap.String("status", string(status)))
}

func (r *Runner) runStep(
	ctx context.Context,
	log *zap.Logger,
	run *Run,
	exprs ExprContext,
	jobEnv map[string]string,
	jobID string,
	index int,
	step *Step,
) StepResult {
	name := step.DisplayName()
	log = log.With(zap.String("step", name))

	run.updateStep(jobID, index, func(rec *StepRecord) {
		rec.Status = StatusRunning
	})
	log.Debug("step started", zap.String("command", step.Command()))

	env := merge(map[string]string{}, jobEnv, step.Env)
	with := map[string]string{}
	for key, value := range step.With {
		with[key] = Expand(value, exprs)
	}

	result := r.Executor.RunStep(ctx, StepSpec{
		Name:    name,
		Run:     Expand(step.Run, exprs),
		Uses:    step.Uses,
		With:    with,
		Env:     env,
		Dir:     step.WorkingDirectory,
		Timeout: minutes(step.TimeoutMinutes),
	})

	logPath := r.saveLog(log, run.ID, jobID, index, name, result.Output)
	r.record(log, run.ID, jobID, name, step.Command(), logPath, result)

	run.updateStep(jobID, index, func(rec *StepRecord) {
		rec.Status = result.Status
		rec.ExitCode = result.ExitCode
		rec.LogPath = logPath
		rec.Duration = result.Finished.Sub(result.Started)
		if result.Err != nil {
			rec.Error = result.Err.Error()
		}
	})

	fields := []zap.Field{
		zap.String("status", string(result.Status)),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Finished.Sub(result.Started)),
	}
	switch {
	case result.Status == StatusFailure && step.ContinueOnError:
		log.Warn("step failed, continuing", append(fields, zap.Error(result.Err))...)
	case result.Err != nil:
		log.Error("step finished", append(fields, zap.Error(result.Err))...)
	default:
		log.Info("step finished", fields...)
	}
	return result
}

// saveLog stores step output; a storage failure is logged but does not fail
// the step.
func (r *Runner) saveLog(log *zap.Logger, runID, job string, index int, step, output string) string {
	if r.LogStorage == nil {
		return ""
	}
	path, err := r.LogStorage.SaveLog(runID, job, index+1, step, output)
	if err != nil {
		log.Warn("unable to save step log", zap.Error(err))
		return ""
	}
	return path
}

// record appends a signed ledger block for the step, best-effort.
func (r *Runner) record(log *zap.Logger, runID, job, step, command, logPath string, result StepResult) {
	if r.Ledger == nil {
		return
	}

	logHash := utils.HashString(result.Output)
	if logPath != "" {
		if h, err := utils.HashFile(logPath); err == nil {
			logHash = h
		}
	}

	blk, err := r.Ledger.Record(ledger.Entry{
		RunID:    runID,
		Job:      job,
		Step:     step,
		Command:  command,
		Status:   string(result.Status),
		ExitCode: result.ExitCode,
		LogPath:  logPath,
		LogHash:  logHash,
		AgentID:  r.AgentID,
	}, r.PrivKey, r.PubKey)
	if err != nil {
		level := log.Warn
		if errors.Is(err, ledger.ErrNoPrivateKey) {
			level = log.Debug
		}
		level("unable to append ledger block", zap.Error(err))
		return
	}
	log.Debug("ledger block appended", zap.Int("index", blk.Index), zap.String("hash", blk.Hash[:16]))
}

func merge(dst map[string]string, sources ...map[string]string) map[string]string {
	for _, src := range sources {
		for key, value := range src {
			dst[key] = value
		}
	}
	return dst
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
