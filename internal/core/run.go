package core

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of a run, job or step.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
)

// Done reports whether the status is final.
func (s Status) Done() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

// StepRecord is what a run remembers about one step.
type StepRecord struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exitCode"`
	LogPath  string        `json:"logPath,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// JobRecord is what a run remembers about one job.
type JobRecord struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Status   Status       `json:"status"`
	Steps    []StepRecord `json:"steps"`
	Started  time.Time    `json:"started,omitempty"`
	Finished time.Time    `json:"finished,omitempty"`
}

// RunSnapshot is a point-in-time copy of a Run, safe to serialize.
type RunSnapshot struct {
	ID       string      `json:"id"`
	Workflow string      `json:"workflow"`
	Event    Event       `json:"event"`
	Group    string      `json:"group,omitempty"`
	Status   Status      `json:"status"`
	Jobs     []JobRecord `json:"jobs"`
	Created  time.Time   `json:"created"`
	Started  time.Time   `json:"started,omitempty"`
	Finished time.Time   `json:"finished,omitempty"`
}

// Run is one execution of a workflow for one event.
type Run struct {
	ID       string
	Event    Event
	Group    string
	workflow *Workflow

	mu       sync.Mutex
	status   Status
	jobs     map[string]*JobRecord
	order    []string
	created  time.Time
	started  time.Time
	finished time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRun prepares a queued run of wf for event.
func NewRun(id string, wf *Workflow, event Event) *Run {
	r := &Run{
		ID:       id,
		Event:    event,
		workflow: wf,
		status:   StatusQueued,
		jobs:     map[string]*JobRecord{},
		created:  time.Now(),
		done:     make(chan struct{}),
	}
	for _, wave := range wf.Waves() {
		for _, id := range wave {
			job := wf.Jobs[id]
			steps := make([]StepRecord, len(job.Steps))
			for i := range job.Steps {
				steps[i] = StepRecord{
					Name:    job.Steps[i].DisplayName(),
					Command: job.Steps[i].Command(),
					Status:  StatusQueued,
				}
			}
			r.jobs[id] = &JobRecord{
				ID:     id,
				Name:   job.DisplayName(id),
				Status: StatusQueued,
				Steps:  steps,
			}
			r.order = append(r.order, id)
		}
	}
	return r
}

// Status returns the current run status.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Done is closed once the run reaches a final status.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := RunSnapshot{
		ID:       r.ID,
		Workflow: r.workflow.Name,
		Event:    r.Event,
		Group:    r.Group,
		Status:   r.status,
		Created:  r.created,
		Started:  r.started,
		Finished: r.finished,
	}
	for _, id := range r.order {
		job := *r.jobs[id]
		job.Steps = append([]StepRecord(nil), job.Steps...)
		snap.Jobs = append(snap.Jobs, job)
	}
	return snap
}

// Job returns a copy of the job record.
func (r *Run) Job(id string) (JobRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return JobRecord{}, false
	}
	out := *job
	out.Steps = append([]StepRecord(nil), job.Steps...)
	return out, true
}

func (r *Run) jobStatus(id string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Status
}

func (r *Run) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusRunning
	r.started = time.Now()
}

func (r *Run) startJob(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Status = StatusRunning
	r.jobs[id].Started = time.Now()
}

func (r *Run) finishJob(id string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	settleJob(r.jobs[id], status)
}

// settleJob sets the final job status. Steps that never ran become
// cancelled when the job was cancelled and skipped otherwise.
func settleJob(job *JobRecord, status Status) {
	job.Status = status
	job.Finished = time.Now()

	pending := StatusSkipped
	if status == StatusCancelled {
		pending = StatusCancelled
	}
	for i := range job.Steps {
		if !job.Steps[i].Status.Done() {
			job.Steps[i].Status = pending
		}
	}
}

func (r *Run) updateStep(job string, index int, fn func(*StepRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.jobs[job].Steps[index])
}

// finish settles the final status and releases waiters. It is a no-op for
// a run that already finished.
func (r *Run) finish(status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Done() {
		return false
	}
	r.status = status
	r.finished = time.Now()
	for _, id := range r.order {
		if job := r.jobs[id]; !job.Status.Done() {
			if status == StatusCancelled {
				settleJob(job, StatusCancelled)
			} else {
				settleJob(job, StatusSkipped)
			}
		}
	}
	close(r.done)
	return true
}

// outcome derives the run status from its jobs.
func (r *Run) outcome() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := StatusSuccess
	for _, id := range r.order {
		switch r.jobs[id].Status {
		case StatusCancelled:
			return StatusCancelled
		case StatusSuccess:
		default:
			status = StatusFailure
		}
	}
	return status
}
