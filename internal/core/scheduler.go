package core

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotTriggered    = errors.New("workflow is not triggered by this event")
	ErrRunNotFound     = errors.New("run not found")
	ErrRunFinished     = errors.New("run already finished")
	ErrSchedulerClosed = errors.New("scheduler is shut down")
)

// group tracks the active run of a concurrency group and the one run
// waiting behind it.
type group struct {
	active  *Run
	pending *Run
}

// Scheduler starts runs in the background and enforces concurrency groups:
// at most one run per group is active. A newer run replaces the pending one
// and, with cancel-in-progress, also cancels the active one.
type Scheduler struct {
	runner *Runner
	logger *zap.Logger
	limit  int

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	runs   map[string]*Run
	order  []string
	groups map[string]*group
}

// NewScheduler creates a scheduler that keeps up to historyLimit runs in
// memory; zero keeps all of them.
func NewScheduler(runner *Runner, historyLimit int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		runner: runner,
		logger: logger,
		limit:  historyLimit,
		ctx:    ctx,
		stop:   stop,
		runs:   map[string]*Run{},
		groups: map[string]*group{},
	}
}

// Submit schedules a run of wf for event. It returns ErrNotTriggered when
// the workflow does not react to event.
func (s *Scheduler) Submit(wf *Workflow, event Event) (*Run, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if !wf.Matches(event) {
		return nil, ErrNotTriggered
	}

	run := NewRun(uuid.NewString(), wf, event)
	run.Group = wf.ConcurrencyGroup(event)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}

	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	s.evict()

	log := s.logger.With(zap.String("run", run.ID), zap.String("group", run.Group))

	if run.Group == "" {
		s.start(run)
		return run, nil
	}

	g := s.groups[run.Group]
	if g == nil {
		g = &group{}
		s.groups[run.Group] = g
	}
	if g.active == nil {
		g.active = run
		s.start(run)
		return run, nil
	}

	if g.pending != nil {
		log.Info("superseding pending run", zap.String("superseded", g.pending.ID))
		g.pending.finish(StatusCancelled)
	}
	g.pending = run

	if wf.CancelInProgress() {
		log.Info("cancelling in-progress run", zap.String("cancelled", g.active.ID))
		g.active.cancel()
	} else {
		log.Info("run queued behind active run", zap.String("active", g.active.ID))
	}
	return run, nil
}

// start launches run in the background. Caller holds s.mu.
func (s *Scheduler) start(run *Run) {
	ctx, cancel := context.WithCancel(s.ctx)
	run.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		s.runner.Execute(ctx, run)
		s.release(run)
	}()
}

// release hands the group over to the pending run, if any.
func (s *Scheduler) release(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.Group == "" {
		return
	}
	g := s.groups[run.Group]
	if g == nil || g.active != run {
		return
	}

	next := g.pending
	g.active, g.pending = nil, nil
	if next == nil || s.closed {
		delete(s.groups, run.Group)
		if next != nil {
			next.finish(StatusCancelled)
		}
		return
	}

	g.active = next
	s.start(next)
}

// evict drops the oldest finished runs beyond the history limit. Caller
// holds s.mu.
func (s *Scheduler) evict() {
	if s.limit <= 0 || len(s.order) <= s.limit {
		return
	}
	kept := s.order[:0]
	excess := len(s.order) - s.limit
	for _, id := range s.order {
		if excess > 0 && s.runs[id].Status().Done() {
			delete(s.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Get returns a run by ID.
func (s *Scheduler) Get(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// List returns the known runs, oldest first.
func (s *Scheduler) List() []*Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]*Run, 0, len(s.order))
	for _, id := range s.order {
		runs = append(runs, s.runs[id])
	}
	return runs
}

// Cancel stops a running run or drops a queued one.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if run.Status().Done() {
		return ErrRunFinished
	}

	if g := s.groups[run.Group]; g != nil && g.pending == run {
		g.pending = nil
		run.finish(StatusCancelled)
		return nil
	}
	if run.cancel != nil {
		run.cancel()
	}
	return nil
}

// Wait blocks until the run finishes or ctx is done.
func (s *Scheduler) Wait(ctx context.Context, id string) (*Run, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done():
		return run, nil
	case <-ctx.Done():
		return run, ctx.Err()
	}
}

// Shutdown cancels every run and waits for them to stop, or for ctx.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, g := range s.groups {
		if g.pending != nil {
			g.pending.finish(StatusCancelled)
			g.pending = nil
		}
	}
	s.mu.Unlock()

	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
