package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"bitmap/internal/core"
	"bitmap/internal/ledger"
	"bitmap/internal/storage"
)

const maxPayload = 5 << 20

// WorkflowSource returns the workflow to run for an incoming event. It is
// called per event so edits to the workflow file take effect without a
// restart.
type WorkflowSource func() (*core.Workflow, error)

// Server exposes the scheduler over HTTP.
type Server struct {
	scheduler *core.Scheduler
	workflow  WorkflowSource
	ledger    *ledger.Ledger
	logs      *storage.LogStorage
	logger    *zap.Logger
}

// New builds a server. l and logs may be nil when the ledger or step log
// storage are disabled.
func New(
	scheduler *core.Scheduler,
	workflow WorkflowSource,
	l *ledger.Ledger,
	logs *storage.LogStorage,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		scheduler: scheduler,
		workflow:  workflow,
		ledger:    l,
		logs:      logs,
		logger:    logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/events", s.handleEvent)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Post("/{id}/cancel", s.handleCancelRun)
		r.Get("/{id}/jobs/{job}/steps/{step}/log", s.handleStepLog)
	})

	r.Get("/ledger/verify", s.handleVerifyLedger)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// POST /events accepts a GitHub webhook delivery (X-GitHub-Event header)
// or a plain JSON core.Event.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	var event core.Event
	if name := r.Header.Get("X-GitHub-Event"); name != "" {
		event, err = core.EventFromGitHub(name, payload)
		if errors.Is(err, core.ErrIgnoredEvent) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	} else {
		err = json.Unmarshal(payload, &event)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wf, err := s.workflow()
	if err != nil {
		s.logger.Error("unable to load workflow", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "workflow unavailable")
		return
	}

	run, err := s.scheduler.Submit(wf, event)
	switch {
	case errors.Is(err, core.ErrNotTriggered):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, core.ErrSchedulerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("run submitted",
		zap.String("run", run.ID),
		zap.String("event", event.Name),
		zap.String("ref", event.Ref),
	)
	writeJSON(w, http.StatusAccepted, run.Snapshot())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.scheduler.List()
	out := make([]core.RunSnapshot, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.scheduler.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch err := s.scheduler.Cancel(id); {
	case errors.Is(err, core.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrRunFinished):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
	}
}

// GET /runs/{id}/jobs/{job}/steps/{step}/log streams the output of a step,
// step being its zero-based index in the job.
func (s *Server) handleStepLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "step logs are disabled")
		return
	}
	run, err := s.scheduler.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	job, ok := run.Job(chi.URLParam(r, "job"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil || index < 0 || index >= len(job.Steps) {
		writeError(w, http.StatusNotFound, "step not found")
		return
	}
	path := job.Steps[index].LogPath
	if path == "" {
		writeError(w, http.StatusNotFound, "step has no log yet")
		return
	}

	output, err := s.logs.ReadLog(path)
	if err != nil {
		s.logger.Warn("unable to read step log", zap.String("path", path), zap.Error(err))
		writeError(w, http.StatusNotFound, "log unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, output)
}

func (s *Server) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "ledger is disabled")
		return
	}
	if err := s.ledger.VerifyChain(); err != nil {
		writeError(w, http.StatusConflict, "ledger verification failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"blocks": s.ledger.NextIndex(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
