package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bitmap/internal/agent"
	"bitmap/internal/config"
	"bitmap/internal/core"
	"bitmap/internal/logging"
	"bitmap/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("CI_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "ci-server:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Fail fast on a broken workflow file; it is reloaded per event later.
	if _, err := core.LoadWorkflow(cfg.Workflow); err != nil {
		return err
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		return err
	}

	scheduler := core.NewScheduler(a.Runner, cfg.HistoryLimit, logger)
	srv := server.New(scheduler, func() (*core.Workflow, error) {
		return core.LoadWorkflow(cfg.Workflow)
	}, a.Ledger, a.Runner.LogStorage, logger)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ci server listening",
			zap.String("addr", cfg.Listen),
			zap.String("workflow", cfg.Workflow),
			zap.String("agent", cfg.AgentID),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := scheduler.Shutdown(ctx); err != nil {
		logger.Warn("runs did not stop in time", zap.Error(err))
	}
	return nil
}
