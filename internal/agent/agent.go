package agent

import (
	"fmt"

	"go.uber.org/zap"

	"bitmap/internal/config"
	"bitmap/internal/core"
	"bitmap/internal/ledger"
	"bitmap/internal/security"
	"bitmap/internal/storage"
)

// Agent is a local build agent: a runner wired to its workspace, log
// storage and, when configured, a signed ledger.
type Agent struct {
	Runner *core.Runner
	Ledger *ledger.Ledger
}

// New builds an agent from cfg. An empty ledger path disables the ledger.
func New(cfg config.Config, logger *zap.Logger) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	runner := core.NewRunner(
		core.NewExecutor(cfg.Workspace, cfg.StepTimeout),
		storage.NewLogStorage(cfg.LogsDir),
		logger,
	)
	runner.AgentID = cfg.AgentID
	runner.MaxParallelJobs = cfg.MaxParallelJobs

	a := &Agent{Runner: runner}
	if cfg.LedgerPath == "" {
		logger.Warn("ledger disabled, steps will not be recorded")
		return a, nil
	}

	pub, priv, generated, err := security.EnsureKeyPair(cfg.KeysDir)
	if err != nil {
		return nil, fmt.Errorf("ledger keys: %w", err)
	}
	if generated {
		logger.Info("generated ledger key pair", zap.String("dir", cfg.KeysDir))
	}

	l, err := ledger.OpenLedger(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	if err := l.VerifyChain(); err != nil {
		return nil, fmt.Errorf("existing ledger %s is invalid: %w", cfg.LedgerPath, err)
	}

	logger.Info("ledger opened", zap.String("path", l.Path()), zap.Int("blocks", l.NextIndex()))

	runner.Ledger = l
	runner.PubKey = pub
	runner.PrivKey = priv
	a.Ledger = l
	return a, nil
}
