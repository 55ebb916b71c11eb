package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runner configuration. Values come from defaults, then an
// optional YAML file, then CI_* environment variables.
type Config struct {
	Listen          string        `yaml:"listen"`
	Workspace       string        `yaml:"workspace"`
	Workflow        string        `yaml:"workflow"`
	LogsDir         string        `yaml:"logs_dir"`
	LedgerPath      string        `yaml:"ledger_path"`
	KeysDir         string        `yaml:"keys_dir"`
	AgentID         string        `yaml:"agent_id"`
	StepTimeout     time.Duration `yaml:"step_timeout"`
	MaxParallelJobs int           `yaml:"max_parallel_jobs"`
	HistoryLimit    int           `yaml:"history_limit"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Listen:          ":8080",
		Workspace:       ".",
		Workflow:        ".github/workflows/ci.yml",
		LogsDir:         "./logs",
		LedgerPath:      "./ledger.jsonl",
		KeysDir:         "./keys",
		AgentID:         "local-agent",
		StepTimeout:     30 * time.Minute,
		MaxParallelJobs: 2,
		HistoryLimit:    100,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strings := map[string]*string{
		"CI_LISTEN":     &c.Listen,
		"CI_WORKSPACE":  &c.Workspace,
		"CI_WORKFLOW":   &c.Workflow,
		"CI_LOGS_DIR":   &c.LogsDir,
		"CI_LEDGER":     &c.LedgerPath,
		"CI_KEYS_DIR":   &c.KeysDir,
		"CI_AGENT_ID":   &c.AgentID,
		"CI_LOG_LEVEL":  &c.LogLevel,
		"CI_LOG_FORMAT": &c.LogFormat,
	}
	for name, field := range strings {
		if value, ok := lookup(name); ok {
			*field = value
		}
	}

	// PORT is kept for platforms that only hand out a port number.
	if port, ok := lookup("PORT"); ok && port != "" {
		c.Listen = ":" + port
	}

	if value, ok := lookup("CI_STEP_TIMEOUT"); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("CI_STEP_TIMEOUT: %w", err)
		}
		c.StepTimeout = d
	}

	ints := map[string]*int{
		"CI_MAX_PARALLEL_JOBS": &c.MaxParallelJobs,
		"CI_HISTORY_LIMIT":     &c.HistoryLimit,
	}
	for name, field := range ints {
		if value, ok := lookup(name); ok {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = n
		}
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.Workflow == "" {
		errs = append(errs, errors.New("workflow path is empty"))
	}
	if c.StepTimeout < 0 {
		errs = append(errs, errors.New("step_timeout must not be negative"))
	}
	if c.MaxParallelJobs < 0 {
		errs = append(errs, errors.New("max_parallel_jobs must not be negative"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
