package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".github/workflows/ci.yml", cfg.Workflow)
	assert.Equal(t, 30*time.Minute, cfg.StepTimeout)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ci.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
step_timeout: 5m
max_parallel_jobs: 4
log_format: json
`), 0o644))

	t.Setenv("CI_AGENT_ID", "builder-7")
	t.Setenv("CI_HISTORY_LIMIT", "10")
	t.Setenv("PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, 5*time.Minute, cfg.StepTimeout)
	assert.Equal(t, 4, cfg.MaxParallelJobs)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "builder-7", cfg.AgentID)
	assert.Equal(t, 10, cfg.HistoryLimit)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CI_STEP_TIMEOUT", "soon")
	_, err := Load("")
	assert.ErrorContains(t, err, "CI_STEP_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	cfg.MaxParallelJobs = -1

	err := cfg.Validate()
	assert.ErrorContains(t, err, "log_format")
	assert.ErrorContains(t, err, "max_parallel_jobs")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
