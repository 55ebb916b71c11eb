package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogStorage saves step output as files laid out as
// <base>/<run>/<job>/<NN>_<step>.log.
type LogStorage struct {
	BaseDir string
}

// NewLogStorage creates a new log storage handler.
func NewLogStorage(baseDir string) *LogStorage {
	return &LogStorage{BaseDir: baseDir}
}

// SaveLog writes the output of the index-th step of job and returns the
// file path.
func (ls *LogStorage) SaveLog(runID, job string, index int, step, output string) (string, error) {
	dir := filepath.Join(ls.BaseDir, sanitize(runID), sanitize(job))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%02d_%s.log", index, sanitize(step)))
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return "", fmt.Errorf("write log: %w", err)
	}
	return path, nil
}

// ReadLog returns the stored output of a step.
func (ls *LogStorage) ReadLog(path string) (string, error) {
	rel, err := filepath.Rel(ls.BaseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("log %q is outside %q", path, ls.BaseDir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// sanitize keeps letters, digits, '-' and '_' and maps runs of anything
// else to a single '_'.
func sanitize(name string) string {
	var b strings.Builder
	gap := false
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_':
			b.WriteRune(r)
			gap = false
		case !gap && b.Len() > 0:
			b.WriteByte('_')
			gap = true
		}
	}
	clean := strings.TrimRight(b.String(), "_")
	if clean == "" {
		return "step"
	}
	if len(clean) > 64 {
		clean = clean[:64]
	}
	return clean
}
