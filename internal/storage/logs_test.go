package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndReadLog(t *testing.T) {
	ls := NewLogStorage(t.TempDir())

	path, err := ls.SaveLog("run-1", "check", 3, "go test ./...", "ok\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ls.BaseDir, "run-1", "check", "03_go_test.log"), path)

	out, err := ls.ReadLog(path)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestReadLogOutsideBase(t *testing.T) {
	ls := NewLogStorage(t.TempDir())

	_, err := ls.ReadLog("/etc/passwd")
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	for in, want := range map[string]string{
		"build":                    "build",
		"cargo fmt -- --check":     "cargo_fmt_--_--check",
		"../../etc":                "etc",
		"":                         "step",
		"!!!":                      "step",
		"Run benchmarks (nightly)": "Run_benchmarks_nightly",
	} {
		assert.Equal(t, want, sanitize(in), in)
	}
}
