package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFileMatchesHashString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "step.log")
	require.NoError(t, os.WriteFile(path, []byte("go build ./..."), 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashString("go build ./..."), h)
	assert.Len(t, h, 64)
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestHashStringKnownValue(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashString(""),
	)
}
