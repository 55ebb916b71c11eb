package security

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	sig := SignData(priv, []byte("block-hash"))

	ok, err := VerifySignature(pub, []byte("block-hash"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignatureFromHex(hex.EncodeToString(pub), []byte("other"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureKeyPairGeneratesOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	pub1, priv1, generated, err := EnsureKeyPair(dir)
	require.NoError(t, err)
	assert.True(t, generated)

	pub2, priv2, generated, err := EnsureKeyPair(dir)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, pub1, pub2)
	assert.Equal(t, priv1, priv2)
}

func TestLoadKeyRejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.pub")
	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0o600))

	_, err := LoadPublicKey(path)
	assert.ErrorIs(t, err, ErrPublicKeySize)

	_, err = LoadPrivateKey(path)
	assert.ErrorIs(t, err, ErrPrivateKeySize)
}

func TestVerifyRejectsBadHex(t *testing.T) {
	pub, _, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = VerifySignature(pub, nil, "zz")
	assert.Error(t, err)
}
