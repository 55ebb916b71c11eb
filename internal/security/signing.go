package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	PublicKeyFile  = "ledger.pub"
	PrivateKeyFile = "ledger.priv"
)

var (
	ErrPrivateKeySize = errors.New("invalid private key size")
	ErrPublicKeySize  = errors.New("invalid public key size")
)

// GenerateKeyPair creates a new ed25519 key pair.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// SaveKeyPair writes both keys hex-encoded, readable by the owner only.
func SaveKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey, pubPath, privPath string) error {
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0o600); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	return nil
}

// EnsureKeyPair loads the key pair stored in dir, generating and saving a
// new one when none exists yet. The bool result reports generation.
func EnsureKeyPair(dir string) (ed25519.PublicKey, ed25519.PrivateKey, bool, error) {
	pubPath := filepath.Join(dir, PublicKeyFile)
	privPath := filepath.Join(dir, PrivateKeyFile)

	if _, err := os.Stat(pubPath); errors.Is(err, os.ErrNotExist) {
		pub, priv, err := GenerateKeyPair()
		if err != nil {
			return nil, nil, false, err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, false, err
		}
		if err := SaveKeyPair(pub, priv, pubPath, privPath); err != nil {
			return nil, nil, false, err
		}
		return pub, priv, true, nil
	}

	pub, err := LoadPublicKey(pubPath)
	if err != nil {
		return nil, nil, false, err
	}
	priv, err := LoadPrivateKey(privPath)
	if err != nil {
		return nil, nil, false, err
	}
	return pub, priv, false, nil
}

func readHex(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimSpace(string(data)))
}

// LoadPrivateKey loads an ed25519 private key from a hex-encoded file.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	key, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, ErrPrivateKeySize
	}
	return ed25519.PrivateKey(key), nil
}

// LoadPublicKey loads an ed25519 public key from a hex-encoded file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	key, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, ErrPublicKeySize
	}
	return ed25519.PublicKey(key), nil
}

// SignData signs data and returns the hex signature.
func SignData(priv ed25519.PrivateKey, data []byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, data))
}

// VerifySignature checks a hex signature of data against pub.
func VerifySignature(pub ed25519.PublicKey, data []byte, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// VerifySignatureFromHex is VerifySignature for a hex-encoded public key.
func VerifySignatureFromHex(pubHex string, data []byte, sigHex string) (bool, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, err
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, ErrPublicKeySize
	}
	return VerifySignature(ed25519.PublicKey(pub), data, sigHex)
}
