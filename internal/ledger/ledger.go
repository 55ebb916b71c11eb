package ledger

import (
	"bufio"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrNoPrivateKey = errors.New("private key is empty, cannot sign block")

// Ledger is an append-only chain of signed blocks backed by a JSON-lines
// file, one block per line.
type Ledger struct {
	mu     sync.Mutex
	blocks []*Block
	path   string
}

// OpenLedger loads an existing ledger file or creates an empty one.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var blk Block
		if err := dec.Decode(&blk); err != nil {
			return nil, fmt.Errorf("decode ledger entry %d: %w", len(l.blocks), err)
		}
		l.blocks = append(l.blocks, &blk)
	}
	return l, nil
}

// Path returns the backing file.
func (l *Ledger) Path() string {
	return l.path
}

// Append validates that b extends the chain, signs it and persists it.
func (l *Ledger) Append(b *Block, priv ed25519.PrivateKey, pub ed25519.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.append(b, priv, pub)
}

// Record chains a new block for entry at the tip of the ledger and appends
// it. Index and PrevHash are assigned under the ledger lock, so concurrent
// jobs can record steps safely.
func (l *Ledger) Record(entry Entry, priv ed25519.PrivateKey, pub ed25519.PublicKey) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	blk, err := NewBlock(len(l.blocks), l.lastHash(), entry)
	if err != nil {
		return nil, err
	}
	if err := l.append(blk, priv, pub); err != nil {
		return nil, err
	}
	return blk, nil
}

func (l *Ledger) append(b *Block, priv ed25519.PrivateKey, pub ed25519.PublicKey) error {
	if len(priv) == 0 {
		return ErrNoPrivateKey
	}

	h, err := b.ComputeHash()
	if err != nil {
		return fmt.Errorf("recompute block hash: %w", err)
	}
	b.Hash = h

	if b.Index != len(l.blocks) {
		return fmt.Errorf("index mismatch: expected %d, got %d", len(l.blocks), b.Index)
	}
	if last := l.lastHash(); b.PrevHash != last {
		return fmt.Errorf("prevHash mismatch: expected %q, got %q", last, b.PrevHash)
	}

	b.Signature = hex.EncodeToString(ed25519.Sign(priv, []byte(b.Hash)))
	b.PubKey = hex.EncodeToString(pub)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(b); err != nil {
		return fmt.Errorf("write ledger file: %w", err)
	}

	l.blocks = append(l.blocks, b)
	return nil
}

// Blocks returns copies of all blocks in chain order.
func (l *Ledger) Blocks() []Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Block, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = *b
	}
	return out
}

// NextIndex returns the index the next block will get.
func (l *Ledger) NextIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}

// LastHash returns the hash of the tip, or "" when the ledger is empty.
func (l *Ledger) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash()
}

func (l *Ledger) lastHash() string {
	if len(l.blocks) == 0 {
		return ""
	}
	return l.blocks[len(l.blocks)-1].Hash
}

// Rewrite replaces the ledger file with blocks as given, without rehashing
// or re-signing. It exists for offline repair and tamper drills.
func (l *Ledger) Rewrite(blocks []Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create ledger file: %w", err)
	}

	enc := json.NewEncoder(f)
	stored := make([]*Block, 0, len(blocks))
	for i := range blocks {
		b := blocks[i]
		if err := enc.Encode(&b); err != nil {
			f.Close()
			return fmt.Errorf("write ledger file: %w", err)
		}
		stored = append(stored, &b)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}

	l.blocks = stored
	return nil
}
