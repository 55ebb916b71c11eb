package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Block is a tamper-evident record of one executed workflow step. The
// embedded BlockData is what gets hashed; the JSON layout stays flat.
type Block struct {
	BlockData
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
	PubKey    string `json:"pubKey"`
}

// BlockData holds the hashed fields of a Block.
type BlockData struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"`
	RunID     string `json:"runId"`
	Job       string `json:"job"`
	Step      string `json:"step"`
	Command   string `json:"command"`
	Status    string `json:"status"`
	ExitCode  int    `json:"exitCode"`
	LogPath   string `json:"logPath"`
	LogHash   string `json:"logHash"`
	PrevHash  string `json:"prevHash"`
	AgentID   string `json:"agentId"`
}

// Entry holds the step facts a caller provides; the ledger fills in the
// chain fields.
type Entry struct {
	RunID    string
	Job      string
	Step     string
	Command  string
	Status   string
	ExitCode int
	LogPath  string
	LogHash  string
	AgentID  string
}

// canonicalData returns the JSON bytes used to compute the block hash.
func (b *Block) canonicalData() ([]byte, error) {
	return json.Marshal(b.BlockData)
}

// ComputeHash calculates SHA-256 over canonicalData.
func (b *Block) ComputeHash() (string, error) {
	data, err := b.canonicalData()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NewBlock constructs a block at index chained to prevHash and computes its
// hash. The block is not signed yet.
func NewBlock(index int, prevHash string, entry Entry) (*Block, error) {
	blk := &Block{BlockData: BlockData{
		Index:     index,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     entry.RunID,
		Job:       entry.Job,
		Step:      entry.Step,
		Command:   entry.Command,
		Status:    entry.Status,
		ExitCode:  entry.ExitCode,
		LogPath:   entry.LogPath,
		LogHash:   entry.LogHash,
		PrevHash:  prevHash,
		AgentID:   entry.AgentID,
	}}

	h, err := blk.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("compute block hash: %w", err)
	}
	blk.Hash = h
	return blk, nil
}
