package indexer

import (
	"fmt"
	"time"

	"sojoswap/internal/storage"
)

// Checkpoint tracks the last exported block of a chain. Source names the
// chain instance when several share a chain id.
type Checkpoint struct {
	ChainID            uint64 `json:"chain_id"`
	Source             string `json:"source,omitempty"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// CheckpointStore persists checkpoints to disk. A disabled store never
// loads and never writes.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled}
}

func (c *CheckpointStore) active() bool { return c.enabled && c.path != "" }

// Load returns the stored checkpoint, if any.
func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	var cp Checkpoint
	if !c.active() {
		return cp, false, nil
	}
	ok, err := storage.ReadJSONFile(c.path, &cp)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, ok, nil
}

// Save records lastProcessed as the resume point of source on chainID.
func (c *CheckpointStore) Save(chainID uint64, source string, lastProcessed uint64) error {
	if !c.active() {
		return nil
	}
	err := storage.WriteJSONFile(c.path, Checkpoint{
		ChainID:            chainID,
		Source:             source,
		LastProcessedBlock: lastProcessed,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
