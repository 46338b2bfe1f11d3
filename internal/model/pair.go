package model

// PairSnapshot is the latest known state of a pair for storage.
type PairSnapshot struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	Reserve0       string `json:"reserve0"`
	Reserve1       string `json:"reserve1"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
	LastSyncBlock  uint64 `json:"last_sync_block"`
}
