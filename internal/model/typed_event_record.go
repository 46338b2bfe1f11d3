package model

import "encoding/json"

// TypedEventRecord is a TypedEvent as read back from storage. The aggregator
// decodes Decoded according to EventName.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	TxIndex     uint64          `json:"tx_index"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PairMeta    PairMeta        `json:"pair_meta"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// Before reports whether r precedes other in chain order.
func (r TypedEventRecord) Before(other TypedEventRecord) bool {
	if r.BlockNumber != other.BlockNumber {
		return r.BlockNumber < other.BlockNumber
	}
	if r.TxIndex != other.TxIndex {
		return r.TxIndex < other.TxIndex
	}
	return r.LogIndex < other.LogIndex
}
