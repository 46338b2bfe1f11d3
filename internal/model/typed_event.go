package model

import (
	"encoding/json"
	"fmt"
)

// TypedEvent is a decoded pair or factory event enriched with the pair's
// tokens. Decoded holds one of the *EventData payloads.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	TxIndex     uint64      `json:"tx_index"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	PairMeta    PairMeta    `json:"pair_meta"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}

// Record converts e to the form read back from storage, with the payload
// still encoded.
func (e TypedEvent) Record() (TypedEventRecord, error) {
	decoded, err := json.Marshal(e.Decoded)
	if err != nil {
		return TypedEventRecord{}, fmt.Errorf("marshal %s at %s:%d: %w", e.EventName, e.TxHash, e.LogIndex, err)
	}
	return TypedEventRecord{
		ChainID:     e.ChainID,
		BlockNumber: e.BlockNumber,
		BlockHash:   e.BlockHash,
		TxHash:      e.TxHash,
		TxIndex:     e.TxIndex,
		LogIndex:    e.LogIndex,
		Address:     e.Address,
		EventName:   e.EventName,
		Timestamp:   e.Timestamp,
		Decoded:     decoded,
		PairMeta:    e.PairMeta,
		Raw:         e.Raw,
	}, nil
}
