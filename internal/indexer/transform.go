package indexer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"sojoswap/internal/model"
)

// blockClock resolves each block's timestamp at most once.
type blockClock struct {
	fetch func(ctx context.Context, number uint64) (uint64, error)
	known map[uint64]uint64
}

func newBlockClock(fetch func(ctx context.Context, number uint64) (uint64, error)) *blockClock {
	return &blockClock{fetch: fetch, known: make(map[uint64]uint64)}
}

func (c *blockClock) timestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.known[number]; ok {
		return ts, nil
	}
	ts, err := c.fetch(ctx, number)
	if err != nil {
		return 0, err
	}
	c.known[number] = ts
	return ts, nil
}

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, len(log.Topics))
	for i, topic := range log.Topics {
		topics[i] = topic.Hex()
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}
