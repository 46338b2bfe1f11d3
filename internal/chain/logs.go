package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LatestBlockNumber returns the current block number.
func (h *Host) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return h.blockNumber, nil
}

// BlockTimestamp returns the timestamp of block number.
func (h *Host) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ts, ok := h.blockTimes[number]
	if !ok {
		return 0, fmt.Errorf("block %d not found", number)
	}
	return ts, nil
}

// FilterLogs returns committed logs matching q, in commit order. A nil
// FromBlock means genesis and a nil ToBlock means the current block.
func (h *Host) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from, to := uint64(0), h.blockNumber
	if q.FromBlock != nil {
		if !q.FromBlock.IsUint64() {
			return nil, fmt.Errorf("invalid from block %s", q.FromBlock)
		}
		from = q.FromBlock.Uint64()
	}
	if q.ToBlock != nil {
		if !q.ToBlock.IsUint64() {
			return nil, fmt.Errorf("invalid to block %s", q.ToBlock)
		}
		to = q.ToBlock.Uint64()
	}
	if from > to {
		return nil, fmt.Errorf("from block %d after to block %d", from, to)
	}

	var out []types.Log
	for _, r := range h.committed {
		if q.BlockHash != nil {
			if r.BlockHash != *q.BlockHash {
				continue
			}
		} else if r.BlockNumber < from || r.BlockNumber > to {
			continue
		}
		for _, log := range h.state.GetLogs(r.TxHash, r.BlockNumber, r.BlockHash) {
			if !matchAddress(log.Address, q.Addresses) || !matchTopics(log.Topics, q.Topics) {
				continue
			}
			out = append(out, *log)
		}
	}
	return out, nil
}

func matchAddress(addr common.Address, want []common.Address) bool {
	if len(want) == 0 {
		return true
	}
	for _, a := range want {
		if a == addr {
			return true
		}
	}
	return false
}

// matchTopics applies positional topic filters; an empty position matches
// anything.
func matchTopics(topics []common.Hash, filter [][]common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, alternatives := range filter {
		if len(alternatives) == 0 {
			continue
		}
		found := false
		for _, topic := range alternatives {
			if topics[i] == topic {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
