package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"sojoswap/internal/model"
)

// LP fee charged on every swap input, in thousandths.
const (
	lpFeeNumerator   = 3
	lpFeeDenominator = 1000
)

// Accumulator holds aggregate values for a pair window.
type Accumulator struct {
	ChainID     uint64
	PairAddress string
	PairMeta    model.PairMeta
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	MintCount   uint64
	BurnCount   uint64
	Volume0     *big.Int
	Volume1     *big.Int
	Fee0        *big.Int
	Fee1        *big.Int
	Reserve0    *big.Int
	Reserve1    *big.Int
	LastBlock   uint64
	LastTS      uint64
	FirstBlock  uint64
	SyncBlock   uint64
}

// NewAccumulator opens a window for the pair that emitted record. Reserves
// carried from the previous window seed the new one.
func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64, carried *reserves) *Accumulator {
	acc := &Accumulator{
		ChainID:     record.ChainID,
		PairAddress: record.Address,
		PairMeta:    record.PairMeta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		LastBlock:   record.BlockNumber,
		LastTS:      record.Timestamp,
		FirstBlock:  record.BlockNumber,
	}
	if carried != nil {
		acc.Reserve0 = new(big.Int).Set(carried.reserve0)
		acc.Reserve1 = new(big.Int).Set(carried.reserve1)
		acc.SyncBlock = carried.block
	}
	return acc
}

// AddEvent folds one pair event into the window.
func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}

	switch strings.ToLower(record.EventName) {
	case "swap":
		var swap model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case "sync":
		var sync model.SyncEventData
		if err := json.Unmarshal(record.Decoded, &sync); err != nil {
			return fmt.Errorf("decode sync: %w", err)
		}
		return a.applySync(sync, record.BlockNumber)
	case "mint":
		a.MintCount++
		return nil
	case "burn":
		a.BurnCount++
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	amounts := make([]*big.Int, 0, 4)
	for _, raw := range []string{swap.Amount0In, swap.Amount1In, swap.Amount0Out, swap.Amount1Out} {
		v, err := parseBigInt(raw)
		if err != nil {
			return err
		}
		amounts = append(amounts, v)
	}
	in0, in1, out0, out1 := amounts[0], amounts[1], amounts[2], amounts[3]

	a.Volume0.Add(a.Volume0, in0).Add(a.Volume0, out0)
	a.Volume1.Add(a.Volume1, in1).Add(a.Volume1, out1)
	a.Fee0.Add(a.Fee0, lpFee(in0))
	a.Fee1.Add(a.Fee1, lpFee(in1))
	a.SwapCount++
	return nil
}

func (a *Accumulator) applySync(sync model.SyncEventData, block uint64) error {
	r0, err := parseBigInt(sync.Reserve0)
	if err != nil {
		return err
	}
	r1, err := parseBigInt(sync.Reserve1)
	if err != nil {
		return err
	}
	if block < a.SyncBlock {
		return nil
	}
	a.Reserve0, a.Reserve1, a.SyncBlock = r0, r1, block
	return nil
}

func (a *Accumulator) carry() *reserves {
	if a.Reserve0 == nil || a.Reserve1 == nil {
		return nil
	}
	return &reserves{reserve0: a.Reserve0, reserve1: a.Reserve1, block: a.SyncBlock}
}

type reserves struct {
	reserve0 *big.Int
	reserve1 *big.Int
	block    uint64
}

func lpFee(amountIn *big.Int) *big.Int {
	fee := new(big.Int).Mul(amountIn, big.NewInt(lpFeeNumerator))
	return fee.Div(fee, big.NewInt(lpFeeDenominator))
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}
