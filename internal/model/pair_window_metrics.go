package model

import "time"

// PairWindowMetrics stores aggregated metrics for a pair window. Amounts are
// decimal strings scaled by each asset's decimals. Reserve and rate fields
// are nil when the window saw no reserve update for the pair.
type PairWindowMetrics struct {
	ChainID        uint64
	PairAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	MintCount      uint64
	BurnCount      uint64
	Volume0        string
	Volume1        string
	Fee0           string
	Fee1           string
	Reserve0       *string
	Reserve1       *string
	Price0         *string
	FeeRate0       *string
	FeeRate1       *string
	APR            *string
}
