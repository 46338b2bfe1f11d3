package aggregate

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

var yearSeconds = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))

// computeFeeRates returns each side's LP fee as a share of that side's
// closing reserve.
func computeFeeRates(fee0, fee1, reserve0, reserve1 *big.Int) (*string, *string) {
	return rateOf(fee0, reserve0), rateOf(fee1, reserve1)
}

func rateOf(fee, reserve *big.Int) *string {
	if reserve == nil || reserve.Sign() == 0 {
		return nil
	}
	rate := decimal.NewFromBigInt(fee, 0).DivRound(decimal.NewFromBigInt(reserve, 0), ratioScale)
	s := rate.StringFixed(ratioScale)
	return &s
}

// computeAPR annualizes the window's return on pool value. Both reserves
// carry half the value of the pool, so the window return is the mean of the
// two per-side fee rates.
func computeAPR(feeRate0, feeRate1 *string, windowSeconds uint64) *string {
	if windowSeconds == 0 || feeRate0 == nil || feeRate1 == nil {
		return nil
	}
	r0, err := decimal.NewFromString(*feeRate0)
	if err != nil {
		return nil
	}
	r1, err := decimal.NewFromString(*feeRate1)
	if err != nil {
		return nil
	}
	apr := r0.Add(r1).Div(decimal.NewFromInt(2)).
		Mul(yearSeconds).
		DivRound(decimal.NewFromInt(int64(windowSeconds)), ratioScale)
	s := apr.StringFixed(ratioScale)
	return &s
}

// computePrice returns the price of asset0 in units of asset1, adjusted for
// decimals.
func computePrice(reserve0, reserve1 *big.Int, decimals0, decimals1 uint8) *string {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() == 0 {
		return nil
	}
	r0 := decimal.NewFromBigInt(reserve0, -int32(decimals0))
	r1 := decimal.NewFromBigInt(reserve1, -int32(decimals1))
	s := r1.DivRound(r0, ratioScale).StringFixed(ratioScale)
	return &s
}
