package aggregate

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const ratioScale = 18

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).StringFixed(int32(decimals))
}

func formatOptional(value *big.Int, decimals uint8) *string {
	if value == nil {
		return nil
	}
	s := formatTokenAmount(value, decimals)
	return &s
}
