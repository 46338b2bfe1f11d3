package amm

import "github.com/holiman/uint256"

var (
	feeMul   = uint256.NewInt(FeeMultiplier)
	feeDen   = uint256.NewInt(FeeDenominator)
	feeDenSq = uint256.NewInt(FeeDenominator * FeeDenominator)
)

// Quote returns the amount of B equal in value to amountA at the current
// reserve ratio: amountA * reserveB / reserveA.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA.IsZero() {
		return nil, ErrInsufficientAmount
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return MulDiv(amountA, reserveB, reserveA)
}

// GetAmountOut returns the maximum output for amountIn after the trading
// fee, rounded down.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	amountInWithFee, err := Mul(amountIn, feeMul)
	if err != nil {
		return nil, err
	}
	denominator, err := Mul(reserveIn, feeDen)
	if err != nil {
		return nil, err
	}
	if denominator, err = Add(denominator, amountInWithFee); err != nil {
		return nil, err
	}
	return MulDiv(amountInWithFee, reserveOut, denominator)
}

// GetAmountIn returns the minimum input that yields amountOut. The result
// is floor-plus-one so the pool's invariant check holds after rounding.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	numerator, err := Mul(reserveIn, amountOut)
	if err != nil {
		return nil, err
	}
	if numerator, err = Mul(numerator, feeDen); err != nil {
		return nil, err
	}
	denominator, err := Mul(new(uint256.Int).Sub(reserveOut, amountOut), feeMul)
	if err != nil {
		return nil, err
	}
	amountIn, err := Div(numerator, denominator)
	if err != nil {
		return nil, err
	}
	return Add(amountIn, uint256.NewInt(1))
}

// CheckK reports whether the fee-adjusted post-trade balances keep the
// constant product:
//
//	(b0*1000 - in0*3) * (b1*1000 - in1*3) >= r0 * r1 * 1000^2
func CheckK(balance0, balance1, amount0In, amount1In, reserve0, reserve1 *uint256.Int) (bool, error) {
	adjusted0, err := feeAdjusted(balance0, amount0In)
	if err != nil {
		return false, err
	}
	adjusted1, err := feeAdjusted(balance1, amount1In)
	if err != nil {
		return false, err
	}
	lhs, err := Mul(adjusted0, adjusted1)
	if err != nil {
		return false, err
	}
	rhs, err := Mul(reserve0, reserve1)
	if err != nil {
		return false, err
	}
	if rhs, err = Mul(rhs, feeDenSq); err != nil {
		return false, err
	}
	return !lhs.Lt(rhs), nil
}

func feeAdjusted(balance, amountIn *uint256.Int) (*uint256.Int, error) {
	scaled, err := Mul(balance, feeDen)
	if err != nil {
		return nil, err
	}
	fee, err := Mul(amountIn, uint256.NewInt(FeeDenominator-FeeMultiplier))
	if err != nil {
		return nil, err
	}
	return Sub(scaled, fee)
}
