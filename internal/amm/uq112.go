package amm

import "github.com/holiman/uint256"

// EncodeUQ112 returns y as a UQ112x112 fixed-point number.
func EncodeUQ112(y *uint256.Int) *uint256.Int {
	return new(uint256.Int).Lsh(y, 112)
}

// UQDiv divides a UQ112x112 by a plain integer. x must be non-zero.
func UQDiv(q, x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(q, x)
}

// AccumulatePrice returns cumulative + (numerator/denominator as UQ112x112) * elapsed.
// Accumulators wrap modulo 2^256; consumers take differences.
func AccumulatePrice(cumulative, numerator, denominator *uint256.Int, elapsed uint64) *uint256.Int {
	price := UQDiv(EncodeUQ112(numerator), denominator)
	price.Mul(price, uint256.NewInt(elapsed))
	return price.Add(price, cumulative)
}
