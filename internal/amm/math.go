// Package amm holds the integer math shared by pools and the router:
// checked 256-bit arithmetic, the constant-product quoting library and the
// UQ112x112 price encoding.
package amm

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// MinimumLiquidity is locked forever on the first mint of every pool.
	MinimumLiquidity = 1000
	// FeeMultiplier / FeeDenominator is the share of input that counts
	// toward the invariant (0.3% trading fee).
	FeeMultiplier  = 997
	FeeDenominator = 1000
	// BasisPoints is the denominator of tax rates.
	BasisPoints = 10000
)

// MaxReserve is the largest reserve a pool may record (2^112 - 1).
var MaxReserve = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))

// MaxUint256 is the "infinite" allowance value.
var MaxUint256 = new(uint256.Int).SetAllOne()

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// N is shorthand for uint256.NewInt.
func N(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("add %s + %s: %w", Dec(a), Dec(b), ErrOverflow)
	}
	return z, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("sub %s - %s: %w", Dec(a), Dec(b), ErrUnderflow)
	}
	return z, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("mul %s * %s: %w", Dec(a), Dec(b), ErrOverflow)
	}
	return z, nil
}

// MulDiv returns floor(a*b/d). The product is taken at 512 bits, so only a
// quotient that does not fit 256 bits overflows.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, fmt.Errorf("muldiv %s * %s / %s: %w", Dec(a), Dec(b), Dec(d), ErrOverflow)
	}
	return z, nil
}

// Div returns floor(a/d).
func Div(a, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	return new(uint256.Int).Div(a, d), nil
}

// CeilDiv returns ceil(a/d).
func CeilDiv(a, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	q := new(uint256.Int).Div(a, d)
	if !new(uint256.Int).Mod(a, d).IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// Dec formats x in base 10; nil prints as 0.
func Dec(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}

// ParseDec parses a base-10 amount.
func ParseDec(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("amount %q: %w", s, ErrOverflow)
	}
	return v, nil
}

// MustDec is ParseDec for constants and tests.
func MustDec(s string) *uint256.Int {
	v, err := ParseDec(s)
	if err != nil {
		panic(err)
	}
	return v
}
