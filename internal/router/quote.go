package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
	"sojoswap/internal/factory"
)

// Quote returns the amount of B equal in value to amountA at the given
// reserves.
func (r *Router) Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	return amm.Quote(amountA, reserveA, reserveB)
}

func (r *Router) GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	return amm.GetAmountOut(amountIn, reserveIn, reserveOut)
}

func (r *Router) GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	return amm.GetAmountIn(amountOut, reserveIn, reserveOut)
}

// GetReserves returns the reserves of the a/b pair ordered as (a, b).
func (r *Router) GetReserves(a, b common.Address) (*uint256.Int, *uint256.Int, error) {
	token0, _, err := factory.SortTokens(a, b)
	if err != nil {
		return nil, nil, err
	}
	p, err := r.pairFor(a, b)
	if err != nil {
		return nil, nil, err
	}
	reserve0, reserve1, _ := p.Reserves()
	if a == token0 {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

// GetAmountsOut chains GetAmountOut along path. amounts[0] is amountIn.
func (r *Router) GetAmountsOut(amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[0] = new(uint256.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		reserveIn, reserveOut, err := r.GetReserves(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		out, err := amm.GetAmountOut(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// GetAmountsIn chains GetAmountIn backwards along path. The last entry is
// amountOut.
func (r *Router) GetAmountsIn(amountOut *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[len(path)-1] = new(uint256.Int).Set(amountOut)
	for i := len(path) - 1; i > 0; i-- {
		reserveIn, reserveOut, err := r.GetReserves(path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		in, err := amm.GetAmountIn(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i-1, err)
		}
		amounts[i-1] = in
	}
	return amounts, nil
}
