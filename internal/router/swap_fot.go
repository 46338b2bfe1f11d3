package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
	"sojoswap/internal/factory"
)

// SwapExactTokensForTokensSupportingFeeOnTransferTokens sells amountIn of
// path[0] when any asset on the path may deduct a fee in transfer. Each hop
// swaps what its pair actually received, and the minimum is checked against
// the recipient's measured balance change. It returns the amount received.
func (r *Router) SwapExactTokensForTokensSupportingFeeOnTransferTokens(caller common.Address, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) (*uint256.Int, error) {
	var received *uint256.Int
	err := r.run("swapExactTokensForTokensSupportingFeeOnTransferTokens", deadline, path, func() error {
		if err := validatePath(path); err != nil {
			return err
		}
		r.metrics.ObservePath(len(path))
		first, err := r.token(path[0])
		if err != nil {
			return err
		}
		in, err := r.taxInputFrom(caller, first, amountIn)
		if err != nil {
			return err
		}
		if err := r.payFirstPairFrom(caller, first, path, in); err != nil {
			return err
		}
		received, err = r.measuredFinish(path, to, amountOutMin, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}

// SwapExactNativeForTokensSupportingFeeOnTransferTokens is the native-input
// form of SwapExactTokensForTokensSupportingFeeOnTransferTokens.
func (r *Router) SwapExactNativeForTokensSupportingFeeOnTransferTokens(caller common.Address, value, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) (*uint256.Int, error) {
	var received *uint256.Int
	err := r.run("swapExactNativeForTokensSupportingFeeOnTransferTokens", deadline, path, func() error {
		if err := r.startsWithWrapped(path); err != nil {
			return err
		}
		r.metrics.ObservePath(len(path))
		in, err := r.wrapValue(caller, value)
		if err != nil {
			return err
		}
		if err := r.payFirstPair(path, in); err != nil {
			return err
		}
		received, err = r.measuredFinish(path, to, amountOutMin, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}

// SwapExactTokensForNativeSupportingFeeOnTransferTokens sells amountIn for
// native units, measuring the wrapped output the router received.
func (r *Router) SwapExactTokensForNativeSupportingFeeOnTransferTokens(caller common.Address, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) (*uint256.Int, error) {
	var received *uint256.Int
	err := r.run("swapExactTokensForNativeSupportingFeeOnTransferTokens", deadline, path, func() error {
		if err := r.endsWithWrapped(path); err != nil {
			return err
		}
		r.metrics.ObservePath(len(path))
		first, err := r.token(path[0])
		if err != nil {
			return err
		}
		in, err := r.taxInputFrom(caller, first, amountIn)
		if err != nil {
			return err
		}
		if err := r.payFirstPairFrom(caller, first, path, in); err != nil {
			return err
		}
		received, err = r.measuredFinish(path, to, amountOutMin, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}

// swapSupportingFeeOnTransfer swaps hop by hop, deriving each input from
// the pair's balance above its reserve.
func (r *Router) swapSupportingFeeOnTransfer(path []common.Address, to common.Address) error {
	for i := 0; i < len(path)-1; i++ {
		input, output := path[i], path[i+1]
		token0, _, err := factory.SortTokens(input, output)
		if err != nil {
			return err
		}
		p, err := r.pairFor(input, output)
		if err != nil {
			return err
		}
		reserve0, reserve1, _ := p.Reserves()
		reserveIn, reserveOut := reserve0, reserve1
		if input != token0 {
			reserveIn, reserveOut = reserve1, reserve0
		}
		in, err := r.token(input)
		if err != nil {
			return err
		}
		amountInput, err := amm.Sub(in.BalanceOf(p.Address()), reserveIn)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
		amountOutput, err := amm.GetAmountOut(amountInput, reserveIn, reserveOut)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
		amount0Out, amount1Out := amm.Zero(), amountOutput
		if input != token0 {
			amount0Out, amount1Out = amountOutput, amm.Zero()
		}
		recipient, err := r.hopRecipient(path, i, to)
		if err != nil {
			return err
		}
		if err := p.Swap(r.addr, amount0Out, amount1Out, recipient, nil); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return nil
}

// measuredFinish swaps along path with the first pair already funded and
// returns what the recipient received, net of tax.
func (r *Router) measuredFinish(path []common.Address, to common.Address, amountOutMin *uint256.Int, unwrap bool) (*uint256.Int, error) {
	last := path[len(path)-1]
	if !unwrap && !r.fees.IsTaxed(last) {
		out, err := r.token(last)
		if err != nil {
			return nil, err
		}
		before := out.BalanceOf(to)
		if err := r.swapSupportingFeeOnTransfer(path, to); err != nil {
			return nil, err
		}
		received, err := amm.Sub(out.BalanceOf(to), before)
		if err != nil {
			return nil, err
		}
		if received.Lt(amountOutMin) {
			return nil, fmt.Errorf("%w: %s below %s", amm.ErrInsufficientOutputAmount, amm.Dec(received), amm.Dec(amountOutMin))
		}
		return received, nil
	}

	before := r.weth.BalanceOf(r.addr)
	if err := r.swapSupportingFeeOnTransfer(path, r.addr); err != nil {
		return nil, err
	}
	gross, err := amm.Sub(r.weth.BalanceOf(r.addr), before)
	if err != nil {
		return nil, err
	}
	if err := r.checkOutput(path, gross, amountOutMin); err != nil {
		return nil, err
	}
	return r.payOut(gross, to, unwrap)
}
