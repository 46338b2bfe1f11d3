package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
	"sojoswap/internal/factory"
	"sojoswap/internal/token"
)

// SwapExactTokensForTokens sells exactly amountIn of path[0] for as much of
// the last asset as the pools give, failing below amountOutMin.
func (r *Router) SwapExactTokensForTokens(caller common.Address, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	var amounts []*uint256.Int
	err := r.run("swapExactTokensForTokens", deadline, path, func() error {
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
		amounts, err = r.GetAmountsOut(in, path)
		if err != nil {
			return err
		}
		if err := r.checkOutput(path, amounts[len(amounts)-1], amountOutMin); err != nil {
			return err
		}
		if err := r.payFirstPairFrom(caller, first, path, amounts[0]); err != nil {
			return err
		}
		return r.finish(amounts, path, to, false)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapTokensForExactTokens buys exactly amountOut of the last asset, paying
// at most amountInMax of path[0].
func (r *Router) SwapTokensForExactTokens(caller common.Address, amountOut, amountInMax *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	var amounts []*uint256.Int
	err := r.run("swapTokensForExactTokens", deadline, path, func() error {
		if err := validatePath(path); err != nil {
			return err
		}
		r.metrics.ObservePath(len(path))
		var err error
		amounts, err = r.GetAmountsIn(amountOut, path)
		if err != nil {
			return err
		}
		first, err := r.token(path[0])
		if err != nil {
			return err
		}
		if err := r.surchargeInputFrom(caller, first, amounts[0], amountInMax); err != nil {
			return err
		}
		if err := r.payFirstPairFrom(caller, first, path, amounts[0]); err != nil {
			return err
		}
		return r.finish(amounts, path, to, false)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapExactNativeForTokens sells the attached native value. path must start
// at the wrapped asset.
func (r *Router) SwapExactNativeForTokens(caller common.Address, value, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	var amounts []*uint256.Int
	err := r.run("swapExactNativeForTokens", deadline, path, func() error {
		if err := r.startsWithWrapped(path); err != nil {
			return err
		}
		r.metrics.ObservePath(len(path))
		in, err := r.wrapValue(caller, value)
		if err != nil {
			return err
		}
		amounts, err = r.GetAmountsOut(in, path)
		if err != nil {
			return err
		}
		if err := r.checkOutput(path, amounts[len(amounts)-1], amountOutMin); err != nil {
			return err
		}
		if err := r.payFirstPair(path, amounts[0]); err != nil {
			return err
		}
		return r.finish(amounts, path, to, false)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapTokensForExactNative buys exactly amountOut native units, before tax.
// path must end at the wrapped asset.
func (r *Router) SwapTokensForExactNative(caller common.Address, amountOut, amountInMax *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	var amounts []*uint256.Int
	err := r.run("swapTokensForExactNative", deadline, path, func() error {
		if err := r.endsWithWrapped(path); err != nil {
			return err
		}
		r.metrics.ObservePath(len(path))
		var err error
		amounts, err = r.GetAmountsIn(amountOut, path)
		if err != nil {
			return err
		}
		first, err := r.token(path[0])
		if err != nil {
			return err
		}
		if err := r.surchargeInputFrom(caller, first, amounts[0], amountInMax); err != nil {
			return err
		}
		if err := r.payFirstPairFrom(caller, first, path, amounts[0]); err != nil {
			return err
		}
		return r.finish(amounts, path, to, true)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapExactTokensForNative sells exactly amountIn for native units. path
// must end at the wrapped asset.
func (r *Router) SwapExactTokensForNative(caller common.Address, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	var amounts []*uint256.Int
	err := r.run("swapExactTokensForNative", deadline, path, func() error {
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
		amounts, err = r.GetAmountsOut(in, path)
		if err != nil {
			return err
		}
		if err := r.checkOutput(path, amounts[len(amounts)-1], amountOutMin); err != nil {
			return err
		}
		if err := r.payFirstPairFrom(caller, first, path, amounts[0]); err != nil {
			return err
		}
		return r.finish(amounts, path, to, true)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapNativeForExactTokens buys exactly amountOut with attached native
// value. The value must cover amounts[0] plus its tax; the rest is refunded.
func (r *Router) SwapNativeForExactTokens(caller common.Address, value, amountOut *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	var amounts []*uint256.Int
	err := r.run("swapNativeForExactTokens", deadline, path, func() error {
		if err := r.startsWithWrapped(path); err != nil {
			return err
		}
		r.metrics.ObservePath(len(path))
		var err error
		amounts, err = r.GetAmountsIn(amountOut, path)
		if err != nil {
			return err
		}
		tax, err := r.fees.Tax(amounts[0])
		if err != nil {
			return err
		}
		cost, err := amm.Add(amounts[0], tax)
		if err != nil {
			return err
		}
		if cost.Gt(value) {
			return fmt.Errorf("%w: needs %s, attached %s", amm.ErrExcessiveInputAmount, amm.Dec(cost), amm.Dec(value))
		}
		if err := r.pullValue(caller, value); err != nil {
			return err
		}
		paid, err := r.fees.Surcharge(r.native, r.addr, amounts[0])
		if err != nil {
			return err
		}
		r.recordTax(token.NativeAddress, paid)
		if err := r.weth.Deposit(r.addr, amounts[0]); err != nil {
			return err
		}
		if err := r.payFirstPair(path, amounts[0]); err != nil {
			return err
		}
		if err := r.finish(amounts, path, to, false); err != nil {
			return err
		}
		return r.refund(caller)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// swap runs precomputed hop amounts. The first pair must already hold
// amounts[0]; each pair pays the next one directly.
func (r *Router) swap(amounts []*uint256.Int, path []common.Address, to common.Address) error {
	for i := 0; i < len(path)-1; i++ {
		input, output := path[i], path[i+1]
		token0, _, err := factory.SortTokens(input, output)
		if err != nil {
			return err
		}
		amountOut := amounts[i+1]
		amount0Out, amount1Out := amm.Zero(), amountOut
		if input != token0 {
			amount0Out, amount1Out = amountOut, amm.Zero()
		}
		recipient, err := r.hopRecipient(path, i, to)
		if err != nil {
			return err
		}
		p, err := r.pairFor(input, output)
		if err != nil {
			return err
		}
		if err := p.Swap(r.addr, amount0Out, amount1Out, recipient, nil); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return nil
}

func (r *Router) hopRecipient(path []common.Address, i int, to common.Address) (common.Address, error) {
	if i >= len(path)-2 {
		return to, nil
	}
	next, err := r.pairFor(path[i+1], path[i+2])
	if err != nil {
		return common.Address{}, err
	}
	return next.Address(), nil
}

// finish swaps along path. Output in the taxed asset goes through the
// router so the tax can be taken before the recipient is paid.
func (r *Router) finish(amounts []*uint256.Int, path []common.Address, to common.Address, unwrap bool) error {
	if !unwrap && !r.fees.IsTaxed(path[len(path)-1]) {
		return r.swap(amounts, path, to)
	}
	if err := r.swap(amounts, path, r.addr); err != nil {
		return err
	}
	_, err := r.payOut(amounts[len(amounts)-1], to, unwrap)
	return err
}

// payOut pays gross wrapped units held by the router to `to`, less tax,
// unwrapping first when asked.
func (r *Router) payOut(gross *uint256.Int, to common.Address, unwrap bool) (*uint256.Int, error) {
	var asset token.Transferer = r.weth
	if unwrap {
		if err := r.weth.Withdraw(r.addr, gross); err != nil {
			return nil, err
		}
		asset = r.native
	}
	net, tax, err := r.fees.Collect(asset, r.addr, gross)
	if err != nil {
		return nil, err
	}
	r.recordTax(asset.Address(), tax)
	if err := token.SafeTransfer(asset, r.addr, to, net); err != nil {
		return nil, err
	}
	return net, nil
}

// checkOutput compares what the recipient will actually get with the
// caller's minimum. Taxed output is compared net of tax.
func (r *Router) checkOutput(path []common.Address, gross, minimum *uint256.Int) error {
	received := gross
	if r.fees.IsTaxed(path[len(path)-1]) {
		tax, err := r.fees.Tax(gross)
		if err != nil {
			return err
		}
		received = new(uint256.Int).Sub(gross, tax)
	}
	if received.Lt(minimum) {
		return fmt.Errorf("%w: %s below %s", amm.ErrInsufficientOutputAmount, amm.Dec(received), amm.Dec(minimum))
	}
	return nil
}

// taxInputFrom takes the input tax out of amountIn when path starts at the
// taxed asset and returns what is left to swap.
func (r *Router) taxInputFrom(caller common.Address, first token.Token, amountIn *uint256.Int) (*uint256.Int, error) {
	if !r.fees.IsTaxed(first.Address()) {
		return amountIn, nil
	}
	net, tax, err := r.fees.CollectFrom(first, r.addr, caller, amountIn)
	if err != nil {
		return nil, err
	}
	r.recordTax(first.Address(), tax)
	return net, nil
}

// surchargeInputFrom bounds the input of an exact-output swap, adding the
// input tax when path starts at the taxed asset, and collects that tax.
func (r *Router) surchargeInputFrom(caller common.Address, first token.Token, amountIn, amountInMax *uint256.Int) error {
	cost := amountIn
	taxed := r.fees.IsTaxed(first.Address())
	if taxed {
		tax, err := r.fees.Tax(amountIn)
		if err != nil {
			return err
		}
		if cost, err = amm.Add(amountIn, tax); err != nil {
			return err
		}
	}
	if cost.Gt(amountInMax) {
		return fmt.Errorf("%w: needs %s, max %s", amm.ErrExcessiveInputAmount, amm.Dec(cost), amm.Dec(amountInMax))
	}
	if !taxed {
		return nil
	}
	tax, err := r.fees.SurchargeFrom(first, r.addr, caller, amountIn)
	if err != nil {
		return err
	}
	r.recordTax(first.Address(), tax)
	return nil
}

// wrapValue pulls attached value, takes the input tax and wraps the rest.
func (r *Router) wrapValue(caller common.Address, value *uint256.Int) (*uint256.Int, error) {
	if err := r.pullValue(caller, value); err != nil {
		return nil, err
	}
	net, tax, err := r.fees.Collect(r.native, r.addr, value)
	if err != nil {
		return nil, err
	}
	r.recordTax(token.NativeAddress, tax)
	if err := r.weth.Deposit(r.addr, net); err != nil {
		return nil, err
	}
	return net, nil
}

func (r *Router) payFirstPairFrom(caller common.Address, first token.Token, path []common.Address, amount *uint256.Int) error {
	p, err := r.pairFor(path[0], path[1])
	if err != nil {
		return err
	}
	return token.SafeTransferFrom(first, r.addr, caller, p.Address(), amount)
}

func (r *Router) payFirstPair(path []common.Address, amount *uint256.Int) error {
	p, err := r.pairFor(path[0], path[1])
	if err != nil {
		return err
	}
	return token.SafeTransfer(r.weth, r.addr, p.Address(), amount)
}
