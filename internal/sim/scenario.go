package sim

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/metrics"
	"sojoswap/internal/pair"
	"sojoswap/internal/permit"
	"sojoswap/internal/router"
)

// Result summarizes a run.
type Result struct {
	Calls      int
	Failed     int
	Liquidity  int
	Failures   map[string]int
	TaxNative  *uint256.Int
	TaxWrapped *uint256.Int
}

type operation struct {
	name string
	run  func(rng *rand.Rand) error
}

// Run performs cfg.Swaps operations, one block apart. Slippage limits are
// occasionally set one unit past the quote so that failed calls show up in
// metrics and leave state untouched.
func (d *Deployment) Run(ctx context.Context, rng *rand.Rand) (Result, error) {
	res := Result{Failures: make(map[string]int)}
	nativeBefore, wrappedBefore := d.Treasury()

	ops := []operation{
		{"swap_exact_tokens_for_tokens", d.swapExactTokensForTokens},
		{"swap_tokens_for_exact_tokens", d.swapTokensForExactTokens},
		{"swap_exact_native_for_tokens", d.swapExactNativeForTokens},
		{"swap_native_for_exact_tokens", d.swapNativeForExactTokens},
		{"swap_exact_tokens_for_native", d.swapExactTokensForNative},
		{"swap_tokens_for_exact_native", d.swapTokensForExactNative},
		{"swap_fee_on_transfer", d.swapFeeOnTransfer},
		{"liquidity_round_trip", d.liquidityRoundTrip},
	}

	for i := 0; i < d.cfg.Swaps; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d.Host.Advance(d.cfg.BlockInterval)
		op := ops[rng.Intn(len(ops))]
		if op.name == "liquidity_round_trip" {
			res.Liquidity++
		}
		res.Calls++
		if err := op.run(rng); err != nil {
			reason := metrics.Reason(err)
			if reason == "other" {
				return res, fmt.Errorf("%s: %w", op.name, err)
			}
			res.Failed++
			res.Failures[reason]++
			d.logger.Debug("call rejected",
				zap.String("op", op.name),
				zap.String("reason", reason),
				zap.Uint64("block", d.Host.BlockNumber()),
			)
		}
	}

	nativeAfter, wrappedAfter := d.Treasury()
	res.TaxNative = new(uint256.Int).Sub(nativeAfter, nativeBefore)
	res.TaxWrapped = new(uint256.Int).Sub(wrappedAfter, wrappedBefore)
	d.logger.Info("simulation finished",
		zap.Int("calls", res.Calls),
		zap.Int("failed", res.Failed),
		zap.Int("liquidity", res.Liquidity),
		zap.Uint64("last_block", d.Host.BlockNumber()),
		zap.String("tax_native", amm.Dec(res.TaxNative)),
		zap.String("tax_wrapped", amm.Dec(res.TaxWrapped)),
	)
	return res, nil
}

// stressed reports whether this call should use a limit that cannot be met.
func stressed(rng *rand.Rand) bool { return rng.Intn(10) == 0 }

func between(rng *rand.Rand, lo, hi uint64) uint64 {
	return lo + uint64(rng.Int63n(int64(hi-lo+1)))
}

func percent(x *uint256.Int, pct uint64) *uint256.Int {
	out, _ := amm.MulDiv(x, uint256.NewInt(pct), uint256.NewInt(100))
	return out
}

// minOut allows 1% slippage below a net quote, or demands one unit more
// than the quote when stressed.
func minOut(rng *rand.Rand, quoted *uint256.Int) *uint256.Int {
	if stressed(rng) {
		return new(uint256.Int).AddUint64(quoted, 1)
	}
	return percent(quoted, 99)
}

// maxIn allows 1% above a quoted input, or one unit less than the quote
// when stressed.
func maxIn(rng *rand.Rand, quoted *uint256.Int) *uint256.Int {
	if stressed(rng) {
		return new(uint256.Int).SubUint64(quoted, 1)
	}
	return percent(quoted, 101)
}

func (d *Deployment) netOfTax(gross *uint256.Int) (*uint256.Int, error) {
	tax, err := d.Fees.Tax(gross)
	if err != nil {
		return nil, err
	}
	return amm.Sub(gross, tax)
}

func (d *Deployment) withTax(base *uint256.Int) (*uint256.Int, error) {
	tax, err := d.Fees.Tax(base)
	if err != nil {
		return nil, err
	}
	return amm.Add(base, tax)
}

func (d *Deployment) swapExactTokensForTokens(rng *rand.Rand) error {
	path := []common.Address{d.Sojo.Address(), d.Stable.Address()}
	if rng.Intn(2) == 0 {
		path = []common.Address{d.Sojo.Address(), d.Wrapped.Address(), d.Stable.Address()}
	}
	in := units(between(rng, 1, 100), 18)
	quote, err := d.Router.GetAmountsOut(in, path)
	if err != nil {
		return err
	}
	_, err = d.Router.SwapExactTokensForTokens(Trader, in, minOut(rng, quote[len(quote)-1]), path, Trader, d.deadline())
	return err
}

func (d *Deployment) swapTokensForExactTokens(rng *rand.Rand) error {
	path := []common.Address{d.Stable.Address(), d.Sojo.Address()}
	out := units(between(rng, 1, 50), 18)
	quote, err := d.Router.GetAmountsIn(out, path)
	if err != nil {
		return err
	}
	_, err = d.Router.SwapTokensForExactTokens(Trader, out, maxIn(rng, quote[0]), path, Trader, d.deadline())
	return err
}

func (d *Deployment) swapExactNativeForTokens(rng *rand.Rand) error {
	path := []common.Address{d.Wrapped.Address(), d.Sojo.Address()}
	value := units(between(rng, 1, 100), 16)
	net, err := d.netOfTax(value)
	if err != nil {
		return err
	}
	quote, err := d.Router.GetAmountsOut(net, path)
	if err != nil {
		return err
	}
	_, err = d.Router.SwapExactNativeForTokens(Trader, value, minOut(rng, quote[1]), path, Trader, d.deadline())
	return err
}

func (d *Deployment) swapNativeForExactTokens(rng *rand.Rand) error {
	path := []common.Address{d.Wrapped.Address(), d.Stable.Address()}
	out := units(between(rng, 10, 500), 6)
	quote, err := d.Router.GetAmountsIn(out, path)
	if err != nil {
		return err
	}
	cost, err := d.withTax(quote[0])
	if err != nil {
		return err
	}
	_, err = d.Router.SwapNativeForExactTokens(Trader, maxIn(rng, cost), out, path, Trader, d.deadline())
	return err
}

func (d *Deployment) swapExactTokensForNative(rng *rand.Rand) error {
	path := []common.Address{d.Stable.Address(), d.Wrapped.Address()}
	in := units(between(rng, 10, 2_000), 6)
	quote, err := d.Router.GetAmountsOut(in, path)
	if err != nil {
		return err
	}
	net, err := d.netOfTax(quote[1])
	if err != nil {
		return err
	}
	_, err = d.Router.SwapExactTokensForNative(Trader, in, minOut(rng, net), path, Trader, d.deadline())
	return err
}

func (d *Deployment) swapTokensForExactNative(rng *rand.Rand) error {
	path := []common.Address{d.Sojo.Address(), d.Wrapped.Address()}
	out := units(between(rng, 1, 100), 16)
	quote, err := d.Router.GetAmountsIn(out, path)
	if err != nil {
		return err
	}
	_, err = d.Router.SwapTokensForExactNative(Trader, out, maxIn(rng, quote[0]), path, Trader, d.deadline())
	return err
}

// swapFeeOnTransfer trades the deflating asset in either direction. Quotes
// ignore the burn, so limits leave room for it.
func (d *Deployment) swapFeeOnTransfer(rng *rand.Rand) error {
	if rng.Intn(2) == 0 {
		path := []common.Address{d.Deflating.Address(), d.Wrapped.Address()}
		in := units(between(rng, 1, 100), 18)
		_, err := d.Router.SwapExactTokensForNativeSupportingFeeOnTransferTokens(Trader, in, amm.Zero(), path, Trader, d.deadline())
		return err
	}
	path := []common.Address{d.Wrapped.Address(), d.Deflating.Address()}
	value := units(between(rng, 1, 100), 16)
	net, err := d.netOfTax(value)
	if err != nil {
		return err
	}
	quote, err := d.Router.GetAmountsOut(net, path)
	if err != nil {
		return err
	}
	_, err = d.Router.SwapExactNativeForTokensSupportingFeeOnTransferTokens(Trader, value, percent(quote[1], 98), path, Trader, d.deadline())
	return err
}

// liquidityRoundTrip adds liquidity and removes part of it by signature.
func (d *Deployment) liquidityRoundTrip(rng *rand.Rand) error {
	if rng.Intn(2) == 0 {
		return d.tokenRoundTrip(rng)
	}
	return d.nativeRoundTrip(rng)
}

func (d *Deployment) tokenRoundTrip(rng *rand.Rand) error {
	n := between(rng, 10, 1_000)
	dep, err := d.Router.AddLiquidity(d.Provider, router.AddLiquidityParams{
		TokenA:         d.Sojo.Address(),
		TokenB:         d.Stable.Address(),
		AmountADesired: units(n, 18),
		AmountBDesired: units(3*n, 6),
		AmountAMin:     amm.Zero(),
		AmountBMin:     amm.Zero(),
		To:             d.Provider,
		Deadline:       d.deadline(),
	})
	if err != nil {
		return err
	}
	p, err := d.Factory.MustGetPair(d.Sojo.Address(), d.Stable.Address())
	if err != nil {
		return err
	}
	liquidity := percent(dep.Liquidity, between(rng, 10, 100))
	sig, err := d.signPermit(p, liquidity)
	if err != nil {
		return err
	}
	_, _, err = d.Router.RemoveLiquidityWithPermit(d.Provider, router.RemoveLiquidityParams{
		TokenA:     d.Sojo.Address(),
		TokenB:     d.Stable.Address(),
		Liquidity:  liquidity,
		AmountAMin: amm.Zero(),
		AmountBMin: amm.Zero(),
		To:         d.Provider,
		Deadline:   d.deadline(),
	}, router.PermitParams{Signature: sig})
	return err
}

func (d *Deployment) nativeRoundTrip(rng *rand.Rand) error {
	value := units(between(rng, 1, 100), 16)
	dep, err := d.Router.AddLiquidityNative(d.Provider, value, router.AddLiquidityNativeParams{
		Token:              d.Sojo.Address(),
		AmountTokenDesired: units(between(rng, 10, 200), 18),
		AmountTokenMin:     amm.Zero(),
		AmountNativeMin:    amm.Zero(),
		To:                 d.Provider,
		Deadline:           d.deadline(),
	})
	if err != nil {
		return err
	}
	p, err := d.Factory.MustGetPair(d.Sojo.Address(), d.Wrapped.Address())
	if err != nil {
		return err
	}
	liquidity := percent(dep.Liquidity, between(rng, 10, 100))
	sig, err := d.signPermit(p, liquidity)
	if err != nil {
		return err
	}
	_, _, err = d.Router.RemoveLiquidityNativeWithPermit(d.Provider, router.RemoveLiquidityNativeParams{
		Token:           d.Sojo.Address(),
		Liquidity:       liquidity,
		AmountTokenMin:  amm.Zero(),
		AmountNativeMin: amm.Zero(),
		To:              d.Provider,
		Deadline:        d.deadline(),
	}, router.PermitParams{Signature: sig})
	return err
}

func (d *Deployment) signPermit(p *pair.Pair, value *uint256.Int) (permit.Signature, error) {
	return permit.Sign(d.providerKey, p.DomainSeparator(), permit.Message{
		Owner:    d.Provider,
		Spender:  d.Router.Address(),
		Value:    value,
		Nonce:    p.Nonces(d.Provider),
		Deadline: d.deadline(),
	})
}
