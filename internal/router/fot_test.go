package router

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"sojoswap/internal/amm"
	"sojoswap/internal/token"
)

func onePercentLess(x *uint256.Int) *uint256.Int {
	return sub(x, new(uint256.Int).Div(x, amm.N(100)))
}

func TestAddLiquidityNativeMeasuresDeflatingDelivery(t *testing.T) {
	e := newEnv(t, 0)
	dep := e.addLiquidityNative(t, e.dtt.Address(), e18(1), e18(4))
	require.True(t, dep.AmountA.Eq(onePercentLess(e18(1))), "delivered %s", amm.Dec(dep.AmountA))
	require.True(t, dep.AmountB.Eq(e18(4)))

	p := e.pair(t, e.dtt.Address(), e.weth.Address())
	r0, r1, _ := p.Reserves()
	require.True(t, add(r0, r1).Eq(add(dep.AmountA, dep.AmountB)))

	_, err := e.router.AddLiquidityNative(e.wallet, e18(4), AddLiquidityNativeParams{
		Token: e.dtt.Address(), AmountTokenDesired: e18(1),
		AmountTokenMin: e18(1), AmountNativeMin: amm.Zero(),
		To: e.wallet, Deadline: e.deadline(),
	})
	require.ErrorIs(t, err, amm.ErrInsufficientAAmount)
}

func TestAddLiquidityFailsLoudlyOnShortDelivery(t *testing.T) {
	e := newEnv(t, 0)
	_, err := e.router.AddLiquidity(e.wallet, AddLiquidityParams{
		TokenA: e.dtt.Address(), TokenB: e.tokenA.Address(),
		AmountADesired: e18(1), AmountBDesired: e18(1),
		AmountAMin: e18(1), AmountBMin: e18(1),
		To: e.wallet, Deadline: e.deadline(),
	})
	require.ErrorIs(t, err, amm.ErrInsufficientAAmount)
	_, ok := e.factory.GetPair(e.dtt.Address(), e.tokenA.Address())
	require.False(t, ok)
}

func TestRemoveLiquidityNativeSupportingFeeOnTransferTokens(t *testing.T) {
	e := newEnv(t, 0)
	dep := e.addLiquidityNative(t, e.dtt.Address(), e18(1), e18(4))
	p := e.pair(t, e.dtt.Address(), e.weth.Address())
	require.NoError(t, p.Approve(e.wallet, e.router.Address(), amm.MaxUint256))

	params := RemoveLiquidityNativeParams{
		Token: e.dtt.Address(), Liquidity: dep.Liquidity,
		AmountTokenMin: amm.Zero(), AmountNativeMin: amm.Zero(),
		To: other, Deadline: e.deadline(),
	}

	// The plain variant forwards the burned amount, which the router never
	// fully received.
	_, _, err := e.router.RemoveLiquidityNative(e.wallet, params)
	require.ErrorIs(t, err, amm.ErrTransferFailed)

	reserveBefore := e.dtt.BalanceOf(p.Address())
	amountNative, err := e.router.RemoveLiquidityNativeSupportingFeeOnTransferTokens(e.wallet, params)
	require.NoError(t, err)
	require.False(t, amountNative.IsZero())
	require.True(t, e.native.BalanceOf(other).Eq(amountNative))

	burned := sub(reserveBefore, e.dtt.BalanceOf(p.Address()))
	// Two transfers of 1% each: pair to router, router to recipient.
	require.True(t, e.dtt.BalanceOf(other).Eq(onePercentLess(onePercentLess(burned))))
	e.requireRouterEmpty(t)
}

func TestRemoveLiquidityNativeWithPermitSupportingFeeOnTransferTokens(t *testing.T) {
	e := newEnv(t, 0)
	dep := e.addLiquidityNative(t, e.dtt.Address(), e18(1), e18(4))
	p := e.pair(t, e.dtt.Address(), e.weth.Address())

	deadline := e.deadline()
	sig := e.signPermit(t, p, dep.Liquidity, deadline)
	amountNative, err := e.router.RemoveLiquidityNativeWithPermitSupportingFeeOnTransferTokens(e.wallet, RemoveLiquidityNativeParams{
		Token: e.dtt.Address(), Liquidity: dep.Liquidity,
		AmountTokenMin: amm.Zero(), AmountNativeMin: amm.Zero(),
		To: e.wallet, Deadline: deadline,
	}, PermitParams{Signature: sig})
	require.NoError(t, err)
	require.False(t, amountNative.IsZero())
	require.True(t, amountNative.Lt(e18(4)))
	require.True(t, p.BalanceOf(e.wallet).IsZero())
	e.requireRouterEmpty(t)
}

func TestSwapExactTokensForTokensSupportingFeeOnTransferTokens(t *testing.T) {
	e := newEnv(t, 0)
	e.addLiquidity(t, e.dtt.Address(), e.tokenA.Address(), e18(5), e18(10))
	in := e18(1)

	// The plain entrypoint quotes the nominal input, which the pair never
	// receives.
	_, err := e.router.SwapExactTokensForTokens(e.wallet, in, amm.Zero(), []common.Address{e.dtt.Address(), e.tokenA.Address()}, e.wallet, e.deadline())
	require.ErrorIs(t, err, amm.ErrKInvariantViolated)

	before := e.tokenA.BalanceOf(e.wallet)
	received, err := e.router.SwapExactTokensForTokensSupportingFeeOnTransferTokens(e.wallet, in, amm.Zero(), []common.Address{e.dtt.Address(), e.tokenA.Address()}, e.wallet, e.deadline())
	require.NoError(t, err)
	require.True(t, e.tokenA.BalanceOf(e.wallet).Eq(add(before, received)))

	// Selling into the deflating asset: the minimum applies to what arrives.
	path := []common.Address{e.tokenA.Address(), e.dtt.Address()}
	quote, err := e.router.GetAmountsOut(in, path)
	require.NoError(t, err)
	_, err = e.router.SwapExactTokensForTokensSupportingFeeOnTransferTokens(e.wallet, in, quote[1], path, other, e.deadline())
	require.ErrorIs(t, err, amm.ErrInsufficientOutputAmount)

	received, err = e.router.SwapExactTokensForTokensSupportingFeeOnTransferTokens(e.wallet, in, onePercentLess(quote[1]), path, other, e.deadline())
	require.NoError(t, err)
	require.True(t, received.Eq(onePercentLess(quote[1])))
	require.True(t, e.dtt.BalanceOf(other).Eq(received))
	e.requireRouterEmpty(t)
}

func TestNativeSwapsSupportingFeeOnTransferTokens(t *testing.T) {
	e := newEnv(t, 0)
	e.addLiquidityNative(t, e.dtt.Address(), e18(10), e18(5))

	received, err := e.router.SwapExactNativeForTokensSupportingFeeOnTransferTokens(e.wallet, e17(1), amm.Zero(), []common.Address{e.weth.Address(), e.dtt.Address()}, other, e.deadline())
	require.NoError(t, err)
	require.True(t, e.dtt.BalanceOf(other).Eq(received))

	nativeBefore := e.native.BalanceOf(other)
	out, err := e.router.SwapExactTokensForNativeSupportingFeeOnTransferTokens(e.wallet, e18(1), amm.Zero(), []common.Address{e.dtt.Address(), e.weth.Address()}, other, e.deadline())
	require.NoError(t, err)
	require.True(t, e.native.BalanceOf(other).Eq(add(nativeBefore, out)))
	e.requireRouterEmpty(t)
}

// Adding liquidity with a fee-on-transfer asset must either deliver at
// least the caller's minimums at the pool ratio or fail without changing
// anything.
func TestAddLiquidityWithFeeOnTransferProperty(t *testing.T) {
	e := newEnv(t, 0)

	rapid.Check(t, func(rt *rapid.T) {
		bps := rapid.Uint64Range(0, 500).Draw(rt, "burnBps")
		fot := token.NewERC20(e.host, "Fee Token", "FEE", token.WithBurnOnTransfer(bps))
		require.NoError(rt, fot.Mint(e.wallet, e18(1_000)))
		require.NoError(rt, fot.Approve(e.wallet, e.router.Address(), amm.MaxUint256))

		seed := rapid.Uint64Range(1, 50).Draw(rt, "seed")
		_, err := e.router.AddLiquidity(e.wallet, AddLiquidityParams{
			TokenA: fot.Address(), TokenB: e.tokenB.Address(),
			AmountADesired: e18(seed), AmountBDesired: e18(10),
			AmountAMin: amm.Zero(), AmountBMin: amm.Zero(),
			To: e.wallet, Deadline: e.deadline(),
		})
		require.NoError(rt, err)
		p, err := e.factory.MustGetPair(fot.Address(), e.tokenB.Address())
		require.NoError(rt, err)

		desiredA := uint256.NewInt(rapid.Uint64Range(1_000_000, 10_000_000_000_000_000_000).Draw(rt, "desiredA"))
		desiredB := uint256.NewInt(rapid.Uint64Range(1_000_000, 10_000_000_000_000_000_000).Draw(rt, "desiredB"))
		slack := rapid.Uint64Range(0, 1_000).Draw(rt, "slackBps")
		minA := taxOf(desiredA, amm.BasisPoints-slack)
		minB := taxOf(desiredB, amm.BasisPoints-slack)

		reserveA, reserveB, err := e.router.GetReserves(fot.Address(), e.tokenB.Address())
		require.NoError(rt, err)
		supply := p.TotalSupply()

		dep, err := e.router.AddLiquidity(e.wallet, AddLiquidityParams{
			TokenA: fot.Address(), TokenB: e.tokenB.Address(),
			AmountADesired: desiredA, AmountBDesired: desiredB,
			AmountAMin: minA, AmountBMin: minB,
			To: e.wallet, Deadline: e.deadline(),
		})
		afterA, afterB, rerr := e.router.GetReserves(fot.Address(), e.tokenB.Address())
		require.NoError(rt, rerr)

		if err != nil {
			if !errors.Is(err, amm.ErrInsufficientAAmount) && !errors.Is(err, amm.ErrInsufficientBAmount) && !errors.Is(err, amm.ErrInsufficientLiquidityMinted) {
				rt.Fatalf("unexpected failure: %v", err)
			}
			require.True(rt, afterA.Eq(reserveA) && afterB.Eq(reserveB), "failed deposit changed reserves")
			require.True(rt, p.TotalSupply().Eq(supply), "failed deposit minted LP")
			return
		}
		require.False(rt, dep.AmountA.Lt(minA), "delivered A below minimum")
		require.False(rt, dep.AmountB.Lt(minB), "delivered B below minimum")
		require.True(rt, afterA.Eq(add(reserveA, dep.AmountA)), "reserve A tracks delivery")
		require.True(rt, afterB.Eq(add(reserveB, dep.AmountB)), "reserve B tracks delivery")
		if bps > 0 && slack == 0 && !dep.AmountA.IsZero() {
			rt.Fatalf("burning token delivered in full with zero slack")
		}
		e.requireRouterEmpty(rt)
	})
}
