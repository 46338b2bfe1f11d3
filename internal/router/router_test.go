package router

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/factory"
	"sojoswap/internal/fee"
	"sojoswap/internal/metrics"
	"sojoswap/internal/pair"
	"sojoswap/internal/permit"
	"sojoswap/internal/token"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000ad111")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000007ea5")
	other    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const walletKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type env struct {
	host    *chain.Host
	native  *token.Native
	weth    *token.Wrapped
	tokenA  *token.ERC20
	tokenB  *token.ERC20
	tokenC  *token.ERC20
	dtt     *token.ERC20
	factory *factory.Factory
	fees    *fee.Accountant
	metrics *metrics.RouterMetrics
	router  *Router
	key     *ecdsa.PrivateKey
	wallet  common.Address
}

func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func e17(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(100_000_000_000_000_000))
}

func add(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Add(a, b) }
func sub(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Sub(a, b) }

func newEnv(t *testing.T, taxBps uint64) *env {
	t.Helper()
	host, err := chain.NewHost(chain.Config{ChainID: 31337, Timestamp: 1_700_000_000}, nil)
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(walletKey)
	require.NoError(t, err)

	e := &env{host: host, key: key, wallet: crypto.PubkeyToAddress(key.PublicKey)}
	e.native = token.NewNative(host)
	e.weth = token.NewWrapped(host, e.native)
	e.tokenA = token.NewERC20(host, "Token A", "TKA")
	e.tokenB = token.NewERC20(host, "Token B", "TKB")
	e.tokenC = token.NewERC20(host, "Token C", "TKC")
	e.dtt = token.NewDeflating(host, "Deflating Test Token", "DTT")

	e.factory, err = factory.New(host, admin, nil)
	require.NoError(t, err)
	e.fees, err = fee.New(host, admin, fee.Policy{RateBasisPoints: taxBps, Treasury: treasury}, e.weth.Address(), nil)
	require.NoError(t, err)
	e.metrics = metrics.New()
	e.router, err = New(host, Config{Factory: e.factory, Wrapped: e.weth, Accountant: e.fees, Metrics: e.metrics})
	require.NoError(t, err)

	require.NoError(t, e.native.Fund(e.wallet, e18(1_000)))
	require.NoError(t, e.weth.Deposit(e.wallet, e18(100)))
	require.NoError(t, e.weth.Approve(e.wallet, e.router.Address(), amm.MaxUint256))
	for _, tok := range []*token.ERC20{e.tokenA, e.tokenB, e.tokenC, e.dtt} {
		require.NoError(t, tok.Mint(e.wallet, e18(10_000)))
		require.NoError(t, tok.Approve(e.wallet, e.router.Address(), amm.MaxUint256))
	}
	return e
}

func (e *env) deadline() uint64 { return e.host.Timestamp() + 600 }

func (e *env) addLiquidity(t *testing.T, a, b common.Address, amountA, amountB *uint256.Int) *Deposit {
	t.Helper()
	dep, err := e.router.AddLiquidity(e.wallet, AddLiquidityParams{
		TokenA: a, TokenB: b,
		AmountADesired: amountA, AmountBDesired: amountB,
		AmountAMin: amm.Zero(), AmountBMin: amm.Zero(),
		To: e.wallet, Deadline: e.deadline(),
	})
	require.NoError(t, err)
	return dep
}

func (e *env) addLiquidityNative(t *testing.T, tok common.Address, amountToken, value *uint256.Int) *Deposit {
	t.Helper()
	dep, err := e.router.AddLiquidityNative(e.wallet, value, AddLiquidityNativeParams{
		Token: tok, AmountTokenDesired: amountToken,
		AmountTokenMin: amm.Zero(), AmountNativeMin: amm.Zero(),
		To: e.wallet, Deadline: e.deadline(),
	})
	require.NoError(t, err)
	return dep
}

func (e *env) pair(t *testing.T, a, b common.Address) *pair.Pair {
	t.Helper()
	p, err := e.factory.MustGetPair(a, b)
	require.NoError(t, err)
	return p
}

func (e *env) requireRouterEmpty(t require.TestingT) {
	r := e.router.Address()
	require.True(t, e.native.BalanceOf(r).IsZero(), "router native")
	require.True(t, e.weth.BalanceOf(r).IsZero(), "router WETH")
	for _, tok := range []*token.ERC20{e.tokenA, e.tokenB, e.tokenC, e.dtt} {
		require.True(t, tok.BalanceOf(r).IsZero(), "router %s", tok.Symbol())
	}
}

func (e *env) path(assets ...token.Transferer) []common.Address {
	out := make([]common.Address, len(assets))
	for i, a := range assets {
		out[i] = a.Address()
	}
	return out
}

func (e *env) signPermit(t *testing.T, p *pair.Pair, value *uint256.Int, deadline uint64) permit.Signature {
	t.Helper()
	sig, err := permit.Sign(e.key, p.DomainSeparator(), permit.Message{
		Owner:    e.wallet,
		Spender:  e.router.Address(),
		Value:    value,
		Nonce:    p.Nonces(e.wallet),
		Deadline: deadline,
	})
	require.NoError(t, err)
	return sig
}

func TestNewRequiresCollaborators(t *testing.T) {
	e := newEnv(t, 0)
	_, err := New(e.host, Config{Wrapped: e.weth, Accountant: e.fees})
	require.Error(t, err)
	_, err = New(e.host, Config{Factory: e.factory, Accountant: e.fees})
	require.Error(t, err)

	second := token.NewWrapped(e.host, e.native)
	_, err = New(e.host, Config{Factory: e.factory, Wrapped: second, Accountant: e.fees})
	require.Error(t, err)
}

func TestQuoting(t *testing.T) {
	e := newEnv(t, 0)
	e.addLiquidity(t, e.tokenA.Address(), e.tokenB.Address(), amm.N(10000), amm.N(10000))

	q, err := e.router.Quote(amm.N(1), amm.N(100), amm.N(200))
	require.NoError(t, err)
	require.Equal(t, uint64(2), q.Uint64())

	path := e.path(e.tokenA, e.tokenB)
	out, err := e.router.GetAmountsOut(amm.N(2), path)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 1}, []uint64{out[0].Uint64(), out[1].Uint64()})

	in, err := e.router.GetAmountsIn(amm.N(1), path)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 1}, []uint64{in[0].Uint64(), in[1].Uint64()})

	_, err = e.router.GetAmountsOut(amm.N(2), e.path(e.tokenA, e.tokenC))
	require.ErrorIs(t, err, amm.ErrPairNotFound)
}

func TestInvalidPath(t *testing.T) {
	e := newEnv(t, 100)
	e.addLiquidity(t, e.tokenA.Address(), e.tokenB.Address(), e18(10), e18(10))
	short := e.path(e.tokenA)
	d := e.deadline()
	w := e.wallet
	one := e18(1)

	calls := map[string]func() error{
		"getAmountsOut": func() error { _, err := e.router.GetAmountsOut(one, short); return err },
		"getAmountsIn":  func() error { _, err := e.router.GetAmountsIn(one, short); return err },
		"exactTokensForTokens": func() error {
			_, err := e.router.SwapExactTokensForTokens(w, one, amm.Zero(), short, w, d)
			return err
		},
		"tokensForExactTokens": func() error {
			_, err := e.router.SwapTokensForExactTokens(w, one, amm.MaxUint256, short, w, d)
			return err
		},
		"exactNativeForTokens": func() error {
			_, err := e.router.SwapExactNativeForTokens(w, one, amm.Zero(), short, w, d)
			return err
		},
		"tokensForExactNative": func() error {
			_, err := e.router.SwapTokensForExactNative(w, one, amm.MaxUint256, short, w, d)
			return err
		},
		"exactTokensForNative": func() error {
			_, err := e.router.SwapExactTokensForNative(w, one, amm.Zero(), short, w, d)
			return err
		},
		"nativeForExactTokens": func() error {
			_, err := e.router.SwapNativeForExactTokens(w, one, one, short, w, d)
			return err
		},
		"exactTokensForTokensFoT": func() error {
			_, err := e.router.SwapExactTokensForTokensSupportingFeeOnTransferTokens(w, one, amm.Zero(), short, w, d)
			return err
		},
		"exactNativeForTokensFoT": func() error {
			_, err := e.router.SwapExactNativeForTokensSupportingFeeOnTransferTokens(w, one, amm.Zero(), short, w, d)
			return err
		},
		"exactTokensForNativeFoT": func() error {
			_, err := e.router.SwapExactTokensForNativeSupportingFeeOnTransferTokens(w, one, amm.Zero(), short, w, d)
			return err
		},
		"nativeEntrypointWithoutWrappedStart": func() error {
			_, err := e.router.SwapExactNativeForTokens(w, one, amm.Zero(), e.path(e.tokenA, e.tokenB), w, d)
			return err
		},
		"nativeEntrypointWithoutWrappedEnd": func() error {
			_, err := e.router.SwapExactTokensForNative(w, one, amm.Zero(), e.path(e.tokenA, e.tokenB), w, d)
			return err
		},
	}
	nativeBefore := e.native.BalanceOf(w)
	for name, call := range calls {
		require.ErrorIs(t, call(), amm.ErrInvalidPath, name)
	}
	require.True(t, e.native.BalanceOf(w).Eq(nativeBefore))
	require.True(t, e.native.BalanceOf(treasury).IsZero())
}

func TestDeadline(t *testing.T) {
	e := newEnv(t, 0)
	now := e.host.Timestamp()

	_, err := e.router.AddLiquidity(e.wallet, AddLiquidityParams{
		TokenA: e.tokenA.Address(), TokenB: e.tokenB.Address(),
		AmountADesired: e18(1), AmountBDesired: e18(1),
		AmountAMin: amm.Zero(), AmountBMin: amm.Zero(),
		To: e.wallet, Deadline: now - 1,
	})
	require.ErrorIs(t, err, amm.ErrExpired)
	_, ok := e.factory.GetPair(e.tokenA.Address(), e.tokenB.Address())
	require.False(t, ok, "expired call must not create the pair")

	// A deadline equal to the current time is still valid.
	_, err = e.router.AddLiquidity(e.wallet, AddLiquidityParams{
		TokenA: e.tokenA.Address(), TokenB: e.tokenB.Address(),
		AmountADesired: e18(1), AmountBDesired: e18(1),
		AmountAMin: amm.Zero(), AmountBMin: amm.Zero(),
		To: e.wallet, Deadline: now,
	})
	require.NoError(t, err)

	_, err = e.router.SwapExactTokensForTokens(e.wallet, amm.N(1000), amm.Zero(), e.path(e.tokenA, e.tokenB), e.wallet, now-1)
	require.ErrorIs(t, err, amm.ErrExpired)
	_, _, err = e.router.RemoveLiquidity(e.wallet, RemoveLiquidityParams{
		TokenA: e.tokenA.Address(), TokenB: e.tokenB.Address(),
		Liquidity: amm.N(1), AmountAMin: amm.Zero(), AmountBMin: amm.Zero(),
		To: e.wallet, Deadline: now - 1,
	})
	require.ErrorIs(t, err, amm.ErrExpired)

	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.CallsTotal.WithLabelValues("addLiquidity", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.FailuresTotal.WithLabelValues("addLiquidity", "expired")))
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.FailuresTotal.WithLabelValues("swapExactTokensForTokens", "expired")))
}

func TestEveryEntrypointExpires(t *testing.T) {
	e := newEnv(t, 100)
	a, b, weth := e.tokenA.Address(), e.tokenB.Address(), e.weth.Address()
	e.addLiquidity(t, a, b, e18(10), e18(10))
	e.addLiquidityNative(t, a, e18(10), e18(10))

	w := e.wallet
	one := e18(1)
	expired := e.host.Timestamp() - 1
	toTokens := e.path(e.tokenA, e.tokenB)
	fromNative := []common.Address{weth, a}
	toNative := []common.Address{a, weth}
	remove := RemoveLiquidityParams{
		TokenA: a, TokenB: b, Liquidity: amm.N(1),
		AmountAMin: amm.Zero(), AmountBMin: amm.Zero(),
		To: w, Deadline: expired,
	}
	removeNative := RemoveLiquidityNativeParams{
		Token: a, Liquidity: amm.N(1),
		AmountTokenMin: amm.Zero(), AmountNativeMin: amm.Zero(),
		To: w, Deadline: expired,
	}
	auth := PermitParams{ApproveMax: true}

	calls := map[string]func() error{
		"addLiquidity": func() error {
			_, err := e.router.AddLiquidity(w, AddLiquidityParams{
				TokenA: a, TokenB: b, AmountADesired: one, AmountBDesired: one,
				AmountAMin: amm.Zero(), AmountBMin: amm.Zero(), To: w, Deadline: expired,
			})
			return err
		},
		"addLiquidityNative": func() error {
			_, err := e.router.AddLiquidityNative(w, one, AddLiquidityNativeParams{
				Token: a, AmountTokenDesired: one,
				AmountTokenMin: amm.Zero(), AmountNativeMin: amm.Zero(), To: w, Deadline: expired,
			})
			return err
		},
		"removeLiquidity": func() error {
			_, _, err := e.router.RemoveLiquidity(w, remove)
			return err
		},
		"removeLiquidityWithPermit": func() error {
			_, _, err := e.router.RemoveLiquidityWithPermit(w, remove, auth)
			return err
		},
		"removeLiquidityNative": func() error {
			_, _, err := e.router.RemoveLiquidityNative(w, removeNative)
			return err
		},
		"removeLiquidityNativeWithPermit": func() error {
			_, _, err := e.router.RemoveLiquidityNativeWithPermit(w, removeNative, auth)
			return err
		},
		"removeLiquidityNativeSupportingFeeOnTransferTokens": func() error {
			_, err := e.router.RemoveLiquidityNativeSupportingFeeOnTransferTokens(w, removeNative)
			return err
		},
		"removeLiquidityNativeWithPermitSupportingFeeOnTransferTokens": func() error {
			_, err := e.router.RemoveLiquidityNativeWithPermitSupportingFeeOnTransferTokens(w, removeNative, auth)
			return err
		},
		"swapExactTokensForTokens": func() error {
			_, err := e.router.SwapExactTokensForTokens(w, one, amm.Zero(), toTokens, w, expired)
			return err
		},
		"swapTokensForExactTokens": func() error {
			_, err := e.router.SwapTokensForExactTokens(w, amm.N(1000), one, toTokens, w, expired)
			return err
		},
		"swapExactNativeForTokens": func() error {
			_, err := e.router.SwapExactNativeForTokens(w, one, amm.Zero(), fromNative, w, expired)
			return err
		},
		"swapTokensForExactNative": func() error {
			_, err := e.router.SwapTokensForExactNative(w, amm.N(1000), one, toNative, w, expired)
			return err
		},
		"swapExactTokensForNative": func() error {
			_, err := e.router.SwapExactTokensForNative(w, one, amm.Zero(), toNative, w, expired)
			return err
		},
		"swapNativeForExactTokens": func() error {
			_, err := e.router.SwapNativeForExactTokens(w, one, amm.N(1000), fromNative, w, expired)
			return err
		},
		"swapExactTokensForTokensSupportingFeeOnTransferTokens": func() error {
			_, err := e.router.SwapExactTokensForTokensSupportingFeeOnTransferTokens(w, one, amm.Zero(), toTokens, w, expired)
			return err
		},
		"swapExactNativeForTokensSupportingFeeOnTransferTokens": func() error {
			_, err := e.router.SwapExactNativeForTokensSupportingFeeOnTransferTokens(w, one, amm.Zero(), fromNative, w, expired)
			return err
		},
		"swapExactTokensForNativeSupportingFeeOnTransferTokens": func() error {
			_, err := e.router.SwapExactTokensForNativeSupportingFeeOnTransferTokens(w, one, amm.Zero(), toNative, w, expired)
			return err
		},
	}

	nativeBefore := e.native.BalanceOf(w)
	aBefore, bBefore := e.tokenA.BalanceOf(w), e.tokenB.BalanceOf(w)
	for name, call := range calls {
		require.ErrorIs(t, call(), amm.ErrExpired, name)
		require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.FailuresTotal.WithLabelValues(name, "expired")), name)
	}
	require.True(t, e.native.BalanceOf(w).Eq(nativeBefore))
	require.True(t, e.tokenA.BalanceOf(w).Eq(aBefore))
	require.True(t, e.tokenB.BalanceOf(w).Eq(bBefore))
	require.True(t, e.native.BalanceOf(treasury).IsZero())
	e.requireRouterEmpty(t)
}

func TestAddLiquidityUsesPoolRatio(t *testing.T) {
	e := newEnv(t, 0)
	a, b := e.tokenA.Address(), e.tokenB.Address()

	first := e.addLiquidity(t, a, b, e18(1), e18(4))
	require.True(t, first.Liquidity.Eq(sub(e18(2), amm.N(amm.MinimumLiquidity))))

	dep := e.addLiquidity(t, a, b, e18(2), e18(2))
	require.True(t, dep.AmountA.Eq(e17(5)), "amountA %s", amm.Dec(dep.AmountA))
	require.True(t, dep.AmountB.Eq(e18(2)))
	require.True(t, dep.Liquidity.Eq(e18(1)))

	_, err := e.router.AddLiquidity(e.wallet, AddLiquidityParams{
		TokenA: a, TokenB: b,
		AmountADesired: e18(2), AmountBDesired: e18(2),
		AmountAMin: e18(1), AmountBMin: amm.Zero(),
		To: e.wallet, Deadline: e.deadline(),
	})
	require.ErrorIs(t, err, amm.ErrInsufficientAAmount)

	_, err = e.router.AddLiquidity(e.wallet, AddLiquidityParams{
		TokenA: a, TokenB: b,
		AmountADesired: e18(1), AmountBDesired: e18(8),
		AmountAMin: amm.Zero(), AmountBMin: e18(5),
		To: e.wallet, Deadline: e.deadline(),
	})
	require.ErrorIs(t, err, amm.ErrInsufficientBAmount)
	e.requireRouterEmpty(t)
}

func TestRemoveLiquidity(t *testing.T) {
	e := newEnv(t, 0)
	a, b := e.tokenA.Address(), e.tokenB.Address()
	dep := e.addLiquidity(t, a, b, e18(1), e18(4))
	p := e.pair(t, a, b)

	params := RemoveLiquidityParams{
		TokenA: a, TokenB: b, Liquidity: dep.Liquidity,
		AmountAMin: amm.Zero(), AmountBMin: amm.Zero(),
		To: e.wallet, Deadline: e.deadline(),
	}
	_, _, err := e.router.RemoveLiquidity(e.wallet, params)
	require.ErrorIs(t, err, amm.ErrInsufficientAllowance)

	require.NoError(t, p.Approve(e.wallet, e.router.Address(), amm.MaxUint256))
	params.AmountAMin = e18(1)
	_, _, err = e.router.RemoveLiquidity(e.wallet, params)
	require.ErrorIs(t, err, amm.ErrInsufficientAAmount)

	params.AmountAMin = amm.Zero()
	amountA, amountB, err := e.router.RemoveLiquidity(e.wallet, params)
	require.NoError(t, err)
	require.True(t, amountA.Eq(sub(e18(1), amm.N(500))))
	require.True(t, amountB.Eq(sub(e18(4), amm.N(2000))))
	require.True(t, p.BalanceOf(e.wallet).IsZero())
	require.Equal(t, uint64(amm.MinimumLiquidity), p.TotalSupply().Uint64())
	e.requireRouterEmpty(t)
}

func TestRemoveLiquidityWithPermit(t *testing.T) {
	e := newEnv(t, 0)
	a, b := e.tokenA.Address(), e.tokenB.Address()
	dep := e.addLiquidity(t, a, b, e18(1), e18(4))
	p := e.pair(t, a, b)

	deadline := e.deadline()
	sig := e.signPermit(t, p, dep.Liquidity, deadline)
	params := RemoveLiquidityParams{
		TokenA: a, TokenB: b, Liquidity: dep.Liquidity,
		AmountAMin: amm.Zero(), AmountBMin: amm.Zero(),
		To: e.wallet, Deadline: deadline,
	}

	// A signature over max allowance does not verify for the exact amount.
	_, _, err := e.router.RemoveLiquidityWithPermit(e.wallet, params, PermitParams{ApproveMax: true, Signature: sig})
	require.ErrorIs(t, err, amm.ErrInvalidSignature)

	amountA, amountB, err := e.router.RemoveLiquidityWithPermit(e.wallet, params, PermitParams{Signature: sig})
	require.NoError(t, err)
	require.True(t, amountA.Eq(sub(e18(1), amm.N(500))))
	require.True(t, amountB.Eq(sub(e18(4), amm.N(2000))))
	require.Equal(t, uint64(1), p.Nonces(e.wallet).Uint64())
}

func TestSwapExactTokensForTokens(t *testing.T) {
	e := newEnv(t, 0)
	a, b := e.tokenA.Address(), e.tokenB.Address()
	e.addLiquidity(t, a, b, e18(5), e18(10))
	path := []common.Address{a, b}
	expected := amm.MustDec("1662497915624478906")

	_, err := e.router.SwapExactTokensForTokens(e.wallet, e18(1), add(expected, amm.N(1)), path, e.wallet, e.deadline())
	require.ErrorIs(t, err, amm.ErrInsufficientOutputAmount)

	beforeA, beforeB := e.tokenA.BalanceOf(e.wallet), e.tokenB.BalanceOf(e.wallet)
	amounts, err := e.router.SwapExactTokensForTokens(e.wallet, e18(1), expected, path, e.wallet, e.deadline())
	require.NoError(t, err)
	require.True(t, amounts[0].Eq(e18(1)))
	require.True(t, amounts[1].Eq(expected))
	require.True(t, e.tokenA.BalanceOf(e.wallet).Eq(sub(beforeA, e18(1))))
	require.True(t, e.tokenB.BalanceOf(e.wallet).Eq(add(beforeB, expected)))
	e.requireRouterEmpty(t)
}

func TestSwapTokensForExactTokens(t *testing.T) {
	e := newEnv(t, 0)
	a, b := e.tokenA.Address(), e.tokenB.Address()
	e.addLiquidity(t, a, b, e18(5), e18(10))
	path := []common.Address{a, b}
	expectedIn := amm.MustDec("557227237267357629")

	_, err := e.router.SwapTokensForExactTokens(e.wallet, e18(1), sub(expectedIn, amm.N(1)), path, e.wallet, e.deadline())
	require.ErrorIs(t, err, amm.ErrExcessiveInputAmount)

	amounts, err := e.router.SwapTokensForExactTokens(e.wallet, e18(1), expectedIn, path, e.wallet, e.deadline())
	require.NoError(t, err)
	require.True(t, amounts[0].Eq(expectedIn))
	require.True(t, amounts[1].Eq(e18(1)))
	e.requireRouterEmpty(t)
}

func TestMultiHopSwap(t *testing.T) {
	e := newEnv(t, 0)
	a, b, c := e.tokenA.Address(), e.tokenB.Address(), e.tokenC.Address()
	e.addLiquidity(t, a, b, e18(10), e18(10))
	e.addLiquidity(t, b, c, e18(10), e18(20))
	path := []common.Address{a, b, c}

	quote, err := e.router.GetAmountsOut(e18(1), path)
	require.NoError(t, err)
	beforeC := e.tokenC.BalanceOf(other)
	amounts, err := e.router.SwapExactTokensForTokens(e.wallet, e18(1), amm.Zero(), path, other, e.deadline())
	require.NoError(t, err)
	require.Len(t, amounts, 3)
	for i := range quote {
		require.True(t, quote[i].Eq(amounts[i]), "hop %d", i)
	}
	require.True(t, e.tokenC.BalanceOf(other).Eq(add(beforeC, amounts[2])))

	// Exact output over the same path.
	in, err := e.router.GetAmountsIn(e18(1), []common.Address{c, b, a})
	require.NoError(t, err)
	got, err := e.router.SwapTokensForExactTokens(e.wallet, e18(1), in[0], []common.Address{c, b, a}, other, e.deadline())
	require.NoError(t, err)
	require.True(t, got[2].Eq(e18(1)))
	e.requireRouterEmpty(t)
}

func TestAddLiquidityNativeRefundsUnusedValue(t *testing.T) {
	e := newEnv(t, 0)
	e.addLiquidityNative(t, e.tokenA.Address(), e18(10), e18(5))

	before := e.native.BalanceOf(e.wallet)
	dep := e.addLiquidityNative(t, e.tokenA.Address(), e18(1), e18(1))
	require.True(t, dep.AmountA.Eq(e18(1)))
	require.True(t, dep.AmountB.Eq(e17(5)))
	require.True(t, e.native.BalanceOf(e.wallet).Eq(sub(before, e17(5))))
	e.requireRouterEmpty(t)
}

func TestRemoveLiquidityNativeWithPermitApproveMax(t *testing.T) {
	e := newEnv(t, 0)
	dep := e.addLiquidityNative(t, e.tokenA.Address(), e18(4), e18(1))
	p := e.pair(t, e.tokenA.Address(), e.weth.Address())

	deadline := e.deadline()
	sig := e.signPermit(t, p, amm.MaxUint256, deadline)
	beforeNative := e.native.BalanceOf(other)
	amountToken, amountNative, err := e.router.RemoveLiquidityNativeWithPermit(e.wallet, RemoveLiquidityNativeParams{
		Token: e.tokenA.Address(), Liquidity: dep.Liquidity,
		AmountTokenMin: amm.Zero(), AmountNativeMin: amm.Zero(),
		To: other, Deadline: deadline,
	}, PermitParams{ApproveMax: true, Signature: sig})
	require.NoError(t, err)
	require.True(t, amountToken.Eq(sub(e18(4), amm.N(2000))))
	require.True(t, amountNative.Eq(sub(e18(1), amm.N(500))))
	require.True(t, e.native.BalanceOf(other).Eq(add(beforeNative, amountNative)))
	require.True(t, e.tokenA.BalanceOf(other).Eq(amountToken))
	require.True(t, p.Allowance(e.wallet, e.router.Address()).Eq(amm.MaxUint256))
	e.requireRouterEmpty(t)
}
