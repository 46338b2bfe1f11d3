package pair_test

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/factory"
	"sojoswap/internal/pair"
	"sojoswap/internal/permit"
	"sojoswap/internal/token"
)

var (
	wallet = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	other  = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	admin  = common.HexToAddress("0x00000000000000000000000000000000000ad111")
)

type fixture struct {
	host    *chain.Host
	factory *factory.Factory
	token0  *token.ERC20
	token1  *token.ERC20
	pair    *pair.Pair
}

func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	host, err := chain.NewHost(chain.Config{ChainID: 31337, Timestamp: 1_700_000_000}, nil)
	require.NoError(t, err)

	a := token.NewERC20(host, "Token A", "TKA")
	b := token.NewERC20(host, "Token B", "TKB")
	require.NoError(t, a.Mint(wallet, e18(10_000)))
	require.NoError(t, b.Mint(wallet, e18(10_000)))

	f, err := factory.New(host, admin, nil)
	require.NoError(t, err)
	p, err := f.CreatePair(a.Address(), b.Address())
	require.NoError(t, err)

	fx := &fixture{host: host, factory: f, pair: p, token0: a, token1: b}
	if p.Token0().Address() != a.Address() {
		fx.token0, fx.token1 = b, a
	}
	return fx
}

func (fx *fixture) addLiquidity(t *testing.T, amount0, amount1 *uint256.Int) *uint256.Int {
	t.Helper()
	require.NoError(t, fx.token0.Transfer(wallet, fx.pair.Address(), amount0))
	require.NoError(t, fx.token1.Transfer(wallet, fx.pair.Address(), amount1))
	liquidity, err := fx.pair.Mint(wallet, wallet)
	require.NoError(t, err)
	return liquidity
}

func TestMintInitialLiquidity(t *testing.T) {
	fx := newFixture(t)
	liquidity := fx.addLiquidity(t, e18(1), e18(4))

	expected := new(uint256.Int).Sub(e18(2), uint256.NewInt(amm.MinimumLiquidity))
	require.True(t, liquidity.Eq(expected), "liquidity %s", amm.Dec(liquidity))
	require.True(t, fx.pair.TotalSupply().Eq(e18(2)))
	require.Equal(t, uint64(amm.MinimumLiquidity), fx.pair.BalanceOf(common.Address{}).Uint64())
	require.True(t, fx.pair.BalanceOf(wallet).Eq(expected))

	r0, r1, ts := fx.pair.Reserves()
	require.True(t, r0.Eq(e18(1)))
	require.True(t, r1.Eq(e18(4)))
	require.Equal(t, uint32(fx.host.Timestamp()), ts)
}

func TestMintBelowMinimumFails(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.token0.Transfer(wallet, fx.pair.Address(), uint256.NewInt(1000)))
	require.NoError(t, fx.token1.Transfer(wallet, fx.pair.Address(), uint256.NewInt(1000)))
	_, err := fx.pair.Mint(wallet, wallet)
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidityMinted)
	require.True(t, fx.pair.TotalSupply().IsZero())
}

func TestSwapOutputBoundaries(t *testing.T) {
	// swapAmount, reserve0, reserve1 (all x1e18), expected output
	cases := []struct {
		swap, r0, r1 uint64
		out          string
	}{
		{1, 5, 10, "1662497915624478906"},
		{1, 10, 5, "453305446940074565"},
		{2, 5, 10, "2851015155847869602"},
		{2, 10, 5, "831248957812239453"},
		{1, 10, 10, "906610893880149131"},
		{1, 100, 100, "987158034397061298"},
		{1, 1000, 1000, "996006981039903216"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_%d_%d", tc.swap, tc.r0, tc.r1), func(t *testing.T) {
			fx := newFixture(t)
			fx.addLiquidity(t, e18(tc.r0), e18(tc.r1))

			out := amm.MustDec(tc.out)
			quoted, err := amm.GetAmountOut(e18(tc.swap), e18(tc.r0), e18(tc.r1))
			require.NoError(t, err)
			require.True(t, quoted.Eq(out), "quoted %s", amm.Dec(quoted))

			require.NoError(t, fx.token0.Transfer(wallet, fx.pair.Address(), e18(tc.swap)))
			tooMuch := new(uint256.Int).AddUint64(out, 1)
			err = fx.pair.Swap(wallet, amm.Zero(), tooMuch, wallet, nil)
			require.ErrorIs(t, err, amm.ErrKInvariantViolated)
			require.NoError(t, fx.pair.Swap(wallet, amm.Zero(), out, wallet, nil))
		})
	}
}

func TestSwapUpdatesReservesAndBalances(t *testing.T) {
	fx := newFixture(t)
	fx.addLiquidity(t, e18(5), e18(10))

	swapAmount := e18(1)
	out := amm.MustDec("1662497915624478906")
	before1 := fx.token1.BalanceOf(wallet)
	require.NoError(t, fx.token0.Transfer(wallet, fx.pair.Address(), swapAmount))
	require.NoError(t, fx.pair.Swap(wallet, amm.Zero(), out, wallet, nil))

	r0, r1, _ := fx.pair.Reserves()
	require.True(t, r0.Eq(e18(6)))
	require.True(t, r1.Eq(new(uint256.Int).Sub(e18(10), out)))
	require.True(t, fx.token1.BalanceOf(wallet).Eq(new(uint256.Int).Add(before1, out)))
}

func TestSwapRejections(t *testing.T) {
	fx := newFixture(t)
	fx.addLiquidity(t, e18(5), e18(10))

	require.ErrorIs(t, fx.pair.Swap(wallet, amm.Zero(), amm.Zero(), wallet, nil), amm.ErrInsufficientOutputAmount)
	require.ErrorIs(t, fx.pair.Swap(wallet, amm.Zero(), e18(10), wallet, nil), amm.ErrInsufficientLiquidity)
	require.ErrorIs(t, fx.pair.Swap(wallet, amm.N(1), amm.Zero(), fx.token0.Address(), nil), amm.ErrInvalidTo)
	require.ErrorIs(t, fx.pair.Swap(wallet, amm.N(1), amm.Zero(), fx.token1.Address(), nil), amm.ErrInvalidTo)
	require.ErrorIs(t, fx.pair.Swap(wallet, amm.N(1), amm.Zero(), wallet, nil), amm.ErrInsufficientInputAmount)
	require.ErrorIs(t, fx.pair.Swap(wallet, amm.N(1), amm.Zero(), other, []byte{1}), amm.ErrInvalidTo)
}

func TestFailedSwapRollsBackOptimisticTransfer(t *testing.T) {
	fx := newFixture(t)
	fx.addLiquidity(t, e18(5), e18(10))
	before := fx.token1.BalanceOf(other)
	r0, r1, _ := fx.pair.Reserves()

	err := fx.pair.Swap(wallet, amm.Zero(), e18(1), other, nil)
	require.ErrorIs(t, err, amm.ErrInsufficientInputAmount)
	require.True(t, fx.token1.BalanceOf(other).Eq(before))
	a0, a1, _ := fx.pair.Reserves()
	require.True(t, a0.Eq(r0) && a1.Eq(r1))

	// The lock was released by the rollback.
	require.NoError(t, fx.pair.Sync())
}

func TestBurnReturnsProRataShare(t *testing.T) {
	fx := newFixture(t)
	liquidity := fx.addLiquidity(t, e18(3), e18(3))
	require.True(t, liquidity.Eq(new(uint256.Int).Sub(e18(3), amm.N(amm.MinimumLiquidity))))

	require.NoError(t, fx.pair.Transfer(wallet, fx.pair.Address(), liquidity))
	amount0, amount1, err := fx.pair.Burn(wallet, wallet)
	require.NoError(t, err)
	require.True(t, amount0.Eq(liquidity))
	require.True(t, amount1.Eq(liquidity))
	require.Equal(t, uint64(amm.MinimumLiquidity), fx.pair.TotalSupply().Uint64())
	require.True(t, fx.pair.BalanceOf(wallet).IsZero())

	r0, r1, _ := fx.pair.Reserves()
	require.Equal(t, uint64(1000), r0.Uint64())
	require.Equal(t, uint64(1000), r1.Uint64())

	_, _, err = fx.pair.Burn(wallet, wallet)
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidityBurned)
}

func TestMintBurnRoundTripLosesAtMostOneUnit(t *testing.T) {
	fx := newFixture(t)
	fx.addLiquidity(t, e18(7), e18(7))
	require.NoError(t, fx.token0.Transfer(wallet, other, e18(2)))
	require.NoError(t, fx.token1.Transfer(wallet, other, e18(2)))

	deposit0 := amm.MustDec("1234567890123456789")
	r0, r1, _ := fx.pair.Reserves()
	deposit1, err := amm.Quote(deposit0, r0, r1)
	require.NoError(t, err)

	require.NoError(t, fx.token0.Transfer(other, fx.pair.Address(), deposit0))
	require.NoError(t, fx.token1.Transfer(other, fx.pair.Address(), deposit1))
	liquidity, err := fx.pair.Mint(other, other)
	require.NoError(t, err)

	require.NoError(t, fx.pair.Transfer(other, fx.pair.Address(), liquidity))
	amount0, amount1, err := fx.pair.Burn(other, other)
	require.NoError(t, err)

	require.False(t, amount0.Gt(deposit0))
	require.False(t, amount1.Gt(deposit1))
	require.True(t, new(uint256.Int).Sub(deposit0, amount0).Uint64() <= 1)
	require.True(t, new(uint256.Int).Sub(deposit1, amount1).Uint64() <= 1)
}

func TestPriceAccumulators(t *testing.T) {
	fx := newFixture(t)
	fx.addLiquidity(t, e18(3), e18(3))
	_, _, start := fx.pair.Reserves()

	fx.host.Advance(1)
	require.NoError(t, fx.pair.Sync())

	// Equal reserves price each asset at exactly 1.0 in UQ112x112.
	one := new(uint256.Int).Lsh(uint256.NewInt(1), 112)
	require.True(t, fx.pair.Price0CumulativeLast().Eq(one))
	require.True(t, fx.pair.Price1CumulativeLast().Eq(one))

	// A swap in the same block leaves the accumulators alone.
	require.NoError(t, fx.token0.Transfer(wallet, fx.pair.Address(), e18(3)))
	require.NoError(t, fx.pair.Swap(wallet, amm.Zero(), e18(1), wallet, nil))
	require.True(t, fx.pair.Price0CumulativeLast().Eq(one))

	fx.host.Advance(10)
	require.NoError(t, fx.pair.Sync())
	// reserves are now (6, 2): price0 = 2/6, price1 = 6/2
	price0 := new(uint256.Int).Div(new(uint256.Int).Lsh(e18(2), 112), e18(6))
	price1 := new(uint256.Int).Div(new(uint256.Int).Lsh(e18(6), 112), e18(2))
	want0 := new(uint256.Int).Add(one, new(uint256.Int).Mul(price0, uint256.NewInt(10)))
	want1 := new(uint256.Int).Add(one, new(uint256.Int).Mul(price1, uint256.NewInt(10)))
	require.True(t, fx.pair.Price0CumulativeLast().Eq(want0))
	require.True(t, fx.pair.Price1CumulativeLast().Eq(want1))

	_, _, ts := fx.pair.Reserves()
	require.Equal(t, start+11, ts)
}

func TestSkimAndSync(t *testing.T) {
	fx := newFixture(t)
	fx.addLiquidity(t, e18(2), e18(2))

	require.NoError(t, fx.token0.Transfer(wallet, fx.pair.Address(), amm.N(500)))
	require.NoError(t, fx.pair.Skim(other))
	require.Equal(t, uint64(500), fx.token0.BalanceOf(other).Uint64())

	require.NoError(t, fx.token1.Transfer(wallet, fx.pair.Address(), amm.N(700)))
	require.NoError(t, fx.pair.Sync())
	_, r1, _ := fx.pair.Reserves()
	require.True(t, r1.Eq(new(uint256.Int).AddUint64(e18(2), 700)))
}

func TestReserveOverflow(t *testing.T) {
	fx := newFixture(t)
	huge := new(uint256.Int).AddUint64(amm.MaxReserve, 1)
	require.NoError(t, fx.token0.Mint(wallet, huge))
	require.NoError(t, fx.token0.Transfer(wallet, fx.pair.Address(), huge))
	require.NoError(t, fx.token1.Transfer(wallet, fx.pair.Address(), e18(1)))
	_, err := fx.pair.Mint(wallet, wallet)
	require.ErrorIs(t, err, amm.ErrOverflow)
}

func TestProtocolFee(t *testing.T) {
	fx := newFixture(t)
	feeTo := common.HexToAddress("0x00000000000000000000000000000000000fee70")
	require.ErrorIs(t, fx.factory.SetFeeTo(wallet, feeTo), amm.ErrForbidden)
	require.NoError(t, fx.factory.SetFeeTo(admin, feeTo))

	require.NoError(t, fx.token0.Mint(wallet, e18(1000)))
	require.NoError(t, fx.token1.Mint(wallet, e18(1000)))
	liquidity := fx.addLiquidity(t, e18(1000), e18(1000))
	require.True(t, fx.pair.KLast().Eq(new(uint256.Int).Mul(e18(1000), e18(1000))))

	require.NoError(t, fx.token1.Transfer(wallet, fx.pair.Address(), e18(1)))
	require.NoError(t, fx.pair.Swap(wallet, amm.MustDec("996006981039903216"), amm.Zero(), wallet, nil))

	require.NoError(t, fx.pair.Transfer(wallet, fx.pair.Address(), liquidity))
	_, _, err := fx.pair.Burn(wallet, wallet)
	require.NoError(t, err)

	protocol := amm.MustDec("249750499251388")
	require.True(t, fx.pair.BalanceOf(feeTo).Eq(protocol), "feeTo LP %s", amm.Dec(fx.pair.BalanceOf(feeTo)))
	require.True(t, fx.pair.TotalSupply().Eq(new(uint256.Int).AddUint64(protocol, amm.MinimumLiquidity)))
}

func TestPermitSetsAllowance(t *testing.T) {
	fx := newFixture(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	domain, err := permit.DomainSeparator(big.NewInt(31337), fx.pair.Address())
	require.NoError(t, err)
	require.Equal(t, domain, fx.pair.DomainSeparator())

	deadline := fx.host.Timestamp() + 60
	sig, err := permit.Sign(key, domain, permit.Message{
		Owner: owner, Spender: other, Value: amm.N(12345), Nonce: fx.pair.Nonces(owner), Deadline: deadline,
	})
	require.NoError(t, err)

	require.NoError(t, fx.pair.Permit(owner, other, amm.N(12345), deadline, sig))
	require.Equal(t, uint64(12345), fx.pair.Allowance(owner, other).Uint64())
	require.Equal(t, uint64(1), fx.pair.Nonces(owner).Uint64())

	require.ErrorIs(t, fx.pair.Permit(owner, other, amm.N(12345), deadline, sig), amm.ErrInvalidSignature)
	fx.host.Advance(61)
	require.ErrorIs(t, fx.pair.Permit(owner, other, amm.N(1), deadline, sig), amm.ErrExpired)
}
