package fee

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/token"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000ad111")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000007ea5")
	trader   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	router   = common.HexToAddress("0x000000000000000000000000000000000000a0a0")
)

func setup(t *testing.T, rate uint64) (*chain.Host, *token.Wrapped, *Accountant) {
	t.Helper()
	host, err := chain.NewHost(chain.Config{ChainID: 31337, Timestamp: 1_700_000_000}, nil)
	require.NoError(t, err)
	weth := token.NewWrapped(host, token.NewNative(host))
	acc, err := New(host, admin, Policy{RateBasisPoints: rate, Treasury: treasury}, weth.Address(), nil)
	require.NoError(t, err)
	return host, weth, acc
}

func TestTaxFloors(t *testing.T) {
	_, _, acc := setup(t, 250)
	cases := []struct{ amount, want uint64 }{
		{0, 0},
		{39, 0},
		{40, 1},
		{10000, 250},
		{12345, 308},
	}
	for _, tc := range cases {
		got, err := acc.Tax(amm.N(tc.amount))
		require.NoError(t, err)
		require.Equal(t, tc.want, got.Uint64(), "tax(%d)", tc.amount)
	}
}

func TestPolicyAdministration(t *testing.T) {
	_, weth, acc := setup(t, 100)
	require.True(t, acc.IsTaxed(weth.Address()))
	require.True(t, acc.IsTaxed(token.NativeAddress))
	require.False(t, acc.IsTaxed(trader))

	require.ErrorIs(t, acc.SetTaxRate(trader, 10), amm.ErrForbidden)
	require.ErrorIs(t, acc.SetTaxRate(admin, 10001), amm.ErrInvalidTaxRate)
	require.NoError(t, acc.SetTaxRate(admin, 10000))
	require.Equal(t, uint64(10000), acc.Policy().RateBasisPoints)

	require.ErrorIs(t, acc.SetTreasury(trader, trader), amm.ErrForbidden)
	require.NoError(t, acc.SetTreasury(admin, trader))
	require.Equal(t, trader, acc.Policy().Treasury)

	require.NoError(t, acc.SetAdmin(admin, trader))
	require.ErrorIs(t, acc.SetTaxRate(admin, 0), amm.ErrForbidden)
	require.NoError(t, acc.SetTaxRate(trader, 0))

	_, err := New(nil, admin, Policy{RateBasisPoints: 10001}, weth.Address(), nil)
	require.ErrorIs(t, err, amm.ErrInvalidTaxRate)
}

func TestCollect(t *testing.T) {
	_, weth, acc := setup(t, 300)
	native := weth.Native()
	require.NoError(t, native.Fund(router, amm.N(10000)))

	net, tax, err := acc.Collect(native, router, amm.N(10000))
	require.NoError(t, err)
	require.Equal(t, uint64(300), tax.Uint64())
	require.Equal(t, uint64(9700), net.Uint64())
	require.Equal(t, uint64(300), native.BalanceOf(treasury).Uint64())
	require.Equal(t, uint64(9700), native.BalanceOf(router).Uint64())

	require.NoError(t, native.Fund(trader, amm.N(1000)))
	require.NoError(t, weth.Deposit(trader, amm.N(1000)))
	require.NoError(t, weth.Approve(trader, router, amm.N(30)))
	net, tax, err = acc.CollectFrom(weth, router, trader, amm.N(1000))
	require.NoError(t, err)
	require.Equal(t, uint64(30), tax.Uint64())
	require.Equal(t, uint64(970), net.Uint64())
	require.Equal(t, uint64(30), weth.BalanceOf(treasury).Uint64())

	_, _, err = acc.CollectFrom(weth, router, trader, amm.N(1000))
	require.ErrorIs(t, err, amm.ErrTransferFailed)
}

func TestSurcharge(t *testing.T) {
	_, weth, acc := setup(t, 100)
	native := weth.Native()
	require.NoError(t, native.Fund(router, amm.N(1010)))

	tax, err := acc.Surcharge(native, router, amm.N(1000))
	require.NoError(t, err)
	require.Equal(t, uint64(10), tax.Uint64())
	require.Equal(t, uint64(1000), native.BalanceOf(router).Uint64())
	require.Equal(t, uint64(10), native.BalanceOf(treasury).Uint64())

	tax, err = acc.Surcharge(native, router, amm.N(99))
	require.NoError(t, err)
	require.True(t, tax.IsZero())
}
