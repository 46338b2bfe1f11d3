package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
)

// NativeAddress is the pseudo-address under which native balances are kept.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Native is the host's native currency. It has no allowances; value moves
// only by explicit transfer, which is how attached call value is modelled.
type Native struct {
	host *chain.Host
}

// NewNative returns the native ledger of host.
func NewNative(host *chain.Host) *Native {
	return &Native{host: host}
}

func (n *Native) Address() common.Address { return NativeAddress }

func (n *Native) BalanceOf(account common.Address) *uint256.Int {
	return n.host.Load(NativeAddress, chain.MapSlot(account, slotBalances))
}

// Transfer moves amount native units from from to to.
func (n *Native) Transfer(from, to common.Address, amount *uint256.Int) error {
	return n.host.Atomic(func() error {
		balance := n.BalanceOf(from)
		if balance.Lt(amount) {
			return fmt.Errorf("native: %w: %s has %s, needs %s", amm.ErrInsufficientValue, from.Hex(), amm.Dec(balance), amm.Dec(amount))
		}
		n.host.Store(NativeAddress, chain.MapSlot(from, slotBalances), new(uint256.Int).Sub(balance, amount))
		credited, err := amm.Add(n.BalanceOf(to), amount)
		if err != nil {
			return fmt.Errorf("native: %w", err)
		}
		n.host.Store(NativeAddress, chain.MapSlot(to, slotBalances), credited)
		return nil
	})
}

// Fund credits account with amount new native units.
func (n *Native) Fund(account common.Address, amount *uint256.Int) error {
	return n.host.Atomic(func() error {
		balance, err := amm.Add(n.BalanceOf(account), amount)
		if err != nil {
			return fmt.Errorf("native fund: %w", err)
		}
		n.host.Store(NativeAddress, chain.MapSlot(account, slotBalances), balance)
		return nil
	})
}
