package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/dex"
)

// Wrapped is an ERC20 backed 1:1 by native units held at its own address.
type Wrapped struct {
	*ERC20
	native *Native
}

// NewWrapped deploys a wrapped-native token.
func NewWrapped(host *chain.Host, native *Native, opts ...Option) *Wrapped {
	w := &Wrapped{
		ERC20:  NewERC20(host, "Wrapped Ether", "WETH", opts...),
		native: native,
	}
	host.Register(w.addr, w)
	return w
}

// Native returns the ledger backing w.
func (w *Wrapped) Native() *Native { return w.native }

// Deposit converts amount of from's native units into wrapped units.
func (w *Wrapped) Deposit(from common.Address, amount *uint256.Int) error {
	return w.host.Atomic(func() error {
		if err := w.native.Transfer(from, w.addr, amount); err != nil {
			return err
		}
		if err := w.credit(from, amount); err != nil {
			return err
		}
		return dex.EmitTokenEvent(w.host, w.addr, "Deposit", from, amount)
	})
}

// Withdraw converts amount of from's wrapped units back into native units.
func (w *Wrapped) Withdraw(from common.Address, amount *uint256.Int) error {
	return w.host.Atomic(func() error {
		if err := w.debit(from, amount); err != nil {
			return err
		}
		supply, err := amm.Sub(w.TotalSupply(), amount)
		if err != nil {
			return fmt.Errorf("WETH withdraw: %w", err)
		}
		w.host.Store(w.addr, chain.Slot(slotTotalSupply), supply)
		if err := dex.EmitTokenEvent(w.host, w.addr, "Withdrawal", from, amount); err != nil {
			return err
		}
		return w.native.Transfer(w.addr, from, amount)
	})
}

func (w *Wrapped) credit(to common.Address, amount *uint256.Int) error {
	supply, err := amm.Add(w.TotalSupply(), amount)
	if err != nil {
		return fmt.Errorf("WETH deposit: %w", err)
	}
	balance, err := amm.Add(w.BalanceOf(to), amount)
	if err != nil {
		return fmt.Errorf("WETH deposit: %w", err)
	}
	w.host.Store(w.addr, chain.Slot(slotTotalSupply), supply)
	w.host.Store(w.addr, chain.MapSlot(to, slotBalances), balance)
	return nil
}
