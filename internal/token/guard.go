package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
)

// SafeTransfer moves amount and treats any asset failure as fatal.
func SafeTransfer(t Transferer, from, to common.Address, amount *uint256.Int) error {
	if err := t.Transfer(from, to, amount); err != nil {
		return fmt.Errorf("%w: %s %s -> %s: %w", amm.ErrTransferFailed, t.Address().Hex(), from.Hex(), to.Hex(), err)
	}
	return nil
}

// SafeTransferFrom moves amount through spender's allowance and treats any
// asset failure as fatal.
func SafeTransferFrom(t Token, spender, from, to common.Address, amount *uint256.Int) error {
	if err := t.TransferFrom(spender, from, to, amount); err != nil {
		return fmt.Errorf("%w: %s %s -> %s: %w", amm.ErrTransferFailed, t.Address().Hex(), from.Hex(), to.Hex(), err)
	}
	return nil
}

// MeasuredTransfer moves amount and returns what the recipient actually
// received.
func MeasuredTransfer(t Transferer, from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	before := t.BalanceOf(to)
	if err := SafeTransfer(t, from, to, amount); err != nil {
		return nil, err
	}
	return received(t, to, before)
}

// MeasuredTransferFrom is MeasuredTransfer through spender's allowance.
func MeasuredTransferFrom(t Token, spender, from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	before := t.BalanceOf(to)
	if err := SafeTransferFrom(t, spender, from, to, amount); err != nil {
		return nil, err
	}
	return received(t, to, before)
}

func received(t Transferer, to common.Address, before *uint256.Int) (*uint256.Int, error) {
	delta, err := amm.Sub(t.BalanceOf(to), before)
	if err != nil {
		return nil, fmt.Errorf("%w: balance of %s decreased", amm.ErrTransferFailed, to.Hex())
	}
	return delta, nil
}
