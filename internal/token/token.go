// Package token holds the asset ledgers that live on the host: plain and
// fee-on-transfer ERC20s, the native currency and its wrapped form.
package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Transferer moves units of an asset between accounts.
type Transferer interface {
	Address() common.Address
	BalanceOf(account common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// Token is a fungible asset with allowances. The acting identity is always
// explicit: from for Transfer, spender for TransferFrom.
type Token interface {
	Transferer
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}
