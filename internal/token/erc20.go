package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/dex"
)

const (
	slotTotalSupply = 0
	slotBalances    = 1
	slotAllowances  = 2
)

// TransferHook runs after balances moved. Returning an error reverts the
// transfer.
type TransferHook func(from, to common.Address, amount *uint256.Int) error

// Option configures an ERC20.
type Option func(*ERC20)

// WithDecimals overrides the default 18 decimals.
func WithDecimals(decimals uint8) Option {
	return func(t *ERC20) { t.decimals = decimals }
}

// WithTransferHook installs a hook invoked on every transfer.
func WithTransferHook(hook TransferHook) Option {
	return func(t *ERC20) { t.hook = hook }
}

// WithBurnOnTransfer burns bps basis points of every transfer from the
// sender's debit before crediting the recipient.
func WithBurnOnTransfer(bps uint64) Option {
	return func(t *ERC20) { t.burnBps = bps }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *ERC20) { t.logger = logger }
}

// ERC20 is a fungible token ledger stored in host storage.
type ERC20 struct {
	host     *chain.Host
	addr     common.Address
	name     string
	symbol   string
	decimals uint8
	burnBps  uint64
	hook     TransferHook
	logger   *zap.Logger
}

// NewERC20 deploys a token on host.
func NewERC20(host *chain.Host, name, symbol string, opts ...Option) *ERC20 {
	t := &ERC20{
		host:     host,
		name:     name,
		symbol:   symbol,
		decimals: 18,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	t.addr = host.Deploy(symbol)
	host.Register(t.addr, t)
	return t
}

// NewDeflating deploys a fee-on-transfer token that burns 1% of every transfer.
func NewDeflating(host *chain.Host, name, symbol string, opts ...Option) *ERC20 {
	return NewERC20(host, name, symbol, append([]Option{WithBurnOnTransfer(100)}, opts...)...)
}

func (t *ERC20) Address() common.Address { return t.addr }
func (t *ERC20) Name() string            { return t.name }
func (t *ERC20) Symbol() string          { return t.symbol }
func (t *ERC20) Decimals() uint8         { return t.decimals }

// FeeOnTransfer reports whether transfers deliver less than the amount sent.
func (t *ERC20) FeeOnTransfer() bool { return t.burnBps > 0 }

// SetTransferHook replaces the transfer hook after deployment.
func (t *ERC20) SetTransferHook(hook TransferHook) { t.hook = hook }

func (t *ERC20) TotalSupply() *uint256.Int {
	return t.host.Load(t.addr, chain.Slot(slotTotalSupply))
}

func (t *ERC20) BalanceOf(account common.Address) *uint256.Int {
	return t.host.Load(t.addr, chain.MapSlot(account, slotBalances))
}

func (t *ERC20) Allowance(owner, spender common.Address) *uint256.Int {
	return t.host.Load(t.addr, chain.NestedMapSlot(owner, spender, slotAllowances))
}

// Mint creates amount units for to.
func (t *ERC20) Mint(to common.Address, amount *uint256.Int) error {
	return t.host.Atomic(func() error {
		supply, err := amm.Add(t.TotalSupply(), amount)
		if err != nil {
			return fmt.Errorf("%s mint: %w", t.symbol, err)
		}
		balance, err := amm.Add(t.BalanceOf(to), amount)
		if err != nil {
			return fmt.Errorf("%s mint: %w", t.symbol, err)
		}
		t.host.Store(t.addr, chain.Slot(slotTotalSupply), supply)
		t.host.Store(t.addr, chain.MapSlot(to, slotBalances), balance)
		t.logger.Debug("mint", zap.String("token", t.symbol), zap.String("to", to.Hex()), zap.String("amount", amm.Dec(amount)))
		return dex.EmitTokenEvent(t.host, t.addr, "Transfer", common.Address{}, to, amount)
	})
}

// Burn destroys amount units held by from.
func (t *ERC20) Burn(from common.Address, amount *uint256.Int) error {
	return t.host.Atomic(func() error {
		if err := t.debit(from, amount); err != nil {
			return err
		}
		supply, err := amm.Sub(t.TotalSupply(), amount)
		if err != nil {
			return fmt.Errorf("%s burn: %w", t.symbol, err)
		}
		t.host.Store(t.addr, chain.Slot(slotTotalSupply), supply)
		return dex.EmitTokenEvent(t.host, t.addr, "Transfer", from, common.Address{}, amount)
	})
}

// Approve sets spender's allowance over owner's balance.
func (t *ERC20) Approve(owner, spender common.Address, amount *uint256.Int) error {
	return t.host.Atomic(func() error {
		t.host.Store(t.addr, chain.NestedMapSlot(owner, spender, slotAllowances), amount)
		return dex.EmitTokenEvent(t.host, t.addr, "Approval", owner, spender, amount)
	})
}

// Transfer moves amount from from to to.
func (t *ERC20) Transfer(from, to common.Address, amount *uint256.Int) error {
	return t.host.Atomic(func() error {
		return t.move(from, to, amount)
	})
}

// TransferFrom moves amount on behalf of from, spending spender's allowance.
// An allowance of max uint256 is never decremented.
func (t *ERC20) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	return t.host.Atomic(func() error {
		allowance := t.Allowance(from, spender)
		if !allowance.Eq(amm.MaxUint256) {
			if allowance.Lt(amount) {
				return fmt.Errorf("%s: %w: %s < %s", t.symbol, amm.ErrInsufficientAllowance, amm.Dec(allowance), amm.Dec(amount))
			}
			remaining := new(uint256.Int).Sub(allowance, amount)
			t.host.Store(t.addr, chain.NestedMapSlot(from, spender, slotAllowances), remaining)
		}
		return t.move(from, to, amount)
	})
}

func (t *ERC20) move(from, to common.Address, amount *uint256.Int) error {
	if err := t.debit(from, amount); err != nil {
		return err
	}

	credited := amount
	if t.burnBps > 0 {
		burned, err := amm.MulDiv(amount, uint256.NewInt(t.burnBps), uint256.NewInt(amm.BasisPoints))
		if err != nil {
			return err
		}
		if !burned.IsZero() {
			supply, err := amm.Sub(t.TotalSupply(), burned)
			if err != nil {
				return fmt.Errorf("%s burn: %w", t.symbol, err)
			}
			t.host.Store(t.addr, chain.Slot(slotTotalSupply), supply)
			if err := dex.EmitTokenEvent(t.host, t.addr, "Transfer", from, common.Address{}, burned); err != nil {
				return err
			}
		}
		credited = new(uint256.Int).Sub(amount, burned)
	}

	balance, err := amm.Add(t.BalanceOf(to), credited)
	if err != nil {
		return fmt.Errorf("%s transfer: %w", t.symbol, err)
	}
	t.host.Store(t.addr, chain.MapSlot(to, slotBalances), balance)
	if err := dex.EmitTokenEvent(t.host, t.addr, "Transfer", from, to, credited); err != nil {
		return err
	}

	if t.hook != nil {
		return t.hook(from, to, credited)
	}
	return nil
}

func (t *ERC20) debit(from common.Address, amount *uint256.Int) error {
	balance := t.BalanceOf(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%s: %w: %s has %s, needs %s", t.symbol, amm.ErrInsufficientBalance, from.Hex(), amm.Dec(balance), amm.Dec(amount))
	}
	t.host.Store(t.addr, chain.MapSlot(from, slotBalances), new(uint256.Int).Sub(balance, amount))
	return nil
}
