package pair

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/dex"
	"sojoswap/internal/permit"
)

func (p *Pair) TotalSupply() *uint256.Int {
	return p.host.Load(p.addr, chain.Slot(slotTotalSupply))
}

func (p *Pair) BalanceOf(account common.Address) *uint256.Int {
	return p.host.Load(p.addr, chain.MapSlot(account, slotBalances))
}

func (p *Pair) Allowance(owner, spender common.Address) *uint256.Int {
	return p.host.Load(p.addr, chain.NestedMapSlot(owner, spender, slotAllowances))
}

// Nonces returns the owner's next permit nonce.
func (p *Pair) Nonces(owner common.Address) *uint256.Int {
	return p.host.Load(p.addr, chain.MapSlot(owner, slotNonces))
}

// DomainSeparator returns the EIP-712 domain of this pair's permits.
func (p *Pair) DomainSeparator() common.Hash {
	return p.permits.DomainSeparator()
}

// Approve sets spender's LP allowance over owner's balance.
func (p *Pair) Approve(owner, spender common.Address, value *uint256.Int) error {
	return p.host.Atomic(func() error {
		return p.approve(owner, spender, value)
	})
}

// Transfer moves LP units.
func (p *Pair) Transfer(from, to common.Address, value *uint256.Int) error {
	return p.host.Atomic(func() error {
		return p.moveLP(from, to, value)
	})
}

// TransferFrom moves LP units on behalf of from. An allowance of max uint256
// is never decremented.
func (p *Pair) TransferFrom(spender, from, to common.Address, value *uint256.Int) error {
	return p.host.Atomic(func() error {
		allowance := p.Allowance(from, spender)
		if !allowance.Eq(amm.MaxUint256) {
			if allowance.Lt(value) {
				return fmt.Errorf("%s: %w: %s < %s", Symbol, amm.ErrInsufficientAllowance, amm.Dec(allowance), amm.Dec(value))
			}
			p.host.Store(p.addr, chain.NestedMapSlot(from, spender, slotAllowances), new(uint256.Int).Sub(allowance, value))
		}
		return p.moveLP(from, to, value)
	})
}

// Permit approves spender for value on owner's signature.
func (p *Pair) Permit(owner, spender common.Address, value *uint256.Int, deadline uint64, sig permit.Signature) error {
	return p.host.Atomic(func() error {
		if err := p.permits.Verify(owner, spender, value, deadline, sig); err != nil {
			return err
		}
		return p.approve(owner, spender, value)
	})
}

func (p *Pair) approve(owner, spender common.Address, value *uint256.Int) error {
	p.host.Store(p.addr, chain.NestedMapSlot(owner, spender, slotAllowances), value)
	return dex.EmitPairEvent(p.host, p.addr, "Approval", owner, spender, value)
}

func (p *Pair) moveLP(from, to common.Address, value *uint256.Int) error {
	balance := p.BalanceOf(from)
	if balance.Lt(value) {
		return fmt.Errorf("%s: %w: %s has %s, needs %s", Symbol, amm.ErrInsufficientBalance, from.Hex(), amm.Dec(balance), amm.Dec(value))
	}
	p.host.Store(p.addr, chain.MapSlot(from, slotBalances), new(uint256.Int).Sub(balance, value))
	credited, err := amm.Add(p.BalanceOf(to), value)
	if err != nil {
		return err
	}
	p.host.Store(p.addr, chain.MapSlot(to, slotBalances), credited)
	return dex.EmitPairEvent(p.host, p.addr, "Transfer", from, to, value)
}

func (p *Pair) mintLP(to common.Address, value *uint256.Int) error {
	supply, err := amm.Add(p.TotalSupply(), value)
	if err != nil {
		return err
	}
	balance, err := amm.Add(p.BalanceOf(to), value)
	if err != nil {
		return err
	}
	p.host.Store(p.addr, chain.Slot(slotTotalSupply), supply)
	p.host.Store(p.addr, chain.MapSlot(to, slotBalances), balance)
	return dex.EmitPairEvent(p.host, p.addr, "Transfer", common.Address{}, to, value)
}

func (p *Pair) burnLP(from common.Address, value *uint256.Int) error {
	balance, err := amm.Sub(p.BalanceOf(from), value)
	if err != nil {
		return err
	}
	supply, err := amm.Sub(p.TotalSupply(), value)
	if err != nil {
		return err
	}
	p.host.Store(p.addr, chain.MapSlot(from, slotBalances), balance)
	p.host.Store(p.addr, chain.Slot(slotTotalSupply), supply)
	return dex.EmitPairEvent(p.host, p.addr, "Transfer", from, common.Address{}, value)
}

type nonceStore struct {
	p *Pair
}

func (s nonceStore) Nonce(owner common.Address) *uint256.Int {
	return s.p.Nonces(owner)
}

func (s nonceStore) SetNonce(owner common.Address, nonce *uint256.Int) {
	s.p.host.Store(s.p.addr, chain.MapSlot(owner, slotNonces), nonce)
}
