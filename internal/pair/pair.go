// Package pair implements the constant-product reserve pool for one
// canonical pair of assets, including its LP token.
package pair

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/dex"
	"sojoswap/internal/permit"
	"sojoswap/internal/token"
)

// Storage layout of a pair contract.
const (
	slotTotalSupply = iota
	slotBalances
	slotAllowances
	slotNonces
	slotReserve0
	slotReserve1
	slotBlockTimestampLast
	slotPrice0CumulativeLast
	slotPrice1CumulativeLast
	slotKLast
	slotLocked
)

const (
	Name     = "Sojoswap V2"
	Symbol   = "SOJO-V2"
	Decimals = 18
)

// FeeSource reports where protocol fees are minted. A zero address turns
// the protocol fee off.
type FeeSource interface {
	FeeTo() common.Address
}

// Pair is a reserve pool. Its state lives in host storage at its address.
type Pair struct {
	host    *chain.Host
	addr    common.Address
	factory common.Address
	token0  token.Token
	token1  token.Token
	fees    FeeSource
	permits *permit.Authorizer
	logger  *zap.Logger
}

// New binds a pair at addr to the host. token0 must sort before token1.
func New(host *chain.Host, addr, factory common.Address, token0, token1 token.Token, fees FeeSource, logger *zap.Logger) (*Pair, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	domain, err := permit.DomainSeparator(host.ChainID(), addr)
	if err != nil {
		return nil, err
	}

	p := &Pair{
		host:    host,
		addr:    addr,
		factory: factory,
		token0:  token0,
		token1:  token1,
		fees:    fees,
		logger:  logger.With(zap.String("pair", addr.Hex())),
	}
	p.permits = permit.NewAuthorizer(domain, host, nonceStore{p})
	host.Register(addr, p)
	return p, nil
}

func (p *Pair) Address() common.Address { return p.addr }
func (p *Pair) Factory() common.Address { return p.factory }
func (p *Pair) Token0() token.Token     { return p.token0 }
func (p *Pair) Token1() token.Token     { return p.token1 }

// Reserves returns both reserves and the block timestamp (mod 2^32) of the
// last update.
func (p *Pair) Reserves() (reserve0, reserve1 *uint256.Int, blockTimestampLast uint32) {
	reserve0 = p.host.Load(p.addr, chain.Slot(slotReserve0))
	reserve1 = p.host.Load(p.addr, chain.Slot(slotReserve1))
	blockTimestampLast = uint32(p.host.Load(p.addr, chain.Slot(slotBlockTimestampLast)).Uint64())
	return reserve0, reserve1, blockTimestampLast
}

func (p *Pair) Price0CumulativeLast() *uint256.Int {
	return p.host.Load(p.addr, chain.Slot(slotPrice0CumulativeLast))
}

func (p *Pair) Price1CumulativeLast() *uint256.Int {
	return p.host.Load(p.addr, chain.Slot(slotPrice1CumulativeLast))
}

// KLast is reserve0*reserve1 as of the most recent liquidity event, kept only
// while the protocol fee is on.
func (p *Pair) KLast() *uint256.Int {
	return p.host.Load(p.addr, chain.Slot(slotKLast))
}

// lock marks the pair as entered. The returned release must run on every
// exit path.
func (p *Pair) lock() (func(), error) {
	slot := chain.Slot(slotLocked)
	if !p.host.Load(p.addr, slot).IsZero() {
		return nil, fmt.Errorf("pair %s: %w", p.addr.Hex(), amm.ErrReentrant)
	}
	p.host.Store(p.addr, slot, uint256.NewInt(1))
	return func() { p.host.Store(p.addr, slot, new(uint256.Int)) }, nil
}

// balances returns the pair's current holdings of both assets.
func (p *Pair) balances() (*uint256.Int, *uint256.Int) {
	return p.token0.BalanceOf(p.addr), p.token1.BalanceOf(p.addr)
}

// update writes new reserves and, on the first call in a block, advances the
// price accumulators using the previous reserves.
func (p *Pair) update(balance0, balance1, reserve0, reserve1 *uint256.Int) error {
	if balance0.Gt(amm.MaxReserve) || balance1.Gt(amm.MaxReserve) {
		return fmt.Errorf("pair %s: reserve above 2^112-1: %w", p.addr.Hex(), amm.ErrOverflow)
	}

	now := uint32(p.host.Timestamp())
	_, _, last := p.Reserves()
	elapsed := now - last
	if elapsed > 0 && !reserve0.IsZero() && !reserve1.IsZero() {
		p.host.Store(p.addr, chain.Slot(slotPrice0CumulativeLast),
			amm.AccumulatePrice(p.Price0CumulativeLast(), reserve1, reserve0, uint64(elapsed)))
		p.host.Store(p.addr, chain.Slot(slotPrice1CumulativeLast),
			amm.AccumulatePrice(p.Price1CumulativeLast(), reserve0, reserve1, uint64(elapsed)))
	}

	p.host.Store(p.addr, chain.Slot(slotReserve0), balance0)
	p.host.Store(p.addr, chain.Slot(slotReserve1), balance1)
	p.host.Store(p.addr, chain.Slot(slotBlockTimestampLast), uint256.NewInt(uint64(now)))
	return dex.EmitPairEvent(p.host, p.addr, "Sync", balance0, balance1)
}

// mintFee mints the protocol's share of fee growth since the last liquidity
// event: one sixth of the growth in sqrt(k).
func (p *Pair) mintFee(reserve0, reserve1 *uint256.Int) (bool, error) {
	var feeTo common.Address
	if p.fees != nil {
		feeTo = p.fees.FeeTo()
	}
	feeOn := feeTo != (common.Address{})
	kLast := p.KLast()

	if !feeOn {
		if !kLast.IsZero() {
			p.host.Store(p.addr, chain.Slot(slotKLast), new(uint256.Int))
		}
		return false, nil
	}
	if kLast.IsZero() {
		return true, nil
	}

	k, err := amm.Mul(reserve0, reserve1)
	if err != nil {
		return false, err
	}
	rootK := amm.Sqrt(k)
	rootKLast := amm.Sqrt(kLast)
	if !rootK.Gt(rootKLast) {
		return true, nil
	}

	growth := new(uint256.Int).Sub(rootK, rootKLast)
	numerator, err := amm.Mul(p.TotalSupply(), growth)
	if err != nil {
		return false, err
	}
	denominator, err := amm.Mul(rootK, uint256.NewInt(5))
	if err != nil {
		return false, err
	}
	if denominator, err = amm.Add(denominator, rootKLast); err != nil {
		return false, err
	}
	liquidity, err := amm.Div(numerator, denominator)
	if err != nil {
		return false, err
	}
	if !liquidity.IsZero() {
		if err := p.mintLP(feeTo, liquidity); err != nil {
			return false, err
		}
		p.logger.Debug("protocol fee minted", zap.String("to", feeTo.Hex()), zap.String("liquidity", amm.Dec(liquidity)))
	}
	return true, nil
}

func (p *Pair) storeKLast() error {
	reserve0, reserve1, _ := p.Reserves()
	k, err := amm.Mul(reserve0, reserve1)
	if err != nil {
		return err
	}
	p.host.Store(p.addr, chain.Slot(slotKLast), k)
	return nil
}
