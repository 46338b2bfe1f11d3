// Package factory is the registry of pairs keyed by canonical asset pair.
package factory

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/dex"
	"sojoswap/internal/pair"
	"sojoswap/internal/token"
)

const (
	slotFeeTo = iota
	slotFeeToSetter
	slotAllPairsLength
	slotGetPair
	slotAllPairs
)

// InitCodeHash stands in for the pair creation code hash in CREATE2
// address derivation.
var InitCodeHash = crypto.Keccak256Hash([]byte("sojoswap/pair/v2"))

// Factory owns the pair registry. Registry entries live in host storage;
// the Go maps only cache bound objects.
type Factory struct {
	host   *chain.Host
	addr   common.Address
	logger *zap.Logger
	pairs  map[common.Address]*pair.Pair
}

// New deploys a factory administered by feeToSetter.
func New(host *chain.Host, feeToSetter common.Address, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{
		host:   host,
		addr:   host.Deploy("factory"),
		logger: logger,
		pairs:  make(map[common.Address]*pair.Pair),
	}
	err := host.Atomic(func() error {
		host.StoreAddress(f.addr, chain.Slot(slotFeeToSetter), feeToSetter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	host.Register(f.addr, f)
	return f, nil
}

func (f *Factory) Address() common.Address { return f.addr }

// FeeTo returns the protocol fee recipient, zero when the fee is off.
func (f *Factory) FeeTo() common.Address {
	return f.host.LoadAddress(f.addr, chain.Slot(slotFeeTo))
}

func (f *Factory) FeeToSetter() common.Address {
	return f.host.LoadAddress(f.addr, chain.Slot(slotFeeToSetter))
}

// SetFeeTo changes the protocol fee recipient.
func (f *Factory) SetFeeTo(caller, feeTo common.Address) error {
	return f.host.Atomic(func() error {
		if caller != f.FeeToSetter() {
			return fmt.Errorf("set fee to: %w", amm.ErrForbidden)
		}
		f.host.StoreAddress(f.addr, chain.Slot(slotFeeTo), feeTo)
		f.logger.Info("fee recipient updated", zap.String("fee_to", feeTo.Hex()))
		return nil
	})
}

// SetFeeToSetter hands the admin role to setter.
func (f *Factory) SetFeeToSetter(caller, setter common.Address) error {
	return f.host.Atomic(func() error {
		if caller != f.FeeToSetter() {
			return fmt.Errorf("set fee to setter: %w", amm.ErrForbidden)
		}
		f.host.StoreAddress(f.addr, chain.Slot(slotFeeToSetter), setter)
		return nil
	})
}

// SortTokens returns a and b in canonical order.
func SortTokens(a, b common.Address) (common.Address, common.Address, error) {
	if a == b {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", amm.ErrIdenticalAddresses, a.Hex())
	}
	token0, token1 := a, b
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		token0, token1 = b, a
	}
	if token0 == (common.Address{}) {
		return common.Address{}, common.Address{}, amm.ErrZeroAddress
	}
	return token0, token1, nil
}

// PairFor derives the CREATE2 address of the a/b pair without any lookup.
func PairFor(factory, a, b common.Address) (common.Address, error) {
	token0, token1, err := SortTokens(a, b)
	if err != nil {
		return common.Address{}, err
	}
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, InitCodeHash.Bytes()), nil
}

// CreatePair registers the pair for two assets deployed on the host.
func (f *Factory) CreatePair(a, b common.Address) (*pair.Pair, error) {
	var created *pair.Pair
	err := f.host.Atomic(func() error {
		token0, token1, err := SortTokens(a, b)
		if err != nil {
			return err
		}
		if existing := f.host.LoadAddress(f.addr, chain.NestedMapSlot(token0, token1, slotGetPair)); existing != (common.Address{}) {
			return fmt.Errorf("%w: %s", amm.ErrPairExists, existing.Hex())
		}
		t0, err := f.resolveToken(token0)
		if err != nil {
			return err
		}
		t1, err := f.resolveToken(token1)
		if err != nil {
			return err
		}

		addr, err := PairFor(f.addr, token0, token1)
		if err != nil {
			return err
		}
		p, err := pair.New(f.host, addr, f.addr, t0, t1, f, f.logger)
		if err != nil {
			return err
		}

		f.host.StoreAddress(f.addr, chain.NestedMapSlot(token0, token1, slotGetPair), addr)
		f.host.StoreAddress(f.addr, chain.NestedMapSlot(token1, token0, slotGetPair), addr)
		index := f.AllPairsLength()
		f.host.StoreAddress(f.addr, chain.HashMapSlot(common.Hash(uint256.NewInt(index).Bytes32()), slotAllPairs), addr)
		f.host.Store(f.addr, chain.Slot(slotAllPairsLength), uint256.NewInt(index+1))
		if err := dex.EmitFactoryEvent(f.host, f.addr, "PairCreated", token0, token1, addr, index+1); err != nil {
			return err
		}

		f.pairs[addr] = p
		created = p
		f.logger.Info("pair created",
			zap.String("token0", token0.Hex()),
			zap.String("token1", token1.Hex()),
			zap.String("pair", addr.Hex()),
			zap.Uint64("index", index),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetPair returns the registered pair for a and b in either order.
func (f *Factory) GetPair(a, b common.Address) (*pair.Pair, bool) {
	addr := f.host.LoadAddress(f.addr, chain.NestedMapSlot(a, b, slotGetPair))
	if addr == (common.Address{}) {
		return nil, false
	}
	p, ok := f.pairs[addr]
	return p, ok
}

// MustGetPair is GetPair returning ErrPairNotFound when absent.
func (f *Factory) MustGetPair(a, b common.Address) (*pair.Pair, error) {
	p, ok := f.GetPair(a, b)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", amm.ErrPairNotFound, a.Hex(), b.Hex())
	}
	return p, nil
}

func (f *Factory) AllPairsLength() uint64 {
	return f.host.Load(f.addr, chain.Slot(slotAllPairsLength)).Uint64()
}

// AllPairs returns the pair created at index i.
func (f *Factory) AllPairs(i uint64) (common.Address, error) {
	if i >= f.AllPairsLength() {
		return common.Address{}, fmt.Errorf("pair index %d out of range", i)
	}
	return f.host.LoadAddress(f.addr, chain.HashMapSlot(common.Hash(uint256.NewInt(i).Bytes32()), slotAllPairs)), nil
}

// Pairs returns every registered pair in creation order.
func (f *Factory) Pairs() []*pair.Pair {
	n := f.AllPairsLength()
	out := make([]*pair.Pair, 0, n)
	for i := uint64(0); i < n; i++ {
		addr, err := f.AllPairs(i)
		if err != nil {
			break
		}
		if p, ok := f.pairs[addr]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Token resolves an asset deployed on the host.
func (f *Factory) Token(addr common.Address) (token.Token, error) {
	return f.resolveToken(addr)
}

func (f *Factory) resolveToken(addr common.Address) (token.Token, error) {
	impl, ok := f.host.Resolve(addr)
	if !ok {
		return nil, fmt.Errorf("no asset at %s", addr.Hex())
	}
	t, ok := impl.(token.Token)
	if !ok {
		return nil, fmt.Errorf("%s is not a token", addr.Hex())
	}
	return t, nil
}
