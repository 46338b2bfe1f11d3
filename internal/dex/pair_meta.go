package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"sojoswap/internal/model"
)

// PairMetaCache caches pair metadata by address.
type PairMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PairMeta
}

func NewPairMetaCache() *PairMetaCache {
	return &PairMetaCache{data: make(map[common.Address]model.PairMeta)}
}

func (c *PairMetaCache) Get(address common.Address) (model.PairMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PairMetaCache) Set(address common.Address, meta model.PairMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Len returns the number of cached pairs.
func (c *PairMetaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

// SetAll caches every entry of tokens under its address.
func (c *TokenMetaCache) SetAll(tokens []model.TokenMeta) *TokenMetaCache {
	for _, meta := range tokens {
		c.Set(common.HexToAddress(meta.Address), meta)
	}
	return c
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Decimals returns the cached decimals of address.
func (c *TokenMetaCache) Decimals(ctx context.Context, address common.Address) (uint8, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	meta, ok := c.Get(address)
	if !ok {
		return 0, fmt.Errorf("no metadata for token %s", address.Hex())
	}
	return meta.Decimals, nil
}

// Symbol returns the cached symbol for address, or its hex form.
func (c *TokenMetaCache) Symbol(address common.Address) string {
	if meta, ok := c.Get(address); ok && meta.Symbol != "" {
		return meta.Symbol
	}
	return address.Hex()
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
