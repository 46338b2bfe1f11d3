package aggregate

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultDecimals is assumed for assets without a decimals lookup.
const DefaultDecimals = 18

// DecimalsLookup resolves an asset's decimals.
type DecimalsLookup interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// DecimalsFunc adapts a function to DecimalsLookup.
type DecimalsFunc func(ctx context.Context, token common.Address) (uint8, error)

func (f DecimalsFunc) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	return f(ctx, token)
}

// TokenDecimalsCache caches token decimals by address.
type TokenDecimalsCache struct {
	mu   sync.RWMutex
	data map[common.Address]uint8
}

func NewTokenDecimalsCache() *TokenDecimalsCache {
	return &TokenDecimalsCache{data: make(map[common.Address]uint8)}
}

func (c *TokenDecimalsCache) Get(address common.Address) (uint8, bool) {
	c.mu.RLock()
	decimals, ok := c.data[address]
	c.mu.RUnlock()
	return decimals, ok
}

func (c *TokenDecimalsCache) Set(address common.Address, decimals uint8) {
	c.mu.Lock()
	c.data[address] = decimals
	c.mu.Unlock()
}

// FetchTokenDecimals resolves decimals through lookup, falling back to
// DefaultDecimals when no lookup is configured.
func FetchTokenDecimals(ctx context.Context, lookup DecimalsLookup, token common.Address) (uint8, error) {
	if lookup == nil {
		return DefaultDecimals, nil
	}
	return lookup.Decimals(ctx, token)
}
