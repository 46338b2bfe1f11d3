// Package router composes pairs into multi-hop swaps and liquidity
// operations. It keeps no state of its own between calls.
package router

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/factory"
	"sojoswap/internal/fee"
	"sojoswap/internal/metrics"
	"sojoswap/internal/pair"
	"sojoswap/internal/token"
)

// ErrResidualBalance reports that a call left assets behind in the router.
var ErrResidualBalance = errors.New("router retained a balance")

// Config wires a router to its collaborators.
type Config struct {
	Factory    *factory.Factory
	Wrapped    *token.Wrapped
	Accountant *fee.Accountant
	Metrics    *metrics.RouterMetrics
	Logger     *zap.Logger
}

type Router struct {
	host    *chain.Host
	addr    common.Address
	factory *factory.Factory
	weth    *token.Wrapped
	native  *token.Native
	fees    *fee.Accountant
	metrics *metrics.RouterMetrics
	logger  *zap.Logger
}

// New deploys a router on host.
func New(host *chain.Host, cfg Config) (*Router, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("router: factory is required")
	}
	if cfg.Wrapped == nil {
		return nil, fmt.Errorf("router: wrapped asset is required")
	}
	if cfg.Accountant == nil {
		return nil, fmt.Errorf("router: fee accountant is required")
	}
	if cfg.Accountant.TaxedAsset() != cfg.Wrapped.Address() {
		return nil, fmt.Errorf("router: accountant taxes %s, wrapped asset is %s", cfg.Accountant.TaxedAsset().Hex(), cfg.Wrapped.Address().Hex())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		host:    host,
		addr:    host.Deploy("router"),
		factory: cfg.Factory,
		weth:    cfg.Wrapped,
		native:  cfg.Wrapped.Native(),
		fees:    cfg.Accountant,
		metrics: cfg.Metrics,
		logger:  logger,
	}
	host.Register(r.addr, r)
	return r, nil
}

func (r *Router) Address() common.Address { return r.addr }

func (r *Router) Factory() *factory.Factory { return r.factory }

// Wrapped returns the wrapped-native asset the native entrypoints route
// through.
func (r *Router) Wrapped() *token.Wrapped { return r.weth }

// run executes one entrypoint atomically: deadline first, then fn, then a
// check that the router holds none of the touched assets.
func (r *Router) run(entrypoint string, deadline uint64, touched []common.Address, fn func() error) error {
	started := time.Now()
	err := r.host.Atomic(func() error {
		if err := r.ensure(deadline); err != nil {
			return err
		}
		if err := fn(); err != nil {
			return err
		}
		return r.settled(touched)
	})
	r.metrics.Observe(entrypoint, started, err)
	if err != nil {
		r.logger.Debug("router call failed", zap.String("entrypoint", entrypoint), zap.Error(err))
		return fmt.Errorf("%s: %w", entrypoint, err)
	}
	return nil
}

func (r *Router) ensure(deadline uint64) error {
	if now := r.host.Timestamp(); now > deadline {
		return fmt.Errorf("%w: now %d, deadline %d", amm.ErrExpired, now, deadline)
	}
	return nil
}

func (r *Router) settled(touched []common.Address) error {
	if balance := r.native.BalanceOf(r.addr); !balance.IsZero() {
		return fmt.Errorf("%w: %s native", ErrResidualBalance, amm.Dec(balance))
	}
	assets := append([]common.Address{r.weth.Address()}, touched...)
	for _, asset := range assets {
		t, err := r.factory.Token(asset)
		if err != nil {
			continue
		}
		if balance := t.BalanceOf(r.addr); !balance.IsZero() {
			return fmt.Errorf("%w: %s of %s", ErrResidualBalance, amm.Dec(balance), asset.Hex())
		}
	}
	return nil
}

func validatePath(path []common.Address) error {
	if len(path) < 2 {
		return fmt.Errorf("%w: %d assets", amm.ErrInvalidPath, len(path))
	}
	return nil
}

func (r *Router) startsWithWrapped(path []common.Address) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if path[0] != r.weth.Address() {
		return fmt.Errorf("%w: path must start at %s", amm.ErrInvalidPath, r.weth.Address().Hex())
	}
	return nil
}

func (r *Router) endsWithWrapped(path []common.Address) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if path[len(path)-1] != r.weth.Address() {
		return fmt.Errorf("%w: path must end at %s", amm.ErrInvalidPath, r.weth.Address().Hex())
	}
	return nil
}

func (r *Router) pairFor(a, b common.Address) (*pair.Pair, error) {
	return r.factory.MustGetPair(a, b)
}

func (r *Router) token(addr common.Address) (token.Token, error) {
	return r.factory.Token(addr)
}

// pullValue moves attached native value from the caller into the router.
func (r *Router) pullValue(caller common.Address, value *uint256.Int) error {
	if value.IsZero() {
		return nil
	}
	return r.native.Transfer(caller, r.addr, value)
}

// refund returns whatever native value the router still holds.
func (r *Router) refund(caller common.Address) error {
	left := r.native.BalanceOf(r.addr)
	if left.IsZero() {
		return nil
	}
	return token.SafeTransfer(r.native, r.addr, caller, left)
}

func (r *Router) recordTax(asset common.Address, tax *uint256.Int) {
	if tax == nil || tax.IsZero() {
		return
	}
	r.metrics.AddTax(asset.Hex(), tax)
	r.logger.Debug("swap taxed", zap.String("asset", asset.Hex()), zap.String("tax", amm.Dec(tax)))
}
