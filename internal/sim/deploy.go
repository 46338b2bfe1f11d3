// Package sim deploys a small exchange on an in-memory host and drives it
// with a reproducible stream of router calls.
package sim

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/factory"
	"sojoswap/internal/fee"
	"sojoswap/internal/metrics"
	"sojoswap/internal/model"
	"sojoswap/internal/router"
	"sojoswap/internal/token"
)

var (
	Admin         = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	Treasury      = common.HexToAddress("0x0000000000000000000000000000000000007ea5")
	ProtocolFeeTo = common.HexToAddress("0x000000000000000000000000000000000000fee0")
	Trader        = common.HexToAddress("0x0000000000000000000000000000000000007a0e")
)

// Config describes a deployment and the run that follows it.
type Config struct {
	ChainID        uint64
	StartTime      uint64
	TaxBasisPoints uint64
	Swaps          int
	BlockInterval  uint64
	Metrics        *metrics.RouterMetrics
	Logger         *zap.Logger
}

// RunID names the chain a deployment and seeded run produce. Equal ids
// yield identical chains, so exports keyed by it can resume safely.
func RunID(cfg Config, seed int64) string {
	interval := cfg.BlockInterval
	if interval == 0 {
		interval = 12
	}
	return fmt.Sprintf("sim:chain=%d:start=%d:tax=%d:swaps=%d:interval=%d:seed=%d",
		cfg.ChainID, cfg.StartTime, cfg.TaxBasisPoints, cfg.Swaps, interval, seed)
}

// Deployment is a funded exchange with seeded pools.
type Deployment struct {
	Host      *chain.Host
	Native    *token.Native
	Wrapped   *token.Wrapped
	Sojo      *token.ERC20
	Stable    *token.ERC20
	Deflating *token.ERC20
	Factory   *factory.Factory
	Fees      *fee.Accountant
	Router    *router.Router
	Metrics   *metrics.RouterMetrics

	Provider    common.Address
	providerKey *ecdsa.PrivateKey

	cfg    Config
	logger *zap.Logger
}

func units(n uint64, decimals uint8) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return new(uint256.Int).Mul(uint256.NewInt(n), scale)
}

// Deploy creates the host, assets, factory, accountant and router, funds
// the provider and trader, and seeds four pools.
func Deploy(cfg Config) (*Deployment, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BlockInterval == 0 {
		cfg.BlockInterval = 12
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	host, err := chain.NewHost(chain.Config{ChainID: cfg.ChainID, Timestamp: cfg.StartTime}, logger.Named("host"))
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("sojoswap/provider")))
	if err != nil {
		return nil, fmt.Errorf("provider key: %w", err)
	}

	d := &Deployment{
		Host:        host,
		Metrics:     cfg.Metrics,
		Provider:    crypto.PubkeyToAddress(key.PublicKey),
		providerKey: key,
		cfg:         cfg,
		logger:      logger,
	}
	d.Native = token.NewNative(host)
	d.Wrapped = token.NewWrapped(host, d.Native, token.WithLogger(logger))
	d.Sojo = token.NewERC20(host, "Sojo Token", "SOJO", token.WithLogger(logger))
	d.Stable = token.NewERC20(host, "Sojo Dollar", "SUSD", token.WithDecimals(6), token.WithLogger(logger))
	d.Deflating = token.NewDeflating(host, "Deflating Token", "DFL", token.WithLogger(logger))

	if d.Factory, err = factory.New(host, Admin, logger.Named("factory")); err != nil {
		return nil, err
	}
	if err := d.Factory.SetFeeTo(Admin, ProtocolFeeTo); err != nil {
		return nil, err
	}
	policy := fee.Policy{RateBasisPoints: cfg.TaxBasisPoints, Treasury: Treasury}
	if d.Fees, err = fee.New(host, Admin, policy, d.Wrapped.Address(), logger.Named("fee")); err != nil {
		return nil, err
	}
	d.Router, err = router.New(host, router.Config{
		Factory:    d.Factory,
		Wrapped:    d.Wrapped,
		Accountant: d.Fees,
		Metrics:    cfg.Metrics,
		Logger:     logger.Named("router"),
	})
	if err != nil {
		return nil, err
	}

	if err := d.fund(d.Provider, 10_000, 10_000_000); err != nil {
		return nil, fmt.Errorf("fund provider: %w", err)
	}
	if err := d.fund(Trader, 10_000, 1_000_000); err != nil {
		return nil, fmt.Errorf("fund trader: %w", err)
	}
	if err := d.seed(); err != nil {
		return nil, fmt.Errorf("seed pools: %w", err)
	}
	logger.Info("deployment ready",
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("router", d.Router.Address().Hex()),
		zap.String("factory", d.Factory.Address().Hex()),
		zap.Uint64("pairs", d.Factory.AllPairsLength()),
	)
	return d, nil
}

func (d *Deployment) fund(account common.Address, native, tokens uint64) error {
	if err := d.Native.Fund(account, units(native, 18)); err != nil {
		return err
	}
	if err := d.Wrapped.Deposit(account, units(native/10, 18)); err != nil {
		return err
	}
	if err := d.Wrapped.Approve(account, d.Router.Address(), amm.MaxUint256); err != nil {
		return err
	}
	for _, tok := range []*token.ERC20{d.Sojo, d.Stable, d.Deflating} {
		if err := tok.Mint(account, units(tokens, tok.Decimals())); err != nil {
			return err
		}
		if err := tok.Approve(account, d.Router.Address(), amm.MaxUint256); err != nil {
			return err
		}
	}
	return nil
}

// seed prices 1 ETH at 1000 SOJO and 2000 SUSD, and 1 SOJO at 2 SUSD.
func (d *Deployment) seed() error {
	native := []struct {
		tok    *token.ERC20
		amount *uint256.Int
		value  *uint256.Int
	}{
		{d.Sojo, units(100_000, 18), units(100, 18)},
		{d.Stable, units(200_000, 6), units(100, 18)},
		{d.Deflating, units(50_000, 18), units(50, 18)},
	}
	for _, s := range native {
		if _, err := d.Router.AddLiquidityNative(d.Provider, s.value, router.AddLiquidityNativeParams{
			Token:              s.tok.Address(),
			AmountTokenDesired: s.amount,
			AmountTokenMin:     amm.Zero(),
			AmountNativeMin:    amm.Zero(),
			To:                 d.Provider,
			Deadline:           d.deadline(),
		}); err != nil {
			return fmt.Errorf("%s/WETH: %w", s.tok.Symbol(), err)
		}
	}
	_, err := d.Router.AddLiquidity(d.Provider, router.AddLiquidityParams{
		TokenA:         d.Sojo.Address(),
		TokenB:         d.Stable.Address(),
		AmountADesired: units(100_000, 18),
		AmountBDesired: units(200_000, 6),
		AmountAMin:     amm.Zero(),
		AmountBMin:     amm.Zero(),
		To:             d.Provider,
		Deadline:       d.deadline(),
	})
	if err != nil {
		return fmt.Errorf("SOJO/SUSD: %w", err)
	}
	return nil
}

func (d *Deployment) deadline() uint64 { return d.Host.Timestamp() + 600 }

// Tokens describes every ERC20 asset the deployment trades.
func (d *Deployment) Tokens() []model.TokenMeta {
	tokens := []*token.ERC20{d.Wrapped.ERC20, d.Sojo, d.Stable, d.Deflating}
	out := make([]model.TokenMeta, len(tokens))
	for i, tok := range tokens {
		out[i] = model.TokenMeta{
			Address:       tok.Address().Hex(),
			Decimals:      tok.Decimals(),
			Symbol:        tok.Symbol(),
			Name:          tok.Name(),
			FeeOnTransfer: tok.FeeOnTransfer(),
		}
	}
	return out
}

// Treasury returns what the treasury holds of the taxed asset, natively
// and wrapped.
func (d *Deployment) Treasury() (*uint256.Int, *uint256.Int) {
	treasury := d.Fees.Policy().Treasury
	return d.Native.BalanceOf(treasury), d.Wrapped.BalanceOf(treasury)
}
