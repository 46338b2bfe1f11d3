package pair

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/dex"
	"sojoswap/internal/token"
)

// Mint credits LP to `to` for whatever the pair received above its reserves
// since the last update. Callers deliver both assets first.
func (p *Pair) Mint(sender, to common.Address) (*uint256.Int, error) {
	var liquidity *uint256.Int
	err := p.host.Atomic(func() error {
		unlock, err := p.lock()
		if err != nil {
			return err
		}
		defer unlock()

		reserve0, reserve1, _ := p.Reserves()
		balance0, balance1 := p.balances()
		amount0, err := amm.Sub(balance0, reserve0)
		if err != nil {
			return fmt.Errorf("mint: balance0 below reserve0: %w", err)
		}
		amount1, err := amm.Sub(balance1, reserve1)
		if err != nil {
			return fmt.Errorf("mint: balance1 below reserve1: %w", err)
		}

		feeOn, err := p.mintFee(reserve0, reserve1)
		if err != nil {
			return err
		}

		supply := p.TotalSupply()
		if supply.IsZero() {
			product, err := amm.Mul(amount0, amount1)
			if err != nil {
				return err
			}
			root := amm.Sqrt(product)
			minimum := uint256.NewInt(amm.MinimumLiquidity)
			if !root.Gt(minimum) {
				return fmt.Errorf("mint: sqrt(%s*%s) <= %d: %w", amm.Dec(amount0), amm.Dec(amount1), amm.MinimumLiquidity, amm.ErrInsufficientLiquidityMinted)
			}
			liquidity = new(uint256.Int).Sub(root, minimum)
			// The minimum is locked forever at the zero address.
			if err := p.mintLP(common.Address{}, minimum); err != nil {
				return err
			}
		} else {
			l0, err := amm.MulDiv(amount0, supply, reserve0)
			if err != nil {
				return err
			}
			l1, err := amm.MulDiv(amount1, supply, reserve1)
			if err != nil {
				return err
			}
			liquidity = amm.Min(l0, l1)
		}
		if liquidity.IsZero() {
			return fmt.Errorf("mint: %w", amm.ErrInsufficientLiquidityMinted)
		}
		if err := p.mintLP(to, liquidity); err != nil {
			return err
		}

		if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
			return err
		}
		if feeOn {
			if err := p.storeKLast(); err != nil {
				return err
			}
		}
		if err := dex.EmitPairEvent(p.host, p.addr, "Mint", sender, amount0, amount1); err != nil {
			return err
		}

		p.logger.Debug("mint",
			zap.String("to", to.Hex()),
			zap.String("amount0", amm.Dec(amount0)),
			zap.String("amount1", amm.Dec(amount1)),
			zap.String("liquidity", amm.Dec(liquidity)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// Burn redeems the LP the pair holds of its own token for a pro-rata share
// of both assets, sent to `to`. Callers move the LP to the pair first.
func (p *Pair) Burn(sender, to common.Address) (*uint256.Int, *uint256.Int, error) {
	var amount0, amount1 *uint256.Int
	err := p.host.Atomic(func() error {
		unlock, err := p.lock()
		if err != nil {
			return err
		}
		defer unlock()

		reserve0, reserve1, _ := p.Reserves()
		balance0, balance1 := p.balances()
		liquidity := p.BalanceOf(p.addr)

		feeOn, err := p.mintFee(reserve0, reserve1)
		if err != nil {
			return err
		}

		supply := p.TotalSupply()
		if supply.IsZero() {
			return fmt.Errorf("burn: empty pool: %w", amm.ErrInsufficientLiquidityBurned)
		}
		if amount0, err = amm.MulDiv(liquidity, balance0, supply); err != nil {
			return err
		}
		if amount1, err = amm.MulDiv(liquidity, balance1, supply); err != nil {
			return err
		}
		if amount0.IsZero() || amount1.IsZero() {
			return fmt.Errorf("burn: %s LP: %w", amm.Dec(liquidity), amm.ErrInsufficientLiquidityBurned)
		}

		if err := p.burnLP(p.addr, liquidity); err != nil {
			return err
		}
		if err := token.SafeTransfer(p.token0, p.addr, to, amount0); err != nil {
			return err
		}
		if err := token.SafeTransfer(p.token1, p.addr, to, amount1); err != nil {
			return err
		}

		balance0, balance1 = p.balances()
		if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
			return err
		}
		if feeOn {
			if err := p.storeKLast(); err != nil {
				return err
			}
		}
		if err := dex.EmitPairEvent(p.host, p.addr, "Burn", sender, amount0, amount1, to); err != nil {
			return err
		}

		p.logger.Debug("burn",
			zap.String("to", to.Hex()),
			zap.String("liquidity", amm.Dec(liquidity)),
			zap.String("amount0", amm.Dec(amount0)),
			zap.String("amount1", amm.Dec(amount1)),
		)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
