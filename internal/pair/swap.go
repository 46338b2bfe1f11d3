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

// Callee receives flash-swap callbacks. It runs after the optimistic
// transfer and before the invariant check, so it can repay within the call.
type Callee interface {
	SojoswapCall(sender common.Address, amount0, amount1 *uint256.Int, data []byte) error
}

// Swap sends the requested outputs to `to`, then requires that the inputs
// delivered to the pair keep the fee-adjusted product of balances at or
// above the product of reserves. A non-empty data invokes the Callee
// registered at `to` between the two steps.
func (p *Pair) Swap(sender common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, data []byte) error {
	return p.host.Atomic(func() error {
		unlock, err := p.lock()
		if err != nil {
			return err
		}
		defer unlock()

		if amount0Out.IsZero() && amount1Out.IsZero() {
			return fmt.Errorf("swap: %w", amm.ErrInsufficientOutputAmount)
		}

		reserve0, reserve1, _ := p.Reserves()
		if !amount0Out.Lt(reserve0) || !amount1Out.Lt(reserve1) {
			return fmt.Errorf("swap: out (%s, %s) vs reserves (%s, %s): %w",
				amm.Dec(amount0Out), amm.Dec(amount1Out), amm.Dec(reserve0), amm.Dec(reserve1), amm.ErrInsufficientLiquidity)
		}
		if to == p.token0.Address() || to == p.token1.Address() {
			return fmt.Errorf("swap: %w: %s", amm.ErrInvalidTo, to.Hex())
		}

		if !amount0Out.IsZero() {
			if err := token.SafeTransfer(p.token0, p.addr, to, amount0Out); err != nil {
				return err
			}
		}
		if !amount1Out.IsZero() {
			if err := token.SafeTransfer(p.token1, p.addr, to, amount1Out); err != nil {
				return err
			}
		}
		if len(data) > 0 {
			if err := p.callback(to, sender, amount0Out, amount1Out, data); err != nil {
				return err
			}
		}

		balance0, balance1 := p.balances()
		amount0In := inputAmount(balance0, reserve0, amount0Out)
		amount1In := inputAmount(balance1, reserve1, amount1Out)
		if amount0In.IsZero() && amount1In.IsZero() {
			return fmt.Errorf("swap: %w", amm.ErrInsufficientInputAmount)
		}

		ok, err := amm.CheckK(balance0, balance1, amount0In, amount1In, reserve0, reserve1)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("swap: balances (%s, %s) reserves (%s, %s): %w",
				amm.Dec(balance0), amm.Dec(balance1), amm.Dec(reserve0), amm.Dec(reserve1), amm.ErrKInvariantViolated)
		}

		if err := p.update(balance0, balance1, reserve0, reserve1); err != nil {
			return err
		}
		if err := dex.EmitPairEvent(p.host, p.addr, "Swap", sender, amount0In, amount1In, amount0Out, amount1Out, to); err != nil {
			return err
		}

		p.logger.Debug("swap",
			zap.String("to", to.Hex()),
			zap.String("amount0In", amm.Dec(amount0In)),
			zap.String("amount1In", amm.Dec(amount1In)),
			zap.String("amount0Out", amm.Dec(amount0Out)),
			zap.String("amount1Out", amm.Dec(amount1Out)),
		)
		return nil
	})
}

// Skim sends any balance above the reserves to `to`.
func (p *Pair) Skim(to common.Address) error {
	return p.host.Atomic(func() error {
		unlock, err := p.lock()
		if err != nil {
			return err
		}
		defer unlock()

		reserve0, reserve1, _ := p.Reserves()
		balance0, balance1 := p.balances()
		if excess := inputAmount(balance0, reserve0, new(uint256.Int)); !excess.IsZero() {
			if err := token.SafeTransfer(p.token0, p.addr, to, excess); err != nil {
				return err
			}
		}
		if excess := inputAmount(balance1, reserve1, new(uint256.Int)); !excess.IsZero() {
			if err := token.SafeTransfer(p.token1, p.addr, to, excess); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sync forces the reserves to match the balances.
func (p *Pair) Sync() error {
	return p.host.Atomic(func() error {
		unlock, err := p.lock()
		if err != nil {
			return err
		}
		defer unlock()

		reserve0, reserve1, _ := p.Reserves()
		balance0, balance1 := p.balances()
		return p.update(balance0, balance1, reserve0, reserve1)
	})
}

func (p *Pair) callback(to, sender common.Address, amount0, amount1 *uint256.Int, data []byte) error {
	impl, ok := p.host.Resolve(to)
	if !ok {
		return fmt.Errorf("swap: no contract at %s: %w", to.Hex(), amm.ErrInvalidTo)
	}
	callee, ok := impl.(Callee)
	if !ok {
		return fmt.Errorf("swap: %s is not a swap callee: %w", to.Hex(), amm.ErrInvalidTo)
	}
	return callee.SojoswapCall(sender, amount0, amount1, data)
}

// inputAmount returns balance - (reserve - out), or zero when the pair
// received nothing.
func inputAmount(balance, reserve, out *uint256.Int) *uint256.Int {
	floor := new(uint256.Int).Sub(reserve, out)
	if !balance.Gt(floor) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(balance, floor)
}
