package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/factory"
	"sojoswap/internal/pair"
	"sojoswap/internal/permit"
	"sojoswap/internal/token"
)

type AddLiquidityParams struct {
	TokenA         common.Address
	TokenB         common.Address
	AmountADesired *uint256.Int
	AmountBDesired *uint256.Int
	AmountAMin     *uint256.Int
	AmountBMin     *uint256.Int
	To             common.Address
	Deadline       uint64
}

type AddLiquidityNativeParams struct {
	Token              common.Address
	AmountTokenDesired *uint256.Int
	AmountTokenMin     *uint256.Int
	AmountNativeMin    *uint256.Int
	To                 common.Address
	Deadline           uint64
}

type RemoveLiquidityParams struct {
	TokenA     common.Address
	TokenB     common.Address
	Liquidity  *uint256.Int
	AmountAMin *uint256.Int
	AmountBMin *uint256.Int
	To         common.Address
	Deadline   uint64
}

type RemoveLiquidityNativeParams struct {
	Token           common.Address
	Liquidity       *uint256.Int
	AmountTokenMin  *uint256.Int
	AmountNativeMin *uint256.Int
	To              common.Address
	Deadline        uint64
}

// PermitParams authorizes the router to pull LP tokens by signature. With
// ApproveMax the signature covers the maximum allowance instead of the
// exact liquidity.
type PermitParams struct {
	ApproveMax bool
	Signature  permit.Signature
}

// Deposit reports what a liquidity addition actually delivered.
type Deposit struct {
	AmountA   *uint256.Int
	AmountB   *uint256.Int
	Liquidity *uint256.Int
}

// AddLiquidity deposits tokenA and tokenB from caller at the pool ratio,
// creating the pair when missing. Amounts are measured at the pair, so a
// fee-on-transfer asset that delivers less than its minimum fails the call.
func (r *Router) AddLiquidity(caller common.Address, params AddLiquidityParams) (*Deposit, error) {
	var out *Deposit
	err := r.run("addLiquidity", params.Deadline, []common.Address{params.TokenA, params.TokenB}, func() error {
		p, amountA, amountB, err := r.optimalDeposit(params.TokenA, params.TokenB, params.AmountADesired, params.AmountBDesired, params.AmountAMin, params.AmountBMin)
		if err != nil {
			return err
		}
		tokenA, err := r.token(params.TokenA)
		if err != nil {
			return err
		}
		tokenB, err := r.token(params.TokenB)
		if err != nil {
			return err
		}
		deliveredA, err := token.MeasuredTransferFrom(tokenA, r.addr, caller, p.Address(), amountA)
		if err != nil {
			return err
		}
		if deliveredA.Lt(params.AmountAMin) {
			return fmt.Errorf("%w: delivered %s of %s", amm.ErrInsufficientAAmount, amm.Dec(deliveredA), amm.Dec(amountA))
		}
		deliveredB, err := token.MeasuredTransferFrom(tokenB, r.addr, caller, p.Address(), amountB)
		if err != nil {
			return err
		}
		if deliveredB.Lt(params.AmountBMin) {
			return fmt.Errorf("%w: delivered %s of %s", amm.ErrInsufficientBAmount, amm.Dec(deliveredB), amm.Dec(amountB))
		}
		liquidity, err := p.Mint(r.addr, params.To)
		if err != nil {
			return err
		}
		out = &Deposit{AmountA: deliveredA, AmountB: deliveredB, Liquidity: liquidity}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.Liquidity("add")
	return out, nil
}

// AddLiquidityNative pairs token with attached native value. Unused value is
// refunded to the caller.
func (r *Router) AddLiquidityNative(caller common.Address, value *uint256.Int, params AddLiquidityNativeParams) (*Deposit, error) {
	var out *Deposit
	err := r.run("addLiquidityNative", params.Deadline, []common.Address{params.Token}, func() error {
		if err := r.pullValue(caller, value); err != nil {
			return err
		}
		p, amountToken, amountNative, err := r.optimalDeposit(params.Token, r.weth.Address(), params.AmountTokenDesired, value, params.AmountTokenMin, params.AmountNativeMin)
		if err != nil {
			return err
		}
		t, err := r.token(params.Token)
		if err != nil {
			return err
		}
		delivered, err := token.MeasuredTransferFrom(t, r.addr, caller, p.Address(), amountToken)
		if err != nil {
			return err
		}
		if delivered.Lt(params.AmountTokenMin) {
			return fmt.Errorf("%w: delivered %s of %s", amm.ErrInsufficientAAmount, amm.Dec(delivered), amm.Dec(amountToken))
		}
		if err := r.weth.Deposit(r.addr, amountNative); err != nil {
			return err
		}
		if err := token.SafeTransfer(r.weth, r.addr, p.Address(), amountNative); err != nil {
			return err
		}
		liquidity, err := p.Mint(r.addr, params.To)
		if err != nil {
			return err
		}
		if err := r.refund(caller); err != nil {
			return err
		}
		out = &Deposit{AmountA: delivered, AmountB: amountNative, Liquidity: liquidity}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.Liquidity("add")
	return out, nil
}

// optimalDeposit picks the largest deposit not exceeding either desired
// amount that keeps the current reserve ratio.
func (r *Router) optimalDeposit(a, b common.Address, desiredA, desiredB, minA, minB *uint256.Int) (*pair.Pair, *uint256.Int, *uint256.Int, error) {
	p, ok := r.factory.GetPair(a, b)
	if !ok {
		created, err := r.factory.CreatePair(a, b)
		if err != nil {
			return nil, nil, nil, err
		}
		p = created
	}
	reserveA, reserveB, err := r.GetReserves(a, b)
	if err != nil {
		return nil, nil, nil, err
	}
	if reserveA.IsZero() && reserveB.IsZero() {
		return p, desiredA, desiredB, nil
	}

	optimalB, err := amm.Quote(desiredA, reserveA, reserveB)
	if err != nil {
		return nil, nil, nil, err
	}
	if !optimalB.Gt(desiredB) {
		if optimalB.Lt(minB) {
			return nil, nil, nil, fmt.Errorf("%w: optimal %s below %s", amm.ErrInsufficientBAmount, amm.Dec(optimalB), amm.Dec(minB))
		}
		return p, desiredA, optimalB, nil
	}
	optimalA, err := amm.Quote(desiredB, reserveB, reserveA)
	if err != nil {
		return nil, nil, nil, err
	}
	if optimalA.Gt(desiredA) {
		return nil, nil, nil, fmt.Errorf("%w: optimal %s above desired %s", amm.ErrInsufficientAAmount, amm.Dec(optimalA), amm.Dec(desiredA))
	}
	if optimalA.Lt(minA) {
		return nil, nil, nil, fmt.Errorf("%w: optimal %s below %s", amm.ErrInsufficientAAmount, amm.Dec(optimalA), amm.Dec(minA))
	}
	return p, optimalA, desiredB, nil
}

// RemoveLiquidity burns caller's LP and sends both assets to params.To.
func (r *Router) RemoveLiquidity(caller common.Address, params RemoveLiquidityParams) (*uint256.Int, *uint256.Int, error) {
	var amountA, amountB *uint256.Int
	err := r.run("removeLiquidity", params.Deadline, []common.Address{params.TokenA, params.TokenB}, func() error {
		var err error
		amountA, amountB, err = r.removeLiquidity(caller, params)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	r.metrics.Liquidity("remove")
	return amountA, amountB, nil
}

// RemoveLiquidityWithPermit is RemoveLiquidity authorized by an LP permit
// signature instead of a prior approval.
func (r *Router) RemoveLiquidityWithPermit(caller common.Address, params RemoveLiquidityParams, auth PermitParams) (*uint256.Int, *uint256.Int, error) {
	var amountA, amountB *uint256.Int
	err := r.run("removeLiquidityWithPermit", params.Deadline, []common.Address{params.TokenA, params.TokenB}, func() error {
		if err := r.permit(caller, params.TokenA, params.TokenB, params.Liquidity, params.Deadline, auth); err != nil {
			return err
		}
		var err error
		amountA, amountB, err = r.removeLiquidity(caller, params)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	r.metrics.Liquidity("remove")
	return amountA, amountB, nil
}

// RemoveLiquidityNative removes a token/native position, unwrapping the
// native side.
func (r *Router) RemoveLiquidityNative(caller common.Address, params RemoveLiquidityNativeParams) (*uint256.Int, *uint256.Int, error) {
	var amountToken, amountNative *uint256.Int
	err := r.run("removeLiquidityNative", params.Deadline, []common.Address{params.Token}, func() error {
		var err error
		amountToken, amountNative, err = r.removeLiquidityNative(caller, params, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	r.metrics.Liquidity("remove")
	return amountToken, amountNative, nil
}

func (r *Router) RemoveLiquidityNativeWithPermit(caller common.Address, params RemoveLiquidityNativeParams, auth PermitParams) (*uint256.Int, *uint256.Int, error) {
	var amountToken, amountNative *uint256.Int
	err := r.run("removeLiquidityNativeWithPermit", params.Deadline, []common.Address{params.Token}, func() error {
		if err := r.permit(caller, params.Token, r.weth.Address(), params.Liquidity, params.Deadline, auth); err != nil {
			return err
		}
		var err error
		amountToken, amountNative, err = r.removeLiquidityNative(caller, params, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	r.metrics.Liquidity("remove")
	return amountToken, amountNative, nil
}

// RemoveLiquidityNativeSupportingFeeOnTransferTokens forwards whatever token
// balance actually reached the router instead of the burned amount.
func (r *Router) RemoveLiquidityNativeSupportingFeeOnTransferTokens(caller common.Address, params RemoveLiquidityNativeParams) (*uint256.Int, error) {
	var amountNative *uint256.Int
	err := r.run("removeLiquidityNativeSupportingFeeOnTransferTokens", params.Deadline, []common.Address{params.Token}, func() error {
		var err error
		_, amountNative, err = r.removeLiquidityNative(caller, params, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.metrics.Liquidity("remove")
	return amountNative, nil
}

func (r *Router) RemoveLiquidityNativeWithPermitSupportingFeeOnTransferTokens(caller common.Address, params RemoveLiquidityNativeParams, auth PermitParams) (*uint256.Int, error) {
	var amountNative *uint256.Int
	err := r.run("removeLiquidityNativeWithPermitSupportingFeeOnTransferTokens", params.Deadline, []common.Address{params.Token}, func() error {
		if err := r.permit(caller, params.Token, r.weth.Address(), params.Liquidity, params.Deadline, auth); err != nil {
			return err
		}
		var err error
		_, amountNative, err = r.removeLiquidityNative(caller, params, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.metrics.Liquidity("remove")
	return amountNative, nil
}

func (r *Router) permit(caller, a, b common.Address, liquidity *uint256.Int, deadline uint64, auth PermitParams) error {
	p, err := r.pairFor(a, b)
	if err != nil {
		return err
	}
	value := liquidity
	if auth.ApproveMax {
		value = new(uint256.Int).Set(amm.MaxUint256)
	}
	return p.Permit(caller, r.addr, value, deadline, auth.Signature)
}

func (r *Router) removeLiquidity(caller common.Address, params RemoveLiquidityParams) (*uint256.Int, *uint256.Int, error) {
	p, err := r.pairFor(params.TokenA, params.TokenB)
	if err != nil {
		return nil, nil, err
	}
	if err := p.TransferFrom(r.addr, caller, p.Address(), params.Liquidity); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := p.Burn(r.addr, params.To)
	if err != nil {
		return nil, nil, err
	}
	token0, _, err := factory.SortTokens(params.TokenA, params.TokenB)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB := amount0, amount1
	if params.TokenA != token0 {
		amountA, amountB = amount1, amount0
	}
	if amountA.Lt(params.AmountAMin) {
		return nil, nil, fmt.Errorf("%w: %s below %s", amm.ErrInsufficientAAmount, amm.Dec(amountA), amm.Dec(params.AmountAMin))
	}
	if amountB.Lt(params.AmountBMin) {
		return nil, nil, fmt.Errorf("%w: %s below %s", amm.ErrInsufficientBAmount, amm.Dec(amountB), amm.Dec(params.AmountBMin))
	}
	r.logger.Debug("liquidity removed",
		zap.String("pair", p.Address().Hex()),
		zap.String("amount_a", amm.Dec(amountA)),
		zap.String("amount_b", amm.Dec(amountB)),
	)
	return amountA, amountB, nil
}

// removeLiquidityNative burns to the router, then forwards the token side
// and unwraps the native side. With measured set the token amount forwarded
// is the router's balance rather than the burned amount.
func (r *Router) removeLiquidityNative(caller common.Address, params RemoveLiquidityNativeParams, measured bool) (*uint256.Int, *uint256.Int, error) {
	amountToken, amountNative, err := r.removeLiquidity(caller, RemoveLiquidityParams{
		TokenA:     params.Token,
		TokenB:     r.weth.Address(),
		Liquidity:  params.Liquidity,
		AmountAMin: params.AmountTokenMin,
		AmountBMin: params.AmountNativeMin,
		To:         r.addr,
		Deadline:   params.Deadline,
	})
	if err != nil {
		return nil, nil, err
	}
	t, err := r.token(params.Token)
	if err != nil {
		return nil, nil, err
	}
	if measured {
		amountToken = t.BalanceOf(r.addr)
	}
	if err := token.SafeTransfer(t, r.addr, params.To, amountToken); err != nil {
		return nil, nil, err
	}
	if err := r.weth.Withdraw(r.addr, amountNative); err != nil {
		return nil, nil, err
	}
	if err := token.SafeTransfer(r.native, r.addr, params.To, amountNative); err != nil {
		return nil, nil, err
	}
	return amountToken, amountNative, nil
}
