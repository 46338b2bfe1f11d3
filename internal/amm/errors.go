package amm

import "errors"

// Quoting and pool errors. Callers match them with errors.Is; none of them
// is retried internally.
var (
	ErrInsufficientAmount          = errors.New("insufficient amount")
	ErrInsufficientLiquidity       = errors.New("insufficient liquidity")
	ErrInsufficientInputAmount     = errors.New("insufficient input amount")
	ErrInsufficientOutputAmount    = errors.New("insufficient output amount")
	ErrExcessiveInputAmount        = errors.New("excessive input amount")
	ErrInsufficientAAmount         = errors.New("insufficient A amount")
	ErrInsufficientBAmount         = errors.New("insufficient B amount")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")
	ErrKInvariantViolated          = errors.New("k invariant violated")
	ErrInvalidPath                 = errors.New("invalid path")
	ErrInvalidTo                   = errors.New("invalid to")
	ErrExpired                     = errors.New("expired")
	ErrReentrant                   = errors.New("reentrant call")
	ErrInvalidSignature            = errors.New("invalid signature")
)

// Registry, ledger and admin errors.
var (
	ErrIdenticalAddresses    = errors.New("identical addresses")
	ErrZeroAddress           = errors.New("zero address")
	ErrPairExists            = errors.New("pair exists")
	ErrPairNotFound          = errors.New("pair not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidTaxRate        = errors.New("tax rate out of range")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrInsufficientValue     = errors.New("insufficient native value")
)

// Arithmetic errors.
var (
	ErrOverflow  = errors.New("overflow")
	ErrUnderflow = errors.New("underflow")
	ErrDivByZero = errors.New("division by zero")
)
