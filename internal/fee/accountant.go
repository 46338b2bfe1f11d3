// Package fee holds the protocol tax policy and moves tax to the treasury.
package fee

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/chain"
	"sojoswap/internal/token"
)

const (
	slotRate = iota
	slotTreasury
	slotAdmin
)

// Policy is the current tax configuration.
type Policy struct {
	RateBasisPoints uint64
	Treasury        common.Address
}

// Accountant stores the tax policy and collects tax on the taxed asset.
// The wrapped-native asset and the native currency form one taxed leg.
type Accountant struct {
	host   *chain.Host
	addr   common.Address
	taxed  common.Address
	logger *zap.Logger
}

// New deploys an accountant taxing the given wrapped-native asset.
func New(host *chain.Host, admin common.Address, policy Policy, taxed common.Address, logger *zap.Logger) (*Accountant, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.RateBasisPoints > amm.BasisPoints {
		return nil, fmt.Errorf("%w: %d", amm.ErrInvalidTaxRate, policy.RateBasisPoints)
	}
	a := &Accountant{
		host:   host,
		addr:   host.Deploy("fee-accountant"),
		taxed:  taxed,
		logger: logger,
	}
	err := host.Atomic(func() error {
		host.Store(a.addr, chain.Slot(slotRate), uint256.NewInt(policy.RateBasisPoints))
		host.StoreAddress(a.addr, chain.Slot(slotTreasury), policy.Treasury)
		host.StoreAddress(a.addr, chain.Slot(slotAdmin), admin)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Accountant) Address() common.Address { return a.addr }

// TaxedAsset returns the wrapped-native asset whose legs are taxed.
func (a *Accountant) TaxedAsset() common.Address { return a.taxed }

// IsTaxed reports whether asset is the taxed asset or the native currency.
func (a *Accountant) IsTaxed(asset common.Address) bool {
	return asset == a.taxed || asset == token.NativeAddress
}

func (a *Accountant) Policy() Policy {
	return Policy{
		RateBasisPoints: a.host.Load(a.addr, chain.Slot(slotRate)).Uint64(),
		Treasury:        a.host.LoadAddress(a.addr, chain.Slot(slotTreasury)),
	}
}

func (a *Accountant) Admin() common.Address {
	return a.host.LoadAddress(a.addr, chain.Slot(slotAdmin))
}

// SetTaxRate changes the rate. Only the admin may call it.
func (a *Accountant) SetTaxRate(caller common.Address, rate uint64) error {
	return a.host.Atomic(func() error {
		if err := a.authorize(caller); err != nil {
			return err
		}
		if rate > amm.BasisPoints {
			return fmt.Errorf("%w: %d", amm.ErrInvalidTaxRate, rate)
		}
		a.host.Store(a.addr, chain.Slot(slotRate), uint256.NewInt(rate))
		a.logger.Info("tax rate updated", zap.Uint64("rate_bps", rate))
		return nil
	})
}

// SetTreasury changes the tax recipient. Only the admin may call it.
func (a *Accountant) SetTreasury(caller, treasury common.Address) error {
	return a.host.Atomic(func() error {
		if err := a.authorize(caller); err != nil {
			return err
		}
		a.host.StoreAddress(a.addr, chain.Slot(slotTreasury), treasury)
		a.logger.Info("treasury updated", zap.String("treasury", treasury.Hex()))
		return nil
	})
}

// SetAdmin hands the admin role to admin.
func (a *Accountant) SetAdmin(caller, admin common.Address) error {
	return a.host.Atomic(func() error {
		if err := a.authorize(caller); err != nil {
			return err
		}
		a.host.StoreAddress(a.addr, chain.Slot(slotAdmin), admin)
		return nil
	})
}

// Tax returns floor(amount * rate / 10000).
func (a *Accountant) Tax(amount *uint256.Int) (*uint256.Int, error) {
	rate := a.host.Load(a.addr, chain.Slot(slotRate))
	return amm.MulDiv(amount, rate, uint256.NewInt(amm.BasisPoints))
}

// Collect moves the tax on gross from `from` to the treasury and returns the
// net amount and the tax.
func (a *Accountant) Collect(asset token.Transferer, from common.Address, gross *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	tax, err := a.collect(asset, gross, func(treasury common.Address, tax *uint256.Int) error {
		return token.SafeTransfer(asset, from, treasury, tax)
	})
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Sub(gross, tax), tax, nil
}

// CollectFrom is Collect through spender's allowance over from.
func (a *Accountant) CollectFrom(asset token.Token, spender, from common.Address, gross *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	tax, err := a.collect(asset, gross, func(treasury common.Address, tax *uint256.Int) error {
		return token.SafeTransferFrom(asset, spender, from, treasury, tax)
	})
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Sub(gross, tax), tax, nil
}

// Surcharge moves the tax on base from `from` to the treasury on top of
// base itself. Exact-output swaps pay their input tax this way.
func (a *Accountant) Surcharge(asset token.Transferer, from common.Address, base *uint256.Int) (*uint256.Int, error) {
	return a.collect(asset, base, func(treasury common.Address, tax *uint256.Int) error {
		return token.SafeTransfer(asset, from, treasury, tax)
	})
}

// SurchargeFrom is Surcharge through spender's allowance over from.
func (a *Accountant) SurchargeFrom(asset token.Token, spender, from common.Address, base *uint256.Int) (*uint256.Int, error) {
	return a.collect(asset, base, func(treasury common.Address, tax *uint256.Int) error {
		return token.SafeTransferFrom(asset, spender, from, treasury, tax)
	})
}

func (a *Accountant) collect(asset token.Transferer, amount *uint256.Int, pay func(common.Address, *uint256.Int) error) (*uint256.Int, error) {
	tax, err := a.Tax(amount)
	if err != nil {
		return nil, err
	}
	if tax.IsZero() {
		return tax, nil
	}
	treasury := a.Policy().Treasury
	if err := pay(treasury, tax); err != nil {
		return nil, err
	}
	a.logger.Debug("tax collected",
		zap.String("asset", asset.Address().Hex()),
		zap.String("treasury", treasury.Hex()),
		zap.String("tax", amm.Dec(tax)),
	)
	return tax, nil
}

func (a *Accountant) authorize(caller common.Address) error {
	if caller != a.Admin() {
		return fmt.Errorf("tax policy: %w: %s", amm.ErrForbidden, caller.Hex())
	}
	return nil
}
