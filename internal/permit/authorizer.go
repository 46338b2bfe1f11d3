package permit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
)

// Clock reports the current block timestamp.
type Clock interface {
	Timestamp() uint64
}

// NonceStore holds per-owner permit nonces.
type NonceStore interface {
	Nonce(owner common.Address) *uint256.Int
	SetNonce(owner common.Address, nonce *uint256.Int)
}

// Authorizer verifies permits for one verifying contract.
type Authorizer struct {
	domain common.Hash
	clock  Clock
	nonces NonceStore
}

// NewAuthorizer builds an authorizer bound to a domain separator.
func NewAuthorizer(domainSeparator common.Hash, clock Clock, nonces NonceStore) *Authorizer {
	return &Authorizer{domain: domainSeparator, clock: clock, nonces: nonces}
}

// DomainSeparator returns the bound domain.
func (a *Authorizer) DomainSeparator() common.Hash {
	return a.domain
}

// Verify checks that owner signed a permit for spender over value with the
// owner's current nonce, then consumes the nonce.
func (a *Authorizer) Verify(owner, spender common.Address, value *uint256.Int, deadline uint64, sig Signature) error {
	if now := a.clock.Timestamp(); now > deadline {
		return fmt.Errorf("permit: %w: deadline %d, now %d", amm.ErrExpired, deadline, now)
	}

	nonce := a.nonces.Nonce(owner)
	digest, err := Digest(a.domain, Message{
		Owner:    owner,
		Spender:  spender,
		Value:    value,
		Nonce:    nonce,
		Deadline: deadline,
	})
	if err != nil {
		return err
	}

	signer, err := Recover(digest, sig)
	if err != nil {
		return err
	}
	if signer == (common.Address{}) || signer != owner {
		return fmt.Errorf("permit: %w: signer %s, owner %s", amm.ErrInvalidSignature, signer.Hex(), owner.Hex())
	}

	a.nonces.SetNonce(owner, new(uint256.Int).AddUint64(nonce, 1))
	return nil
}
