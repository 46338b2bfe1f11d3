// Package permit verifies EIP-712 signed LP allowances.
package permit

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"sojoswap/internal/amm"
)

const (
	DomainName    = "Sojoswap V2"
	DomainVersion = "1"
)

var (
	DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	PermitTypeHash = crypto.Keccak256Hash([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)

	domainArgs = abi.Arguments{
		{Type: bytes32Type}, {Type: bytes32Type}, {Type: bytes32Type}, {Type: uint256Type}, {Type: addressType},
	}
	permitArgs = abi.Arguments{
		{Type: bytes32Type}, {Type: addressType}, {Type: addressType}, {Type: uint256Type}, {Type: uint256Type}, {Type: uint256Type},
	}
)

// Signature is a secp256k1 signature with V in {27, 28}.
type Signature struct {
	V uint8
	R common.Hash
	S common.Hash
}

// Message is the signed Permit payload.
type Message struct {
	Owner    common.Address
	Spender  common.Address
	Value    *uint256.Int
	Nonce    *uint256.Int
	Deadline uint64
}

// DomainSeparator returns the EIP-712 domain hash for a pair.
func DomainSeparator(chainID *big.Int, verifyingContract common.Address) (common.Hash, error) {
	encoded, err := domainArgs.Pack(
		DomainTypeHash,
		crypto.Keccak256Hash([]byte(DomainName)),
		crypto.Keccak256Hash([]byte(DomainVersion)),
		chainID,
		verifyingContract,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode domain: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// StructHash returns keccak256(abi.encode(PERMIT_TYPEHASH, owner, spender, value, nonce, deadline)).
func StructHash(msg Message) (common.Hash, error) {
	encoded, err := permitArgs.Pack(
		PermitTypeHash,
		msg.Owner,
		msg.Spender,
		msg.Value.ToBig(),
		msg.Nonce.ToBig(),
		new(big.Int).SetUint64(msg.Deadline),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode permit: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// Digest returns the hash an owner signs.
func Digest(domainSeparator common.Hash, msg Message) (common.Hash, error) {
	structHash, err := StructHash(msg)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes()), nil
}

// Sign signs msg for the given domain.
func Sign(key *ecdsa.PrivateKey, domainSeparator common.Hash, msg Message) (Signature, error) {
	digest, err := Digest(domainSeparator, msg)
	if err != nil {
		return Signature{}, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign permit: %w", err)
	}
	return Signature{
		V: sig[64] + 27,
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

// Recover returns the address that produced sig over digest. Signatures with
// s in the upper half of the curve order are rejected.
func Recover(digest common.Hash, sig Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("%w: bad v %d", amm.ErrInvalidSignature, sig.V)
	}
	v := sig.V - 27
	r := new(big.Int).SetBytes(sig.R.Bytes())
	s := new(big.Int).SetBytes(sig.S.Bytes())
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, fmt.Errorf("%w: malformed r/s", amm.ErrInvalidSignature)
	}

	raw := make([]byte, 65)
	copy(raw[:32], sig.R.Bytes())
	copy(raw[32:64], sig.S.Bytes())
	raw[64] = v
	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", amm.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
