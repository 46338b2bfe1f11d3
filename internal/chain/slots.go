package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Slot returns the storage key of a fixed-position variable.
func Slot(n uint64) common.Hash {
	return common.Hash(uint256.NewInt(n).Bytes32())
}

// MapSlot returns the storage key of mapping[key] declared at slot n,
// using the Solidity layout keccak256(pad32(key) . pad32(n)).
func MapSlot(key common.Address, n uint64) common.Hash {
	return crypto.Keccak256Hash(common.LeftPadBytes(key.Bytes(), 32), Slot(n).Bytes())
}

// NestedMapSlot returns the storage key of mapping[outer][inner] declared at slot n.
func NestedMapSlot(outer, inner common.Address, n uint64) common.Hash {
	base := MapSlot(outer, n)
	return crypto.Keccak256Hash(common.LeftPadBytes(inner.Bytes(), 32), base.Bytes())
}

// HashMapSlot returns the storage key of mapping[key] for a bytes32 key.
func HashMapSlot(key common.Hash, n uint64) common.Hash {
	return crypto.Keccak256Hash(key.Bytes(), Slot(n).Bytes())
}
