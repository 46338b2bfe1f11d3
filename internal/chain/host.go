package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Config holds host parameters.
type Config struct {
	ChainID   uint64
	Timestamp uint64
	Deployer  common.Address
}

// Host is an in-memory execution environment backed by a journaled StateDB.
// Contract state lives in storage slots so that Atomic can roll back every
// write a failed call made. A Host is not safe for concurrent use.
type Host struct {
	state       *state.StateDB
	chainID     *big.Int
	deployer    common.Address
	deployNonce uint64
	timestamp   uint64
	blockNumber uint64
	logger      *zap.Logger
	code        map[common.Address]interface{}

	depth      int
	txCount    int
	txHash     common.Hash
	committed  []Receipt
	blockTimes map[uint64]uint64
}

// Receipt places a committed transaction in the host's block history.
type Receipt struct {
	TxHash      common.Hash
	TxIndex     uint
	BlockNumber uint64
	BlockHash   common.Hash
	Timestamp   uint64
}

// NewHost creates an empty host.
func NewHost(cfg Config, logger *zap.Logger) (*Host, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("chain id must be greater than zero")
	}

	db := state.NewDatabase(rawdb.NewMemoryDatabase())
	statedb, err := state.New(types.EmptyRootHash, db, nil)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	deployer := cfg.Deployer
	if deployer == (common.Address{}) {
		deployer = common.HexToAddress("0x00000000000000000000000000000000000d0d0d")
	}

	return &Host{
		state:       statedb,
		chainID:     new(big.Int).SetUint64(cfg.ChainID),
		deployer:    deployer,
		timestamp:   cfg.Timestamp,
		blockNumber: 1,
		logger:      logger,
		code:        make(map[common.Address]interface{}),
		blockTimes:  map[uint64]uint64{1: cfg.Timestamp},
	}, nil
}

// ChainID returns the chain id used in signature domains.
func (h *Host) ChainID() *big.Int {
	return new(big.Int).Set(h.chainID)
}

// Timestamp returns the current block timestamp.
func (h *Host) Timestamp() uint64 {
	return h.timestamp
}

// BlockNumber returns the current block number.
func (h *Host) BlockNumber() uint64 {
	return h.blockNumber
}

// SetTimestamp moves the clock to ts and opens a new block.
func (h *Host) SetTimestamp(ts uint64) {
	if ts != h.timestamp {
		h.blockNumber++
	}
	h.timestamp = ts
	h.blockTimes[h.blockNumber] = ts
}

// Advance moves the clock forward by seconds.
func (h *Host) Advance(seconds uint64) {
	h.SetTimestamp(h.timestamp + seconds)
}

// Deploy allocates a fresh contract address.
func (h *Host) Deploy(label string) common.Address {
	addr := crypto.CreateAddress(h.deployer, h.deployNonce)
	h.deployNonce++
	h.logger.Debug("deploy", zap.String("label", label), zap.String("address", addr.Hex()))
	return addr
}

// Register binds a Go implementation to addr so other contracts can call it.
func (h *Host) Register(addr common.Address, impl interface{}) {
	h.code[addr] = impl
}

// Resolve returns the implementation bound to addr.
func (h *Host) Resolve(addr common.Address) (interface{}, bool) {
	impl, ok := h.code[addr]
	return impl, ok
}

// Atomic runs fn as one all-or-nothing unit. When fn returns an error or
// panics, every state write and log it made is reverted. Calls nest; the
// outermost call is a transaction and is committed on success.
func (h *Host) Atomic(fn func() error) (err error) {
	top := h.depth == 0
	if top {
		h.beginTx()
	}
	snapshot := h.state.Snapshot()
	h.depth++

	defer func() {
		h.depth--
		if r := recover(); r != nil {
			h.state.RevertToSnapshot(snapshot)
			panic(r)
		}
		if err != nil {
			h.state.RevertToSnapshot(snapshot)
			if top {
				h.logger.Debug("tx reverted", zap.String("tx", h.txHash.Hex()), zap.Error(err))
			}
			return
		}
		if top {
			h.state.Finalise(false)
			h.committed = append(h.committed, Receipt{
				TxHash:      h.txHash,
				TxIndex:     uint(h.txCount),
				BlockNumber: h.blockNumber,
				BlockHash:   h.BlockHash(h.blockNumber),
				Timestamp:   h.timestamp,
			})
		}
	}()

	return fn()
}

func (h *Host) beginTx() {
	h.txCount++
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], h.blockNumber)
	binary.BigEndian.PutUint64(buf[8:], uint64(h.txCount))
	h.txHash = crypto.Keccak256Hash(h.chainID.Bytes(), buf[:])
	h.state.SetTxContext(h.txHash, h.txCount)
}

// Committed returns the hashes of committed transactions in order.
func (h *Host) Committed() []common.Hash {
	out := make([]common.Hash, 0, len(h.committed))
	for _, r := range h.committed {
		out = append(out, r.TxHash)
	}
	return out
}

// Receipts returns the committed transactions in order.
func (h *Host) Receipts() []Receipt {
	out := make([]Receipt, len(h.committed))
	copy(out, h.committed)
	return out
}

// BlockHash derives a stable hash for block n.
func (h *Host) BlockHash(n uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return crypto.Keccak256Hash([]byte("block"), h.chainID.Bytes(), buf[:])
}

// TxLogs returns the logs emitted by a committed transaction, stamped with
// the block it was committed in. Unknown hashes yield nil.
func (h *Host) TxLogs(txHash common.Hash) []*types.Log {
	for _, r := range h.committed {
		if r.TxHash == txHash {
			return h.state.GetLogs(txHash, r.BlockNumber, r.BlockHash)
		}
	}
	return nil
}

// Emit appends a log to the current transaction.
func (h *Host) Emit(addr common.Address, topics []common.Hash, data []byte) {
	h.state.AddLog(&types.Log{
		Address:     addr,
		Topics:      topics,
		Data:        data,
		BlockNumber: h.blockNumber,
	})
}

// Load reads a storage slot as an unsigned integer.
func (h *Host) Load(addr common.Address, slot common.Hash) *uint256.Int {
	v := h.state.GetState(addr, slot)
	return new(uint256.Int).SetBytes32(v[:])
}

// Store writes an unsigned integer to a storage slot.
func (h *Host) Store(addr common.Address, slot common.Hash, v *uint256.Int) {
	h.state.SetState(addr, slot, common.Hash(v.Bytes32()))
}

// LoadAddress reads a storage slot holding an address.
func (h *Host) LoadAddress(addr common.Address, slot common.Hash) common.Address {
	return common.BytesToAddress(h.state.GetState(addr, slot).Bytes())
}

// StoreAddress writes an address to a storage slot.
func (h *Host) StoreAddress(addr common.Address, slot common.Hash, v common.Address) {
	h.state.SetState(addr, slot, common.BytesToHash(v.Bytes()))
}
