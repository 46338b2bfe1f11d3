package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Emitter receives encoded logs.
type Emitter interface {
	Emit(addr common.Address, topics []common.Hash, data []byte)
}

// PackEvent encodes args as the topics and data of event. Amounts may be
// passed as *uint256.Int, *big.Int or uint64.
func PackEvent(event abi.Event, args ...interface{}) ([]common.Hash, []byte, error) {
	if len(args) != len(event.Inputs) {
		return nil, nil, fmt.Errorf("%s: expected %d args, got %d", event.Name, len(event.Inputs), len(args))
	}

	topics := []common.Hash{event.ID}
	values := make([]interface{}, 0, len(args))
	for i, input := range event.Inputs {
		arg := normalizeArg(args[i])
		if !input.Indexed {
			values = append(values, arg)
			continue
		}
		made, err := abi.MakeTopics([]interface{}{arg})
		if err != nil {
			return nil, nil, fmt.Errorf("%s: topic %s: %w", event.Name, input.Name, err)
		}
		topics = append(topics, made[0][0])
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", event.Name, err)
	}
	return topics, data, nil
}

// EmitPairEvent encodes and emits a pair event from addr.
func EmitPairEvent(e Emitter, addr common.Address, name string, args ...interface{}) error {
	parsed, err := PairABI()
	return emit(e, parsed, err, addr, name, args)
}

// EmitTokenEvent encodes and emits a token event from addr.
func EmitTokenEvent(e Emitter, addr common.Address, name string, args ...interface{}) error {
	parsed, err := TokenABI()
	return emit(e, parsed, err, addr, name, args)
}

// EmitFactoryEvent encodes and emits a factory event from addr.
func EmitFactoryEvent(e Emitter, addr common.Address, name string, args ...interface{}) error {
	parsed, err := FactoryABI()
	return emit(e, parsed, err, addr, name, args)
}

func emit(e Emitter, parsed abi.ABI, parseErr error, addr common.Address, name string, args []interface{}) error {
	if parseErr != nil {
		return fmt.Errorf("parse abi: %w", parseErr)
	}
	event, ok := parsed.Events[name]
	if !ok {
		return fmt.Errorf("unknown event %s", name)
	}
	topics, data, err := PackEvent(event, args...)
	if err != nil {
		return err
	}
	e.Emit(addr, topics, data)
	return nil
}

func normalizeArg(arg interface{}) interface{} {
	switch v := arg.(type) {
	case *uint256.Int:
		if v == nil {
			return new(big.Int)
		}
		return v.ToBig()
	case uint64:
		return new(big.Int).SetUint64(v)
	default:
		return arg
	}
}
