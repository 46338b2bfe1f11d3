package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"sojoswap/internal/dex"
)

// ParseAddresses converts string addresses into common.Address, dropping
// blanks and duplicates.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	seen := make(map[common.Address]struct{}, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addr := common.HexToAddress(input)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseTopic0 converts topic0 filters into hashes. Each input is either a
// 32-byte hex hash or the name of a pair, factory or token event such as
// "Swap" or "PairCreated".
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "0x") {
			id, err := EventTopic(input)
			if err != nil {
				return nil, err
			}
			topics = append(topics, id)
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0: %s", input)
		}
		if len(data) != 32 {
			return nil, fmt.Errorf("invalid topic0 length: %s", input)
		}
		topics = append(topics, common.BytesToHash(data))
	}
	return topics, nil
}

// EventTopic returns the topic0 of a named event.
func EventTopic(name string) (common.Hash, error) {
	pairABI, err := dex.PairABI()
	if err != nil {
		return common.Hash{}, err
	}
	if ev, ok := pairABI.Events[name]; ok {
		return ev.ID, nil
	}
	factoryABI, err := dex.FactoryABI()
	if err != nil {
		return common.Hash{}, err
	}
	if ev, ok := factoryABI.Events[name]; ok {
		return ev.ID, nil
	}
	tokenABI, err := dex.TokenABI()
	if err != nil {
		return common.Hash{}, err
	}
	if ev, ok := tokenABI.Events[name]; ok {
		return ev.ID, nil
	}
	return common.Hash{}, fmt.Errorf("unknown event name: %s", name)
}

// PairEventTopics lists the topics the pair decoder understands.
func PairEventTopics() ([]common.Hash, error) {
	return ParseTopic0([]string{"PairCreated", "Mint", "Burn", "Swap", "Sync"})
}
