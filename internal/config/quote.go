package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/pflag"

	"sojoswap/internal/amm"
)

// Hop is the reserve pair a quote crosses, input side first.
type Hop struct {
	ReserveIn  *uint256.Int
	ReserveOut *uint256.Int
}

// QuoteConfig holds configuration for the quote command. Exactly one of
// AmountIn and AmountOut is set.
type QuoteConfig struct {
	Hops      []Hop
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	LogLevel  string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"log-level": "info",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	hops, err := ParseHops(getStringSlice(v, "reserves"))
	if err != nil {
		return QuoteConfig{}, err
	}
	if len(hops) == 0 {
		return QuoteConfig{}, fmt.Errorf("at least one reserve pair is required")
	}

	cfg := QuoteConfig{Hops: hops, LogLevel: v.GetString("log-level")}
	amountIn := strings.TrimSpace(v.GetString("amount-in"))
	amountOut := strings.TrimSpace(v.GetString("amount-out"))
	switch {
	case amountIn != "" && amountOut != "":
		return QuoteConfig{}, fmt.Errorf("amount-in and amount-out are mutually exclusive")
	case amountIn != "":
		cfg.AmountIn, err = amm.ParseDec(amountIn)
	case amountOut != "":
		cfg.AmountOut, err = amm.ParseDec(amountOut)
	default:
		return QuoteConfig{}, fmt.Errorf("one of amount-in or amount-out is required")
	}
	if err != nil {
		return QuoteConfig{}, err
	}
	return cfg, nil
}

// ParseHops parses "reserveIn:reserveOut" entries in path order.
func ParseHops(inputs []string) ([]Hop, error) {
	hops := make([]Hop, 0, len(inputs))
	for _, input := range inputs {
		parts := strings.SplitN(strings.TrimSpace(input), ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid reserve pair %q, want reserveIn:reserveOut", input)
		}
		in, err := amm.ParseDec(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("reserve pair %q: %w", input, err)
		}
		out, err := amm.ParseDec(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("reserve pair %q: %w", input, err)
		}
		hops = append(hops, Hop{ReserveIn: in, ReserveOut: out})
	}
	return hops, nil
}
