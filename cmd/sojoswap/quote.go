package main

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sojoswap/internal/amm"
	"sojoswap/internal/config"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	amounts, err := quoteHops(cfg)
	if err != nil {
		return err
	}

	logger.Debug("quote",
		zap.Int("hops", len(cfg.Hops)),
		zap.Bool("exact_in", cfg.AmountIn != nil),
	)

	parts := make([]string, len(amounts))
	for i, a := range amounts {
		parts[i] = amm.Dec(a)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " -> "))
	return err
}

// quoteHops returns the amount at every step of the path, input first.
func quoteHops(cfg config.QuoteConfig) ([]*uint256.Int, error) {
	amounts := make([]*uint256.Int, len(cfg.Hops)+1)
	if cfg.AmountIn != nil {
		amounts[0] = cfg.AmountIn
		for i, hop := range cfg.Hops {
			out, err := amm.GetAmountOut(amounts[i], hop.ReserveIn, hop.ReserveOut)
			if err != nil {
				return nil, fmt.Errorf("hop %d: %w", i, err)
			}
			amounts[i+1] = out
		}
		return amounts, nil
	}

	amounts[len(amounts)-1] = cfg.AmountOut
	for i := len(cfg.Hops) - 1; i >= 0; i-- {
		in, err := amm.GetAmountIn(amounts[i+1], cfg.Hops[i].ReserveIn, cfg.Hops[i].ReserveOut)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amounts[i] = in
	}
	return amounts, nil
}
