package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "sojoswap",
		Short:        "Constant-product exchange simulator and analytics",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a multi-hop trade against explicit reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().StringSlice("reserves", nil, "reserveIn:reserveOut per hop, in path order")
	quoteCmd.Flags().String("amount-in", "", "exact input amount in base units")
	quoteCmd.Flags().String("amount-out", "", "exact output amount in base units")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Deploy an exchange, trade against it, export its logs and aggregate them",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().Uint64("chain-id", 31337, "chain id used in permit domains")
	simulateCmd.Flags().Uint64("start-time", 1_700_000_000, "timestamp of the first block")
	simulateCmd.Flags().Uint64("tax-bps", 100, "tax on the native asset in basis points")
	simulateCmd.Flags().Int("swaps", 50, "number of router calls to make")
	simulateCmd.Flags().Int64("seed", 1, "random seed")
	simulateCmd.Flags().Duration("block-interval", 12*time.Second, "time between blocks")
	simulateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	simulateCmd.Flags().String("out", "./data", "output directory for JSONL files")
	simulateCmd.Flags().StringSlice("addresses", nil, "export only logs from these contracts")
	simulateCmd.Flags().StringSlice("topics", nil, "export only these topic0 hashes or event names (e.g. Swap,Sync)")
	simulateCmd.Flags().Uint64("batch-size", 100, "blocks per export batch")
	simulateCmd.Flags().String("checkpoint", "", "export checkpoint file path")
	simulateCmd.Flags().Bool("checkpoint-enabled", false, "enable export checkpointing")
	simulateCmd.Flags().Int("max-retries", 3, "maximum retry attempts")
	simulateCmd.Flags().Duration("retry-backoff", 100*time.Millisecond, "initial retry backoff")
	simulateCmd.Flags().String("pg-dsn", "", "Postgres DSN; window metrics stay in memory when empty")
	simulateCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input typed events JSONL")
	aggregateCmd.Flags().String("tokens", "", "token metadata JSONL written by simulate; unknown tokens use 18 decimals")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
