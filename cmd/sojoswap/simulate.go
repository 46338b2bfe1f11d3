package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sojoswap/internal/aggregate"
	"sojoswap/internal/amm"
	"sojoswap/internal/config"
	"sojoswap/internal/dex"
	"sojoswap/internal/indexer"
	"sojoswap/internal/metrics"
	"sojoswap/internal/model"
	"sojoswap/internal/sim"
	"sojoswap/internal/storage"
	"sojoswap/internal/storage/postgres"
)

const (
	logsFile   = "logs.jsonl"
	eventsFile = "typed_events.jsonl"
	errorsFile = "decode_errors.jsonl"
	tokensFile = "tokens.jsonl"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	windowSeconds, err := config.ParseWindow(cfg.Window)
	if err != nil {
		return err
	}
	blockInterval := uint64(cfg.BlockInterval / time.Second)
	if blockInterval == 0 {
		return fmt.Errorf("block interval must be at least 1s")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routerMetrics := metrics.New()
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, routerMetrics, logger)
		defer shutdown()
	}

	logger.Info("simulate start",
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Int("swaps", cfg.Swaps),
		zap.Int64("seed", cfg.Seed),
		zap.Uint64("tax_bps", cfg.TaxBasisPoints),
		zap.Uint64("block_interval", blockInterval),
		zap.String("out", cfg.OutDir),
	)

	simCfg := sim.Config{
		ChainID:        cfg.ChainID,
		StartTime:      cfg.StartTime,
		TaxBasisPoints: cfg.TaxBasisPoints,
		Swaps:          cfg.Swaps,
		BlockInterval:  blockInterval,
		Metrics:        routerMetrics,
		Logger:         logger.Named("sim"),
	}
	deployment, err := sim.Deploy(simCfg)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	result, err := deployment.Run(ctx, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	paths, err := prepareOutputs(cfg)
	if err != nil {
		return err
	}
	tokens := deployment.Tokens()
	if err := storage.WriteTokens(paths[tokensFile], tokens); err != nil {
		return err
	}

	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	topics, err := indexer.ParseTopic0(cfg.Topics)
	if err != nil {
		return err
	}
	decoder, err := dex.NewPairDecoder(dex.DecoderConfig{})
	if err != nil {
		return err
	}
	runner := indexer.NewRunner(indexer.RunConfig{
		Source:            sim.RunID(simCfg, cfg.Seed),
		FromBlock:         1,
		Addresses:         addresses,
		Topic0:            topics,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, deployment.Host, storage.NewJsonlStorage(paths[logsFile]), logger.Named("indexer"),
		indexer.WithEvents(decoder, storage.NewJsonlEventStorage(paths[eventsFile], paths[errorsFile])),
	)
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	stats := runner.Stats()
	logger.Info("export done",
		zap.Int("logs", stats.Logs),
		zap.Int("decoded", stats.Decoded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)

	lookup := dex.NewTokenMetaCache().SetAll(tokens)
	summary, windows, err := aggregateEvents(ctx, cfg, windowSeconds, paths[eventsFile], lookup, logger)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	pairNames := make(map[common.Address]string)
	for _, p := range deployment.Factory.Pairs() {
		pairNames[p.Address()] = lookup.Symbol(p.Token0().Address()) + "/" + lookup.Symbol(p.Token1().Address())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "calls=%d failed=%d liquidity=%d tax_native=%s tax_wrapped=%s\n",
		result.Calls, result.Failed, result.Liquidity, amm.Dec(result.TaxNative), amm.Dec(result.TaxWrapped))
	fmt.Fprintf(out, "logs=%d events=%d windows=%d pairs=%d\n", stats.Logs, stats.Decoded, summary.Windows, summary.Pairs)
	for _, w := range windows {
		fmt.Fprintf(out, "%s %s swaps=%d volume0=%s volume1=%s apr=%s\n",
			pairNames[common.HexToAddress(w.PairAddress)], w.WindowStart.UTC().Format(time.RFC3339),
			w.SwapCount, w.Volume0, w.Volume1, optional(w.APR))
	}
	return nil
}

// prepareOutputs creates the output directory. Without checkpointing a run
// starts from block 1, so files from earlier runs are removed. With it, the
// exporter resumes only a checkpoint written under the same sim.RunID.
func prepareOutputs(cfg config.SimulateConfig) (map[string]string, error) {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make(map[string]string)
	for _, name := range []string{logsFile, eventsFile, errorsFile, tokensFile} {
		paths[name] = filepath.Join(cfg.OutDir, name)
		if cfg.CheckpointEnabled {
			continue
		}
		if err := os.Remove(paths[name]); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reset %s: %w", name, err)
		}
	}
	return paths, nil
}

// aggregateEvents writes window metrics to Postgres when a DSN is set and
// keeps them in memory otherwise.
func aggregateEvents(ctx context.Context, cfg config.SimulateConfig, windowSeconds uint64, eventsPath string, lookup aggregate.DecimalsLookup, logger *zap.Logger) (aggregate.Summary, []model.PairWindowMetrics, error) {
	aggCfg := aggregate.Config{WindowSeconds: windowSeconds, BatchSize: int(cfg.BatchSize)}

	if cfg.PGDSN == "" {
		mem := storage.NewMemory()
		summary, err := aggregate.NewAggregator(aggCfg, mem, lookup, logger.Named("aggregate")).RunFile(ctx, eventsPath)
		return summary, mem.WindowMetrics(), err
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return aggregate.Summary{}, nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return aggregate.Summary{}, nil, err
	}
	aggCfg.StateStore = &aggregate.DBStateStore{Store: store, Name: aggregate.StateName(windowSeconds)}
	logger.Info("aggregate to postgres", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	summary, err := aggregate.NewAggregator(aggCfg, store, lookup, logger.Named("aggregate")).RunFile(ctx, eventsPath)
	return summary, nil, err
}

func serveMetrics(addr string, m *metrics.RouterMetrics, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func optional(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}
