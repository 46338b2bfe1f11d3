package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"sojoswap/internal/dex"
	"sojoswap/internal/model"
	"sojoswap/internal/storage"
)

// LogSource is the read side of a chain the runner exports from.
type LogSource interface {
	ChainID() *big.Int
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// RunConfig holds runtime settings for the exporter. An empty address list
// exports every contract. Source identifies the chain instance; a
// checkpoint written for another source is rejected.
type RunConfig struct {
	Source            string
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Stats counts what a run exported.
type Stats struct {
	Logs       int
	Duplicates int
	Decoded    int
	Skipped    int
	Failed     int
}

// Runner streams logs from a LogSource into storage and, when an event sink
// is set, decodes pair and factory events along the way.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	storage    storage.Storage
	events     storage.EventStorage
	decoder    dex.Decoder
	decodeCtx  dex.DecodeContext
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
	stats      Stats
}

// Option customizes a Runner.
type Option func(*Runner)

// WithEvents decodes logs with decoder and writes the results to sink.
func WithEvents(decoder dex.Decoder, sink storage.EventStorage) Option {
	return func(r *Runner) {
		r.decoder = decoder
		r.events = sink
	}
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source LogSource, storageSink storage.Storage, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:        cfg,
		source:     source,
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.decodeCtx = dex.DecodeContext{PairMetaCache: dex.NewPairMetaCache(), Logger: logger}
	return r
}

// RegisterPair seeds the decoder with a pair whose PairCreated event lies
// before the exported range.
func (r *Runner) RegisterPair(pair common.Address, meta model.PairMeta) {
	r.decodeCtx.PairMetaCache.Set(pair, meta)
}

// Stats returns the counters accumulated so far.
func (r *Runner) Stats() Stats {
	return r.stats
}

// Run executes the export loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.events != nil && r.decoder == nil {
		return fmt.Errorf("event sink requires a decoder")
	}

	chainID := r.source.ChainID()
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok {
		if cp.ChainID != 0 && cp.ChainID != chainIDValue {
			return fmt.Errorf("checkpoint belongs to chain %d, source is chain %d", cp.ChainID, chainIDValue)
		}
		if cp.Source != r.cfg.Source {
			return fmt.Errorf("checkpoint belongs to source %q, not %q", cp.Source, r.cfg.Source)
		}
		if cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to export", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	clock := newBlockClock(r.blockTimestampWithRetry)
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logs, err := r.filterLogsWithRetry(ctx, blockRange)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := time.Now().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			ts, err := clock.timestamp(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			record := buildLogRecord(chainIDValue, log, ts, ingestedAt)
			if _, dup := r.seen[record.Key()]; dup {
				r.stats.Duplicates++
				continue
			}
			r.seen[record.Key()] = struct{}{}
			records = append(records, record)
		}

		if err := r.storage.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}
		r.stats.Logs += len(records)

		if err := r.decodeBatch(records); err != nil {
			return err
		}

		if err := r.checkpoint.Save(chainIDValue, r.cfg.Source, blockRange.To); err != nil {
			return err
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

func (r *Runner) decodeBatch(records []model.LogRecord) error {
	if r.events == nil {
		return nil
	}

	events := make([]model.TypedEvent, 0, len(records))
	var failures []model.DecodeError
	for _, record := range records {
		if !r.decoder.CanDecode(record.Topic0()) {
			r.stats.Skipped++
			continue
		}
		event, err := r.decoder.Decode(record, r.decodeCtx)
		if err != nil {
			r.stats.Failed++
			failures = append(failures, model.NewDecodeError(record, err))
			r.logger.Warn("decode failed", zap.String("tx", record.TxHash), zap.Uint64("log_index", record.LogIndex), zap.Error(err))
			continue
		}
		events = append(events, *event)
	}

	if err := r.events.PutEventBatch(events); err != nil {
		return fmt.Errorf("store events: %w", err)
	}
	if err := r.events.PutDecodeErrors(failures); err != nil {
		return fmt.Errorf("store decode errors: %w", err)
	}
	r.stats.Decoded += len(events)
	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, blockRange BlockRange) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(blockRange.From),
		ToBlock:   new(big.Int).SetUint64(blockRange.To),
		Addresses: r.cfg.Addresses,
	}
	if len(r.cfg.Topic0) > 0 {
		query.Topics = [][]common.Hash{r.cfg.Topic0}
	}

	var logs []types.Log
	err := withRetry(ctx, r.retryPolicy("filter logs"), func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

func (r *Runner) retryPolicy(op string) retryPolicy {
	return retryPolicy{
		maxRetries: r.cfg.MaxRetries,
		baseDelay:  r.cfg.RetryBackoff,
		onRetry: func(attempt int, delay time.Duration, err error) {
			r.logger.Warn(op+" failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
		},
	}
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.retryPolicy("block timestamp"), func(ctx context.Context) error {
		var err error
		ts, err = r.source.BlockTimestamp(ctx, blockNumber)
		return err
	})
	return ts, err
}
