package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"sojoswap/internal/model"
	"sojoswap/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Sink receives pair snapshots and window metrics.
type Sink interface {
	UpsertPairs(ctx context.Context, pairs []model.PairSnapshot) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PairWindowMetrics) error
}

// Summary counts what a run consumed and produced.
type Summary struct {
	Total   int
	Windows int
	Pairs   int // distinct pairs written
	Skipped int
	Failed  int
}

// Aggregator folds typed pair events into per-pair window metrics. Records
// must arrive in chain order.
type Aggregator struct {
	cfg          Config
	sink         Sink
	lookup       DecimalsLookup
	logger       *zap.Logger
	decimals     *TokenDecimalsCache
	accumulators map[string]*Accumulator
	carried      map[string]*reserves
	pairSeen     map[string]model.PairSnapshot
}

func NewAggregator(cfg Config, sink Sink, lookup DecimalsLookup, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		lookup:       lookup,
		logger:       logger,
		decimals:     NewTokenDecimalsCache(),
		accumulators: make(map[string]*Accumulator),
		carried:      make(map[string]*reserves),
		pairSeen:     make(map[string]model.PairSnapshot),
	}
}

// RunFile aggregates a typed events JSONL file.
func (a *Aggregator) RunFile(ctx context.Context, inputPath string) (Summary, error) {
	records, err := storage.ReadTypedEvents(inputPath)
	if err != nil {
		return Summary{}, err
	}
	return a.Run(ctx, records)
}

// Run aggregates records and flushes every window to the sink.
func (a *Aggregator) Run(ctx context.Context, records []model.TypedEventRecord) (Summary, error) {
	var summary Summary
	if a.sink == nil {
		return summary, fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return summary, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return summary, err
	}

	batch := make([]model.PairWindowMetrics, 0, a.cfg.BatchSize)
	pairs := make([]model.PairSnapshot, 0, 64)
	maxTs := startTs
	var prev *model.TypedEventRecord
	written := make(map[string]struct{})

	for i := range records {
		record := records[i]
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}
		summary.Total++

		if prev != nil && !prev.Before(record) {
			summary.Failed++
			a.logger.Warn("record out of chain order",
				zap.Uint64("block", record.BlockNumber),
				zap.Uint64("log_index", record.LogIndex),
				zap.String("tx", record.TxHash),
			)
			continue
		}
		prev = &records[i]

		if record.Timestamp <= startTs {
			summary.Skipped++
			continue
		}

		if strings.EqualFold(record.EventName, "PairCreated") {
			snapshot, err := a.registerCreated(record)
			if err != nil {
				summary.Failed++
				a.logger.Warn("aggregate pair created", zap.Error(err), zap.String("tx", record.TxHash))
				continue
			}
			if snapshot != nil {
				pairs = append(pairs, *snapshot)
			}
			continue
		}

		start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		end := start + a.cfg.WindowSeconds

		key := pairKey(record.Address)
		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != start {
			metrics, pair, err := a.flushAccumulator(ctx, acc)
			if err != nil {
				return summary, err
			}
			batch = appendMetrics(batch, metrics, &summary)
			pairs = appendPair(pairs, pair)
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record, start, end, a.carried[key])
			a.accumulators[key] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			summary.Failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pair", record.Address), zap.String("event", record.EventName))
			continue
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pairs); err != nil {
				return summary, err
			}
			countPairs(written, pairs, &summary)
			batch = batch[:0]
			pairs = pairs[:0]

			if err := a.saveState(ctx); err != nil {
				return summary, err
			}
		}
	}

	for _, key := range sortedKeys(a.accumulators) {
		metrics, pair, err := a.flushAccumulator(ctx, a.accumulators[key])
		if err != nil {
			return summary, err
		}
		batch = appendMetrics(batch, metrics, &summary)
		pairs = appendPair(pairs, pair)
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pairs) > 0 {
		if err := a.flushBatches(ctx, batch, pairs); err != nil {
			return summary, err
		}
		countPairs(written, pairs, &summary)
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return summary, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", summary.Total),
		zap.Int("windows", summary.Windows),
		zap.Int("pairs", summary.Pairs),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

func appendMetrics(batch []model.PairWindowMetrics, metrics *model.PairWindowMetrics, summary *Summary) []model.PairWindowMetrics {
	if metrics == nil {
		return batch
	}
	summary.Windows++
	return append(batch, *metrics)
}

// countPairs records the distinct pair addresses written so far.
func countPairs(written map[string]struct{}, pairs []model.PairSnapshot, summary *Summary) {
	for _, p := range pairs {
		written[pairKey(p.Address)] = struct{}{}
	}
	summary.Pairs = len(written)
}

func appendPair(pairs []model.PairSnapshot, pair *model.PairSnapshot) []model.PairSnapshot {
	if pair == nil {
		return pairs
	}
	return append(pairs, *pair)
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the newest timestamp whose windows are all closed.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PairWindowMetrics, pairs []model.PairSnapshot) error {
	if len(pairs) > 0 {
		if err := a.sink.UpsertPairs(ctx, pairs); err != nil {
			return fmt.Errorf("upsert pairs: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PairWindowMetrics, *model.PairSnapshot, error) {
	if acc == nil {
		return nil, nil, nil
	}
	key := pairKey(acc.PairAddress)
	if carried := acc.carry(); carried != nil {
		a.carried[key] = carried
	}

	meta := acc.PairMeta
	if meta.Token0 == "" || meta.Token1 == "" {
		a.logger.Warn("missing pair meta", zap.String("pair", acc.PairAddress))
		return nil, nil, nil
	}

	decimals0, err := a.getTokenDecimals(ctx, meta.Token0)
	if err != nil {
		a.logger.Warn("token0 decimals", zap.String("token", meta.Token0), zap.Error(err))
		decimals0 = DefaultDecimals
	}
	decimals1, err := a.getTokenDecimals(ctx, meta.Token1)
	if err != nil {
		a.logger.Warn("token1 decimals", zap.String("token", meta.Token1), zap.Error(err))
		decimals1 = DefaultDecimals
	}

	feeRate0, feeRate1 := computeFeeRates(acc.Fee0, acc.Fee1, acc.Reserve0, acc.Reserve1)

	metrics := &model.PairWindowMetrics{
		ChainID:        acc.ChainID,
		PairAddress:    acc.PairAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		MintCount:      acc.MintCount,
		BurnCount:      acc.BurnCount,
		Volume0:        formatTokenAmount(acc.Volume0, decimals0),
		Volume1:        formatTokenAmount(acc.Volume1, decimals1),
		Fee0:           formatTokenAmount(acc.Fee0, decimals0),
		Fee1:           formatTokenAmount(acc.Fee1, decimals1),
		Reserve0:       formatOptional(acc.Reserve0, decimals0),
		Reserve1:       formatOptional(acc.Reserve1, decimals1),
		Price0:         computePrice(acc.Reserve0, acc.Reserve1, decimals0, decimals1),
		FeeRate0:       feeRate0,
		FeeRate1:       feeRate1,
		APR:            computeAPR(feeRate0, feeRate1, a.cfg.WindowSeconds),
	}

	return metrics, a.updatePair(acc), nil
}

// registerCreated records a pair from its factory PairCreated event.
func (a *Aggregator) registerCreated(record model.TypedEventRecord) (*model.PairSnapshot, error) {
	var created model.PairCreatedEventData
	if err := json.Unmarshal(record.Decoded, &created); err != nil {
		return nil, fmt.Errorf("decode pair created: %w", err)
	}
	key := pairKey(created.Pair)
	if existing, ok := a.pairSeen[key]; ok && existing.FirstSeenBlock <= record.BlockNumber {
		return nil, nil
	}
	snapshot := model.PairSnapshot{
		ChainID:        record.ChainID,
		Address:        created.Pair,
		Token0:         created.Token0,
		Token1:         created.Token1,
		Reserve0:       "0",
		Reserve1:       "0",
		FirstSeenBlock: record.BlockNumber,
	}
	a.pairSeen[key] = snapshot
	return &snapshot, nil
}

// updatePair returns the pair's snapshot when the window moved its reserves
// or revealed an earlier first block.
func (a *Aggregator) updatePair(acc *Accumulator) *model.PairSnapshot {
	key := pairKey(acc.PairAddress)
	pair, ok := a.pairSeen[key]
	if !ok {
		pair = model.PairSnapshot{
			ChainID:        acc.ChainID,
			Address:        acc.PairAddress,
			Token0:         acc.PairMeta.Token0,
			Token1:         acc.PairMeta.Token1,
			Reserve0:       "0",
			Reserve1:       "0",
			FirstSeenBlock: acc.FirstBlock,
		}
	}
	changed := !ok
	if acc.FirstBlock < pair.FirstSeenBlock {
		pair.FirstSeenBlock = acc.FirstBlock
		changed = true
	}
	if acc.Reserve0 != nil && acc.SyncBlock > pair.LastSyncBlock {
		pair.Reserve0 = acc.Reserve0.String()
		pair.Reserve1 = acc.Reserve1.String()
		pair.LastSyncBlock = acc.SyncBlock
		changed = true
	}
	if !changed {
		return nil
	}
	a.pairSeen[key] = pair
	return &pair
}

func (a *Aggregator) getTokenDecimals(ctx context.Context, token string) (uint8, error) {
	if !common.IsHexAddress(token) {
		return 0, fmt.Errorf("invalid token address: %s", token)
	}
	addr := common.HexToAddress(token)
	if decimals, ok := a.decimals.Get(addr); ok {
		return decimals, nil
	}
	decimals, err := FetchTokenDecimals(ctx, a.lookup, addr)
	if err != nil {
		return 0, err
	}
	a.decimals.Set(addr, decimals)
	return decimals, nil
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func pairKey(address string) string {
	return strings.ToLower(address)
}

func sortedKeys(acc map[string]*Accumulator) []string {
	keys := make([]string, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
