package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sojoswap/internal/model"
)

// Memory keeps everything it receives in memory. It backs the simulate
// command when no database is configured. Pairs and window metrics are
// upserted by key like the Postgres store does.
type Memory struct {
	mu      sync.Mutex
	logs    []model.LogRecord
	events  []model.TypedEvent
	errs    []model.DecodeError
	pairs   map[string]model.PairSnapshot
	windows map[string]model.PairWindowMetrics
	order   []string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) PutLogBatch(logs []model.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *Memory) PutEventBatch(events []model.TypedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *Memory) PutDecodeErrors(errs []model.DecodeError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return nil
}

// Logs returns a copy of the stored log records.
func (m *Memory) Logs() []model.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.LogRecord(nil), m.logs...)
}

// Events returns a copy of the stored typed events.
func (m *Memory) Events() []model.TypedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TypedEvent(nil), m.events...)
}

// DecodeErrors returns a copy of the stored decode errors.
func (m *Memory) DecodeErrors() []model.DecodeError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DecodeError(nil), m.errs...)
}

// Records converts the stored events into the JSON form the aggregator
// consumes.
func (m *Memory) Records() ([]model.TypedEventRecord, error) {
	events := m.Events()
	out := make([]model.TypedEventRecord, 0, len(events))
	for _, ev := range events {
		rec, err := ev.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) UpsertPairs(_ context.Context, pairs []model.PairSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pairs == nil {
		m.pairs = make(map[string]model.PairSnapshot)
	}
	for _, p := range pairs {
		m.pairs[fmt.Sprintf("%d:%s", p.ChainID, strings.ToLower(p.Address))] = p
	}
	return nil
}

func (m *Memory) UpsertWindowMetrics(_ context.Context, metrics []model.PairWindowMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.windows == nil {
		m.windows = make(map[string]model.PairWindowMetrics)
	}
	for _, w := range metrics {
		key := fmt.Sprintf("%d:%s:%d:%d", w.ChainID, strings.ToLower(w.PairAddress), w.WindowSizeSecs, w.WindowStart.Unix())
		if _, ok := m.windows[key]; !ok {
			m.order = append(m.order, key)
		}
		m.windows[key] = w
	}
	return nil
}

// Pair returns the snapshot stored for a pair address.
func (m *Memory) Pair(chainID uint64, address string) (model.PairSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pairs[fmt.Sprintf("%d:%s", chainID, strings.ToLower(address))]
	return p, ok
}

// WindowMetrics returns stored window metrics in first-insert order.
func (m *Memory) WindowMetrics() []model.PairWindowMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PairWindowMetrics, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.windows[key])
	}
	return out
}
