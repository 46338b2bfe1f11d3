package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sojoswap/internal/model"
)

func TestJsonlEventsReadBack(t *testing.T) {
	dir := t.TempDir()
	sink := NewJsonlEventStorage(filepath.Join(dir, "events.jsonl"), "")
	events := []model.TypedEvent{
		{BlockNumber: 3, TxIndex: 0, LogIndex: 1, EventName: "Sync", Decoded: map[string]string{"reserve0": "10"}},
		{BlockNumber: 4, TxIndex: 1, LogIndex: 0, EventName: "Swap"},
	}
	require.NoError(t, sink.PutEventBatch(events[:1]))
	require.NoError(t, sink.PutEventBatch(events[1:]))
	require.NoError(t, sink.PutDecodeErrors([]model.DecodeError{{Error: "ignored"}}))

	got, err := ReadTypedEvents(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Sync", got[0].EventName)
	require.JSONEq(t, `{"reserve0":"10"}`, string(got[0].Decoded))
	require.True(t, got[0].Before(got[1]))
}

func TestReadTypedEventsReportsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n\nnot json\n"), 0o644))
	_, err := ReadTypedEvents(path)
	require.ErrorContains(t, err, "line 3")
}

func TestWriteTokensReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tokens.jsonl")
	require.NoError(t, WriteTokens(path, []model.TokenMeta{{Symbol: "OLD"}}))
	want := []model.TokenMeta{
		{Address: "0x01", Decimals: 6, Symbol: "SUSD"},
		{Address: "0x02", Decimals: 18, Symbol: "DFL", FeeOnTransfer: true},
	}
	require.NoError(t, WriteTokens(path, want))

	got, err := ReadTokens(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cp.json")
	var v struct{ Block uint64 }

	ok, err := ReadJSONFile(path, &v)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, WriteJSONFile(path, struct{ Block uint64 }{42}))
	ok, err = ReadJSONFile(path, &v)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, v.Block)
	require.NoFileExists(t, path+".tmp")

	_, err = ReadJSONFile(filepath.Dir(path), &v)
	require.ErrorContains(t, err, "is a directory")
}

func TestMemoryUpsertsByKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.UpsertPairs(ctx, []model.PairSnapshot{{ChainID: 1, Address: "0xABC", Reserve0: "1"}}))
	require.NoError(t, m.UpsertPairs(ctx, []model.PairSnapshot{{ChainID: 1, Address: "0xabc", Reserve0: "2"}}))
	p, ok := m.Pair(1, "0xAbC")
	require.True(t, ok)
	require.Equal(t, "2", p.Reserve0)

	start := time.Unix(3600, 0).UTC()
	w := model.PairWindowMetrics{ChainID: 1, PairAddress: "0xabc", WindowSizeSecs: 3600, WindowStart: start, SwapCount: 1}
	later := w
	later.WindowStart = start.Add(time.Hour)
	require.NoError(t, m.UpsertWindowMetrics(ctx, []model.PairWindowMetrics{w, later}))
	w.SwapCount = 5
	require.NoError(t, m.UpsertWindowMetrics(ctx, []model.PairWindowMetrics{w}))

	got := m.WindowMetrics()
	require.Len(t, got, 2)
	require.EqualValues(t, 5, got[0].SwapCount)
	require.Equal(t, later.WindowStart, got[1].WindowStart)
}

func TestMemoryRecordsEncodePayload(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.PutEventBatch([]model.TypedEvent{{EventName: "Mint", Decoded: map[string]int{"x": 1}}}))
	recs, err := m.Records()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.JSONEq(t, `{"x":1}`, string(recs[0].Decoded))

	require.NoError(t, m.PutEventBatch([]model.TypedEvent{{EventName: "Bad", Decoded: make(chan int)}}))
	_, err = m.Records()
	require.Error(t, err)
}
