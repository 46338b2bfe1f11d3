// Package metrics exposes Prometheus counters for router activity.
package metrics

import (
	"errors"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"sojoswap/internal/amm"
)

// RouterMetrics holds the router's collectors. Each instance registers on
// its own registry so several hosts can run in one process.
type RouterMetrics struct {
	Registry *prometheus.Registry

	CallsTotal      *prometheus.CounterVec
	FailuresTotal   *prometheus.CounterVec
	CallLatency     *prometheus.HistogramVec
	TaxCollected    *prometheus.CounterVec
	LiquidityEvents *prometheus.CounterVec
	PathLength      prometheus.Histogram
}

// New creates and registers router metrics on a fresh registry.
func New() *RouterMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &RouterMetrics{
		Registry: reg,
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sojoswap",
				Subsystem: "router",
				Name:      "calls_total",
				Help:      "Router entrypoint calls by outcome",
			},
			[]string{"entrypoint", "status"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sojoswap",
				Subsystem: "router",
				Name:      "failures_total",
				Help:      "Failed router calls by error kind",
			},
			[]string{"entrypoint", "reason"},
		),
		CallLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sojoswap",
				Subsystem: "router",
				Name:      "call_latency_seconds",
				Help:      "Router call latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
			[]string{"entrypoint"},
		),
		TaxCollected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sojoswap",
				Subsystem: "fee",
				Name:      "tax_collected_total",
				Help:      "Tax forwarded to the treasury in base units",
			},
			[]string{"asset"},
		),
		LiquidityEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sojoswap",
				Subsystem: "router",
				Name:      "liquidity_events_total",
				Help:      "Liquidity additions and removals",
			},
			[]string{"kind"},
		),
		PathLength: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sojoswap",
				Subsystem: "router",
				Name:      "path_length",
				Help:      "Number of assets in swap paths",
				Buckets:   []float64{2, 3, 4, 5, 8},
			},
		),
	}
}

// Observe records the outcome of one entrypoint call. A nil receiver is a
// no-op.
func (m *RouterMetrics) Observe(entrypoint string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.CallLatency.WithLabelValues(entrypoint).Observe(time.Since(started).Seconds())
	if err != nil {
		m.CallsTotal.WithLabelValues(entrypoint, "failed").Inc()
		m.FailuresTotal.WithLabelValues(entrypoint, Reason(err)).Inc()
		return
	}
	m.CallsTotal.WithLabelValues(entrypoint, "success").Inc()
}

func (m *RouterMetrics) ObservePath(length int) {
	if m == nil {
		return
	}
	m.PathLength.Observe(float64(length))
}

// AddTax counts tax in base units. Amounts beyond float64 precision are
// approximated.
func (m *RouterMetrics) AddTax(asset string, amount *uint256.Int) {
	if m == nil || amount == nil || amount.IsZero() {
		return
	}
	m.TaxCollected.WithLabelValues(asset).Add(decimal.NewFromBigInt(amount.ToBig(), 0).InexactFloat64())
}

func (m *RouterMetrics) Liquidity(kind string) {
	if m == nil {
		return
	}
	m.LiquidityEvents.WithLabelValues(kind).Inc()
}

var reasons = []struct {
	err  error
	name string
}{
	{amm.ErrExpired, "expired"},
	{amm.ErrInvalidPath, "invalid_path"},
	{amm.ErrReentrant, "reentrant"},
	{amm.ErrKInvariantViolated, "k_invariant"},
	{amm.ErrInsufficientOutputAmount, "insufficient_output"},
	{amm.ErrExcessiveInputAmount, "excessive_input"},
	{amm.ErrInsufficientInputAmount, "insufficient_input"},
	{amm.ErrInsufficientLiquidity, "insufficient_liquidity"},
	{amm.ErrInsufficientAAmount, "insufficient_a"},
	{amm.ErrInsufficientBAmount, "insufficient_b"},
	{amm.ErrInsufficientLiquidityMinted, "liquidity_minted"},
	{amm.ErrInsufficientLiquidityBurned, "liquidity_burned"},
	{amm.ErrInvalidSignature, "invalid_signature"},
	{amm.ErrInsufficientValue, "insufficient_value"},
	{amm.ErrTransferFailed, "transfer_failed"},
}

// Reason maps an error to a low-cardinality label.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.name
		}
	}
	return "other"
}
