// Package metrics exposes Prometheus instrumentation for quoting and trade execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics for the swap core.
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	// Counters
	QuotesTotal    *prometheus.CounterVec
	ApprovalsTotal *prometheus.CounterVec
	SwapsTotal     *prometheus.CounterVec
	MintsTotal     *prometheus.CounterVec
	TxResolved     *prometheus.CounterVec

	// Gauges
	TrackedTxs prometheus.Gauge

	// Histograms
	QuoteLatency *prometheus.HistogramVec
	RPCLatency   *prometheus.HistogramVec
	PriceImpact  prometheus.Histogram
	ConfirmTime  *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		QuotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapcore_quotes_total",
				Help: "Quote requests by outcome",
			},
			[]string{"status"},
		),

		ApprovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapcore_approvals_total",
				Help: "Approval submissions by outcome",
			},
			[]string{"status"},
		),

		SwapsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapcore_swaps_total",
				Help: "Swap submissions by outcome and whether the output is unwrapped to native",
			},
			[]string{"status", "unwrap"},
		),

		MintsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapcore_mints_total",
				Help: "Liquidity mint attempts by terminal state",
			},
			[]string{"state"},
		),

		TxResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapcore_transactions_resolved_total",
				Help: "Tracked transactions by resolved status",
			},
			[]string{"status"},
		),

		TrackedTxs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "swapcore_tracked_transactions",
				Help: "Transactions currently being polled",
			},
		),

		QuoteLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapcore_quote_latency_seconds",
				Help:    "On-chain quote latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"status"},
		),

		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapcore_rpc_latency_seconds",
				Help:    "RPC call latency by method",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "status"},
		),

		PriceImpact: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swapcore_price_impact_percent",
				Help:    "Estimated price impact of quoted trades",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 25},
			},
		),

		ConfirmTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapcore_confirmation_seconds",
				Help:    "Time from tracking start to receipt",
				Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 180},
			},
			[]string{"status"},
		),
	}
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordQuote records a quote outcome and its latency.
func (m *PrometheusMetrics) RecordQuote(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(status).Inc()
	m.QuoteLatency.WithLabelValues(status).Observe(d.Seconds())
}

// RecordApproval records an approval submission.
func (m *PrometheusMetrics) RecordApproval(ok bool) {
	if m == nil {
		return
	}
	m.ApprovalsTotal.WithLabelValues(statusLabel(ok)).Inc()
}

// RecordSwap records a swap submission.
func (m *PrometheusMetrics) RecordSwap(ok, unwrap bool) {
	if m == nil {
		return
	}
	u := "false"
	if unwrap {
		u = "true"
	}
	m.SwapsTotal.WithLabelValues(statusLabel(ok), u).Inc()
}

// RecordMint records a mint attempt reaching a terminal state.
func (m *PrometheusMetrics) RecordMint(state string) {
	if m == nil {
		return
	}
	m.MintsTotal.WithLabelValues(state).Inc()
}

// RecordPriceImpact records an impact estimate in percent.
func (m *PrometheusMetrics) RecordPriceImpact(pct float64) {
	if m == nil {
		return
	}
	m.PriceImpact.Observe(pct)
}

// RecordTxResolved records a tracked transaction leaving pending.
func (m *PrometheusMetrics) RecordTxResolved(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TxResolved.WithLabelValues(status).Inc()
	m.ConfirmTime.WithLabelValues(status).Observe(elapsed.Seconds())
}

// SetTrackedTxs updates the tracked transactions gauge.
func (m *PrometheusMetrics) SetTrackedTxs(n int) {
	if m == nil {
		return
	}
	m.TrackedTxs.Set(float64(n))
}

// knownRPCMethods is a fixed set of known RPC methods to prevent cardinality explosion
var knownRPCMethods = map[string]bool{
	"eth_call":                  true,
	"eth_chainId":               true,
	"eth_estimateGas":           true,
	"eth_getBalance":            true,
	"eth_getBlockByNumber":      true,
	"eth_getCode":               true,
	"eth_getTransactionCount":   true,
	"eth_getTransactionReceipt": true,
	"eth_maxPriorityFeePerGas":  true,
	"eth_sendRawTransaction":    true,
	"batch":                     true,
}

// RecordRPCLatency records RPC call latency.
func (m *PrometheusMetrics) RecordRPCLatency(method string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	// Bucket unknown methods into 'other' to prevent cardinality explosion
	bucketedMethod := method
	if !knownRPCMethods[method] {
		bucketedMethod = "other"
	}
	m.RPCLatency.WithLabelValues(bucketedMethod, statusLabel(success)).Observe(d.Seconds())
}
