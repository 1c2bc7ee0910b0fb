package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *PrometheusMetrics
	m.RecordQuote("success", time.Second)
	m.RecordApproval(true)
	m.RecordSwap(true, false)
	m.RecordMint("confirmed")
	m.RecordPriceImpact(1)
	m.RecordTxResolved("success", time.Second)
	m.SetTrackedTxs(3)
	m.RecordRPCLatency("eth_call", true, time.Millisecond)
}

func TestCounters(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.RecordQuote("success", 100*time.Millisecond)
	m.RecordQuote("success", 200*time.Millisecond)
	m.RecordQuote("unavailable", time.Millisecond)
	m.RecordApproval(false)
	m.RecordSwap(true, true)
	m.RecordSwap(true, false)
	m.RecordMint("timed_out")
	m.RecordTxResolved("failed", 12*time.Second)
	m.SetTrackedTxs(4)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"quotes success", m.QuotesTotal.WithLabelValues("success"), 2},
		{"quotes unavailable", m.QuotesTotal.WithLabelValues("unavailable"), 1},
		{"approval errors", m.ApprovalsTotal.WithLabelValues("error"), 1},
		{"unwrapping swaps", m.SwapsTotal.WithLabelValues("success", "true"), 1},
		{"plain swaps", m.SwapsTotal.WithLabelValues("success", "false"), 1},
		{"mint timeouts", m.MintsTotal.WithLabelValues("timed_out"), 1},
		{"failed txs", m.TxResolved.WithLabelValues("failed"), 1},
		{"tracked", m.TrackedTxs, 4},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRecordRPCLatency_BucketsUnknownMethods(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.RecordRPCLatency("eth_call", true, 10*time.Millisecond)
	m.RecordRPCLatency("debug_traceTransaction", false, time.Second)
	m.RecordRPCLatency("admin_peers", false, time.Second)

	if n := testutil.CollectAndCount(m.RPCLatency); n != 2 {
		t.Errorf("RPC latency series = %d, want 2 (eth_call and other)", n)
	}
}
