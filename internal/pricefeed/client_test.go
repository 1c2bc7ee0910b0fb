package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func newTestFeed(t *testing.T, handler http.HandlerFunc) *HTTPFeed {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.GasURL = srv.URL
	cfg.PriceURL = srv.URL
	cfg.PoolURL = srv.URL
	cfg.RatePerSec = 1000
	return New(cfg)
}

func TestGetSuggestedGasFees(t *testing.T) {
	f := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/networks/1/suggestedGasFees" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"low": {"suggestedMaxPriorityFeePerGas": "0.05", "suggestedMaxFeePerGas": "16.6", "minWaitTimeEstimate": 15000, "maxWaitTimeEstimate": 30000},
			"medium": {"suggestedMaxPriorityFeePerGas": "0.1", "suggestedMaxFeePerGas": "22.5", "minWaitTimeEstimate": 15000, "maxWaitTimeEstimate": 45000},
			"high": {"suggestedMaxPriorityFeePerGas": "0.3", "suggestedMaxFeePerGas": "28", "minWaitTimeEstimate": 15000, "maxWaitTimeEstimate": 60000},
			"estimatedBaseFee": "16.5"
		}`))
	})

	fees, err := f.GetSuggestedGasFees(context.Background())
	if err != nil {
		t.Fatalf("GetSuggestedGasFees() error = %v", err)
	}
	if fees.Medium.MaxFeePerGas != 22.5 || fees.High.MaxPriorityFeePerGas != 0.3 {
		t.Errorf("fees = %+v", fees)
	}
	if fees.Low.MaxWait() != 30*time.Second {
		t.Errorf("Low.MaxWait() = %v, want 30s", fees.Low.MaxWait())
	}
	if fees.EstimatedBaseFee != 16.5 {
		t.Errorf("EstimatedBaseFee = %v", fees.EstimatedBaseFee)
	}
}

func TestGetTokenValues_Caches(t *testing.T) {
	var hits atomic.Int32
	f := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.URL.Query().Get("ids"); got != "ethereum,vultisig" {
			t.Errorf("ids = %q", got)
		}
		w.Write([]byte(`{"ethereum": {"usd": 2000.5}, "vultisig": {"usd": 0.42}}`))
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		values, err := f.GetTokenValues(ctx, []string{"vultisig", "ethereum", ""}, "USD")
		if err != nil {
			t.Fatalf("GetTokenValues() error = %v", err)
		}
		if values["ethereum"] != 2000.5 || values["vultisig"] != 0.42 {
			t.Errorf("values = %v", values)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream request, got %d", hits.Load())
	}
}

func TestGetPoolVolume24h(t *testing.T) {
	pool := common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")
	f := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/networks/eth/pools/0x8ad599c3a0ff1de082011efddc58f1908eb6e6d8" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"data": {"attributes": {"volume_usd": {"h24": "1234567.89"}}}}`))
	})

	v, err := f.GetPoolVolume24h(context.Background(), pool)
	if err != nil || v != 1234567.89 {
		t.Errorf("GetPoolVolume24h() = %v, %v", v, err)
	}
}

func TestGetHistoricalPrices(t *testing.T) {
	f := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("days") != "7" {
			t.Errorf("days = %s", r.URL.Query().Get("days"))
		}
		w.Write([]byte(`{"prices": [[1700000000000, 1.5], [1700003600000, 1.6]]}`))
	})

	points, err := f.GetHistoricalPrices(context.Background(), common.HexToAddress("0x01"), 7)
	if err != nil {
		t.Fatalf("GetHistoricalPrices() error = %v", err)
	}
	if len(points) != 2 || points[1].Price != 1.6 {
		t.Fatalf("points = %+v", points)
	}
	if !points[0].Time.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Time = %v", points[0].Time)
	}
}

func TestStatusError(t *testing.T) {
	f := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := f.GetTokenValues(context.Background(), []string{"ethereum"}, "usd")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Errorf("error = %v, want StatusError 429", err)
	}
}
