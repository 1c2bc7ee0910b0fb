// Package pricefeed is a client for the off-chain gas, price and volume APIs.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gateway-fm/swapcore/internal/ratelimit"
)

// GasTier is one suggested fee level, fees in gwei.
type GasTier struct {
	MaxFeePerGas         float64 `json:"suggestedMaxFeePerGas,string"`
	MaxPriorityFeePerGas float64 `json:"suggestedMaxPriorityFeePerGas,string"`
	MinWaitMs            int64   `json:"minWaitTimeEstimate"`
	MaxWaitMs            int64   `json:"maxWaitTimeEstimate"`
}

// MinWait returns the lower wait-time estimate.
func (t GasTier) MinWait() time.Duration { return time.Duration(t.MinWaitMs) * time.Millisecond }

// MaxWait returns the upper wait-time estimate.
func (t GasTier) MaxWait() time.Duration { return time.Duration(t.MaxWaitMs) * time.Millisecond }

// GasFees holds the low/medium/high suggestions.
type GasFees struct {
	Low              GasTier `json:"low"`
	Medium           GasTier `json:"medium"`
	High             GasTier `json:"high"`
	EstimatedBaseFee float64 `json:"estimatedBaseFee,string"`
}

// PricePoint is one sample of a historical price series.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// Feed is the off-chain data surface used by quoting and the form.
type Feed interface {
	GetSuggestedGasFees(ctx context.Context) (*GasFees, error)
	GetTokenValues(ctx context.Context, ids []string, currency string) (map[string]float64, error)
	GetPoolVolume24h(ctx context.Context, pool common.Address) (float64, error)
	GetHistoricalPrices(ctx context.Context, tokenAddress common.Address, days int) ([]PricePoint, error)
}

// Config holds configuration for the HTTP feed.
type Config struct {
	GasURL     string // e.g. https://gas.api.infura.io/v3/<key>
	PriceURL   string // e.g. https://api.coingecko.com/api/v3
	PoolURL    string // e.g. https://api.geckoterminal.com/api/v2
	ChainID    int64
	Platform   string // price API asset platform, e.g. "ethereum"
	Network    string // pool API network id, e.g. "eth"
	RatePerSec float64
	CacheTTL   time.Duration
	Timeout    time.Duration
	Logger     *slog.Logger
}

// DefaultConfig returns defaults suitable for public endpoints.
func DefaultConfig() Config {
	return Config{
		PriceURL:   "https://api.coingecko.com/api/v3",
		PoolURL:    "https://api.geckoterminal.com/api/v2",
		ChainID:    1,
		Platform:   "ethereum",
		Network:    "eth",
		RatePerSec: 2,
		CacheTTL:   time.Minute,
		Timeout:    10 * time.Second,
	}
}

// HTTPFeed implements Feed over HTTP.
type HTTPFeed struct {
	cfg     Config
	client  *http.Client
	limiter *ratelimit.Limiter
	prices  *expirable.LRU[string, float64]
	logger  *slog.Logger
}

var _ Feed = (*HTTPFeed)(nil)

// New creates a new HTTP feed.
func New(cfg Config) *HTTPFeed {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}
	return &HTTPFeed{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(cfg.RatePerSec),
		prices:  expirable.NewLRU[string, float64](512, nil, cfg.CacheTTL),
		logger:  logger,
	}
}

// StatusError is returned for non-200 API responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// get fetches url and decodes the JSON body into T.
func get[T any](ctx context.Context, f *HTTPFeed, rawURL string) (*T, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal: %w", err)
	}
	return &out, nil
}

// GetSuggestedGasFees returns the gas API's fee suggestions for the configured chain.
func (f *HTTPFeed) GetSuggestedGasFees(ctx context.Context) (*GasFees, error) {
	if f.cfg.GasURL == "" {
		return nil, fmt.Errorf("gas API not configured")
	}
	u := fmt.Sprintf("%s/networks/%d/suggestedGasFees", strings.TrimRight(f.cfg.GasURL, "/"), f.cfg.ChainID)
	return get[GasFees](ctx, f, u)
}

// GetTokenValues returns id -> price in currency. Cached ids are not re-fetched.
func (f *HTTPFeed) GetTokenValues(ctx context.Context, ids []string, currency string) (map[string]float64, error) {
	currency = strings.ToLower(currency)
	out := make(map[string]float64, len(ids))
	var missing []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if v, ok := f.prices.Get(id + "/" + currency); ok {
			out[id] = v
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	sort.Strings(missing)

	q := url.Values{}
	q.Set("ids", strings.Join(missing, ","))
	q.Set("vs_currencies", currency)
	u := strings.TrimRight(f.cfg.PriceURL, "/") + "/simple/price?" + q.Encode()

	data, err := get[map[string]map[string]float64](ctx, f, u)
	if err != nil {
		return nil, err
	}
	for _, id := range missing {
		v, ok := (*data)[id][currency]
		if !ok {
			f.logger.Debug("price not found", slog.String("id", id), slog.String("currency", currency))
			continue
		}
		f.prices.Add(id+"/"+currency, v)
		out[id] = v
	}
	return out, nil
}

type poolResponse struct {
	Data struct {
		Attributes struct {
			VolumeUSD struct {
				H24 string `json:"h24"`
			} `json:"volume_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

// GetPoolVolume24h returns the pool's trailing 24h USD volume.
func (f *HTTPFeed) GetPoolVolume24h(ctx context.Context, pool common.Address) (float64, error) {
	u := fmt.Sprintf("%s/networks/%s/pools/%s", strings.TrimRight(f.cfg.PoolURL, "/"), f.cfg.Network, strings.ToLower(pool.Hex()))
	data, err := get[poolResponse](ctx, f, u)
	if err != nil {
		return 0, err
	}
	raw := data.Data.Attributes.VolumeUSD.H24
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid volume %q: %w", raw, err)
	}
	return v, nil
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"`
}

// GetHistoricalPrices returns the USD price series of a token contract over days.
func (f *HTTPFeed) GetHistoricalPrices(ctx context.Context, tokenAddress common.Address, days int) ([]PricePoint, error) {
	if days <= 0 {
		days = 1
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))
	u := fmt.Sprintf("%s/coins/%s/contract/%s/market_chart?%s",
		strings.TrimRight(f.cfg.PriceURL, "/"), f.cfg.Platform, strings.ToLower(tokenAddress.Hex()), q.Encode())

	data, err := get[marketChart](ctx, f, u)
	if err != nil {
		return nil, err
	}
	points := make([]PricePoint, 0, len(data.Prices))
	for _, p := range data.Prices {
		points = append(points, PricePoint{
			Time:  time.UnixMilli(int64(p[0])).UTC(),
			Price: p[1],
		})
	}
	return points, nil
}
