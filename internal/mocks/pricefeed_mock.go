package mocks

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/swapcore/internal/pricefeed"
)

// FeedMock is a pricefeed.Feed with static answers.
type FeedMock struct {
	GasFees   *pricefeed.GasFees
	GasErr    error
	Values    map[string]float64
	ValuesErr error
	Volume    float64
	History   []pricefeed.PricePoint
}

var _ pricefeed.Feed = (*FeedMock)(nil)

// GetSuggestedGasFees implements pricefeed.Feed.
func (m *FeedMock) GetSuggestedGasFees(ctx context.Context) (*pricefeed.GasFees, error) {
	if m.GasErr != nil {
		return nil, m.GasErr
	}
	if m.GasFees == nil {
		return nil, errors.New("no gas suggestion")
	}
	return m.GasFees, nil
}

// GetTokenValues implements pricefeed.Feed.
func (m *FeedMock) GetTokenValues(ctx context.Context, ids []string, currency string) (map[string]float64, error) {
	if m.ValuesErr != nil {
		return nil, m.ValuesErr
	}
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if v, ok := m.Values[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

// GetPoolVolume24h implements pricefeed.Feed.
func (m *FeedMock) GetPoolVolume24h(ctx context.Context, pool common.Address) (float64, error) {
	return m.Volume, nil
}

// GetHistoricalPrices implements pricefeed.Feed.
func (m *FeedMock) GetHistoricalPrices(ctx context.Context, tokenAddress common.Address, days int) ([]pricefeed.PricePoint, error) {
	return m.History, nil
}
