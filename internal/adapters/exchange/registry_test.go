package exchange_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/tradecore/internal/adapters/exchange"
	"github.com/alejandrodnm/tradecore/internal/adapters/exchange/paper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LatestPriceFallsThroughVenues(t *testing.T) {
	a := paper.New("binance", 0.001)
	b := paper.New("kraken", 0.001)
	b.SetQuote("BTC/USDT", 29990, 1, 30010, 1)
	r := exchange.NewRegistry(a, b)

	price, ok, err := r.LatestPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 30000, price, 1e-9)
	assert.Equal(t, []string{"binance", "kraken"}, r.Names())
}

func TestRegistry_LatestPriceAllFail(t *testing.T) {
	a := paper.New("binance", 0.001)
	a.Fail(paper.OpOrderBook, errors.New("down"))
	r := exchange.NewRegistry(a)

	_, ok, err := r.LatestPrice(context.Background(), "BTC/USDT")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestRegistry_Get(t *testing.T) {
	r := exchange.NewRegistry(paper.New("coinbase", 0))
	_, ok := r.Get("coinbase")
	assert.True(t, ok)
	_, ok = r.Get("ftx")
	assert.False(t, ok)
	assert.Len(t, r.All(), 1)
}
