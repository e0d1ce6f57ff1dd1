package paper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/tradecore/internal/adapters/exchange/paper"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVenue() *paper.Venue {
	v := paper.New("kraken", 0.001)
	v.SetBalance("USDT", 10000)
	v.SetBalance("BTC", 1)
	v.SetQuote("BTC/USDT", 29990, 2, 30000, 3)
	return v
}

func TestVenue_MarketBuySettles(t *testing.T) {
	v := newVenue()
	ctx := context.Background()

	ack, err := v.PlaceMarketOrder(ctx, "BTC/USDT", domain.SideBuy, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 30000, ack.Price, 1e-9)

	st, err := v.GetOrderStatus(ctx, ack.ID, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.VenueClosed, st.State)
	assert.InDelta(t, 0.1, st.Filled, 1e-12)

	bal, err := v.GetBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000-3000*1.001, bal["USDT"], 1e-6)
	assert.InDelta(t, 1.1, bal["BTC"], 1e-12)
}

func TestVenue_InsufficientFunds(t *testing.T) {
	v := newVenue()
	_, err := v.PlaceMarketOrder(context.Background(), "BTC/USDT", domain.SideSell, 5)
	assert.ErrorIs(t, err, paper.ErrInsufficientFunds)
	assert.Empty(t, v.Placed())
}

func TestVenue_LimitOrderFillsWhenBookCrosses(t *testing.T) {
	v := newVenue()
	ctx := context.Background()

	ack, err := v.PlaceLimitOrder(ctx, "BTC/USDT", domain.SideBuy, 0.1, 29500)
	require.NoError(t, err)
	st, _ := v.GetOrderStatus(ctx, ack.ID, "BTC/USDT")
	assert.Equal(t, domain.VenueOpen, st.State)

	v.SetQuote("BTC/USDT", 29400, 1, 29450, 1)
	st, _ = v.GetOrderStatus(ctx, ack.ID, "BTC/USDT")
	assert.Equal(t, domain.VenueClosed, st.State)
	assert.InDelta(t, 29450, st.AveragePrice, 1e-9)
}

func TestVenue_CancelOnlyOpenOrders(t *testing.T) {
	v := newVenue()
	ctx := context.Background()
	ack, err := v.PlaceLimitOrder(ctx, "BTC/USDT", domain.SideBuy, 0.1, 1000)
	require.NoError(t, err)

	ok, err := v.CancelOrder(ctx, ack.ID, "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.CancelOrder(ctx, ack.ID, "BTC/USDT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVenue_ManualFillsAndFailures(t *testing.T) {
	v := newVenue()
	v.SetManualFills(true)
	ctx := context.Background()

	ack, err := v.PlaceMarketOrder(ctx, "BTC/USDT", domain.SideBuy, 0.1)
	require.NoError(t, err)
	st, _ := v.GetOrderStatus(ctx, ack.ID, "BTC/USDT")
	assert.Equal(t, domain.VenueOpen, st.State)

	require.NoError(t, v.Resolve(ack.ID, domain.VenueClosed, 0.1, 30010))
	st, _ = v.GetOrderStatus(ctx, ack.ID, "BTC/USDT")
	assert.Equal(t, domain.VenueClosed, st.State)

	boom := errors.New("boom")
	v.Fail(paper.OpBalance, boom)
	_, err = v.GetBalance(ctx)
	assert.ErrorIs(t, err, boom)
	v.Fail(paper.OpBalance, nil)
	_, err = v.GetBalance(ctx)
	assert.NoError(t, err)
}

func TestVenue_OrderBookDepthAndPairs(t *testing.T) {
	v := newVenue()
	v.SetBook("ETH/USDT",
		[]domain.BookEntry{{Price: 1999, Size: 1}, {Price: 1998, Size: 2}, {Price: 1997, Size: 3}},
		[]domain.BookEntry{{Price: 2001, Size: 1}, {Price: 2002, Size: 2}},
	)
	ctx := context.Background()

	b, err := v.GetOrderBook(ctx, "ETH/USDT", 2)
	require.NoError(t, err)
	assert.Len(t, b.Bids, 2)
	assert.Len(t, b.Asks, 2)
	assert.Equal(t, "kraken", b.Venue)

	pairs, err := v.GetAvailablePairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, pairs)
}
