package positions_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/alejandrodnm/tradecore/internal/application/positions"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buy(symbol string, qty, price float64, id string) domain.Fill {
	return domain.Fill{OrderID: id, Symbol: symbol, Side: domain.SideBuy, Quantity: qty, Price: price}
}

func sell(symbol string, qty, price float64, id string) domain.Fill {
	return domain.Fill{OrderID: id, Symbol: symbol, Side: domain.SideSell, Quantity: qty, Price: price}
}

func TestLedger_AveragingIsQuantityWeighted(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		l := positions.NewLedger()
		var qtySum, notional float64
		n := 1 + rng.Intn(10)
		for i := 0; i < n; i++ {
			q := 0.001 + rng.Float64()*2
			p := 100 + rng.Float64()*50000
			l.Apply(buy("BTC/USDT", q, p, ""))
			qtySum += q
			notional += q * p
		}

		pos, ok := l.Get("BTC/USDT")
		require.True(t, ok)
		assert.InDelta(t, qtySum, pos.Quantity, 1e-9)
		assert.InEpsilon(t, notional/qtySum, pos.AvgPrice, 1e-9)
	}
}

func TestLedger_TracksOrderIDsAndEntryTime(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(buy("ETH/USDT", 1, 2000, "o1"))
	first, _ := l.Get("ETH/USDT")
	l.Apply(buy("ETH/USDT", 1, 2200, "o2"))
	l.Apply(buy("ETH/USDT", 1, 2100, "o2"))

	pos, ok := l.Get("ETH/USDT")
	require.True(t, ok)
	assert.Equal(t, []string{"o1", "o2"}, pos.OrderIDs)
	assert.Equal(t, first.EntryTime, pos.EntryTime)
	assert.InDelta(t, 3*2100, pos.Value, 1e-9)
}

func TestLedger_FullCloseRealizesAndRemoves(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(buy("BTC/USDT", 0.5, 30000, "o1"))

	b := l.Apply(sell("BTC/USDT", 0.5, 31000, "o2"))
	assert.InDelta(t, 500, b.Realized, 1e-9)
	assert.InDelta(t, 0.5, b.Reduced, 1e-12)
	assert.Zero(t, b.Opened)
	assert.Equal(t, 0, l.Count())
	_, ok := l.Get("BTC/USDT")
	assert.False(t, ok)
}

func TestLedger_FullCloseShort(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(sell("BTC/USDT", 2, 30000, "o1"))

	b := l.Apply(buy("BTC/USDT", 2, 29000, "o2"))
	assert.InDelta(t, 2000, b.Realized, 1e-9)
	assert.Equal(t, 0, l.Count())
}

func TestLedger_OppositeFillReducesThenFlips(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(buy("BTC/USDT", 1, 30000, "o1"))

	realized := l.Apply(sell("BTC/USDT", 0.4, 31000, "o2")).Realized
	assert.InDelta(t, 400, realized, 1e-9)
	pos, _ := l.Get("BTC/USDT")
	assert.InDelta(t, 0.6, pos.Quantity, 1e-12)
	assert.Equal(t, domain.SideBuy, pos.Side)
	assert.InDelta(t, 30000, pos.AvgPrice, 1e-9)

	realized = l.Apply(sell("BTC/USDT", 1, 29000, "o3")).Realized
	assert.InDelta(t, -600, realized, 1e-9)
	pos, ok := l.Get("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, domain.SideSell, pos.Side)
	assert.InDelta(t, 0.4, pos.Quantity, 1e-12)
	assert.InDelta(t, 29000, pos.AvgPrice, 1e-9)
	assert.Equal(t, []string{"o3"}, pos.OrderIDs)
}

func TestLedger_ArbitrageLegsNetFlat(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(buy("BTC/USDT", 0.1, 30000, "buy"))
	realized := l.Apply(sell("BTC/USDT", 0.1, 30300, "sell")).Realized

	assert.InDelta(t, 30, realized, 1e-9)
	assert.Equal(t, 0, l.Count())
}

func TestLedger_RescindOpenedQuantity(t *testing.T) {
	l := positions.NewLedger()
	first := l.Apply(buy("SOL/USDT", 10, 100, "o1"))
	second := l.Apply(buy("SOL/USDT", 10, 120, "o2"))

	assert.Zero(t, l.Rescind(second, 4))
	pos, _ := l.Get("SOL/USDT")
	assert.InDelta(t, 16, pos.Quantity, 1e-12)
	assert.InDelta(t, 110, pos.AvgPrice, 1e-9)

	assert.Zero(t, l.Rescind(first, 16), "capped at what the booking added")
	pos, _ = l.Get("SOL/USDT")
	assert.InDelta(t, 6, pos.Quantity, 1e-12)

	assert.Zero(t, l.Rescind(second, 0))
}

func TestLedger_RescindCancelledCloseRestoresPosition(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(buy("BTC/USDT", 0.05, 30000, "open"))
	opened, _ := l.Get("BTC/USDT")

	b := l.Apply(sell("BTC/USDT", 0.05, 31000, "close"))
	require.Equal(t, 0, l.Count())
	require.InDelta(t, 50, b.Realized, 1e-9)

	undone := l.Rescind(b, 0.05)
	assert.InDelta(t, 50, undone, 1e-9)
	pos, ok := l.Get("BTC/USDT")
	require.True(t, ok, "the long is still held")
	assert.Equal(t, domain.SideBuy, pos.Side)
	assert.InDelta(t, 0.05, pos.Quantity, 1e-12)
	assert.InDelta(t, 30000, pos.AvgPrice, 1e-9)
	assert.Equal(t, opened.EntryTime, pos.EntryTime)
	assert.Equal(t, []string{"open"}, pos.OrderIDs)
}

func TestLedger_RescindShortFilledFlip(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(buy("ETH/USDT", 1, 2000, "open"))

	// Sell 1.5 books: close the long, open a 0.5 short.
	b := l.Apply(sell("ETH/USDT", 1.5, 2100, "flip"))
	require.InDelta(t, 1, b.Reduced, 1e-12)
	require.InDelta(t, 0.5, b.Opened, 1e-12)

	// Only 0.4 filled: the short goes, 0.6 of the long comes back.
	undone := l.Rescind(b, 1.1)
	assert.InDelta(t, 60, undone, 1e-9)
	pos, ok := l.Get("ETH/USDT")
	require.True(t, ok)
	assert.Equal(t, domain.SideBuy, pos.Side)
	assert.InDelta(t, 0.6, pos.Quantity, 1e-12)
	assert.InDelta(t, 2000, pos.AvgPrice, 1e-9)
}

func TestLedger_RescindPartialReduction(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(sell("SOL/USDT", 10, 100, "open"))
	b := l.Apply(buy("SOL/USDT", 4, 90, "cover"))
	require.InDelta(t, 40, b.Realized, 1e-9)

	undone := l.Rescind(b, 4)
	assert.InDelta(t, 40, undone, 1e-9)
	pos, _ := l.Get("SOL/USDT")
	assert.Equal(t, domain.SideSell, pos.Side)
	assert.InDelta(t, 10, pos.Quantity, 1e-12)
	assert.InDelta(t, 100, pos.AvgPrice, 1e-9)
}

func TestLedger_ExposureAndMark(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(buy("BTC/USDT", 0.1, 30000, ""))
	l.Apply(sell("ETH/USDT", 1, 2000, ""))
	assert.InDelta(t, 5000, l.Exposure(), 1e-9)

	l.Mark("BTC/USDT", 31000)
	assert.InDelta(t, 5100, l.Exposure(), 1e-9)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, l.Symbols())
	assert.Len(t, l.Positions(), 2)
}

func TestLedger_ReturnsCopies(t *testing.T) {
	l := positions.NewLedger()
	l.Apply(buy("BTC/USDT", 1, 30000, "o1"))

	pos, _ := l.Get("BTC/USDT")
	pos.Quantity = 99
	pos.OrderIDs[0] = "mutated"

	again, _ := l.Get("BTC/USDT")
	assert.InDelta(t, 1, again.Quantity, 1e-12)
	assert.Equal(t, "o1", again.OrderIDs[0])
}

func TestLedger_ConcurrentApply(t *testing.T) {
	l := positions.NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Apply(buy("BTC/USDT", 0.01, 30000, ""))
		}()
	}
	wg.Wait()

	pos, ok := l.Get("BTC/USDT")
	require.True(t, ok)
	assert.InDelta(t, 1.0, pos.Quantity, 1e-9)
}
