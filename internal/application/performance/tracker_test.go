package performance_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/application/performance"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSnapshots struct {
	mu    sync.Mutex
	snap  *domain.PerformanceSnapshot
	saves int
}

func (m *memSnapshots) SaveSnapshot(_ context.Context, s domain.PerformanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &s
	m.saves++
	return nil
}

func (m *memSnapshots) LoadSnapshot(_ context.Context) (domain.PerformanceSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return domain.PerformanceSnapshot{}, false, nil
	}
	return *m.snap, true, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var base = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, store *memSnapshots) (*performance.Tracker, *clock) {
	t.Helper()
	c := &clock{now: base}
	var tr *performance.Tracker
	var err error
	if store == nil {
		tr, err = performance.NewTracker(context.Background(), performance.DefaultConfig(), nil, performance.WithClock(c.Now))
	} else {
		tr, err = performance.NewTracker(context.Background(), performance.DefaultConfig(), store, performance.WithClock(c.Now))
	}
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return tr, c
}

// trade opens at the current clock, moves it by hold and closes.
func trade(t *testing.T, tr *performance.Tracker, c *clock, strategy string, entry, exit, qty float64, hold time.Duration) domain.TradeRecord {
	t.Helper()
	id := tr.RecordEntry(strategy, "BTC/USDT", domain.SideBuy, entry, qty, nil)
	c.Set(c.Now().Add(hold))
	rec, err := tr.RecordExit(strategy, id, exit, "signal")
	require.NoError(t, err)
	return rec
}

func TestTracker_RoundTripLong(t *testing.T) {
	store := &memSnapshots{}
	tr, c := newTracker(t, store)

	id := tr.RecordEntry("day_trading", "ETH/USDT", domain.SideBuy, 2000, 2, map[string]string{"signal": "rsi"})
	m, ok := tr.Metrics("day_trading")
	require.True(t, ok)
	assert.Equal(t, 1, m.ActivePositions)
	require.Len(t, tr.ActiveTrades(), 1)

	c.Set(base.Add(90 * time.Minute))
	rec, err := tr.RecordExit("day_trading", id, 2100, "take_profit")
	require.NoError(t, err)
	assert.InDelta(t, 200, rec.PnLUSD, 1e-9)
	assert.InDelta(t, 0.05, rec.PnLPct, 1e-12)
	assert.InDelta(t, 1.5, rec.HoldTimeHours, 1e-12)
	assert.Equal(t, "rsi", rec.Metadata["signal"])

	m, _ = tr.Metrics("day_trading")
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 0, m.ActivePositions)
	assert.InDelta(t, 200, m.TotalPnL, 1e-9)
	assert.InDelta(t, 1.0, m.WinRate, 1e-12)
	assert.Empty(t, tr.ActiveTrades())

	assert.Equal(t, 1, store.saves, "snapshot written on exit")
	require.Len(t, store.snap.CompletedTrades["day_trading"], 1)
}

func TestTracker_RecordRoundTrip(t *testing.T) {
	store := &memSnapshots{}
	tr, c := newTracker(t, store)
	open := tr.RecordEntry("day_trading", "SOL/USDT", domain.SideBuy, 100, 1, nil)

	c.Set(base.Add(2 * time.Hour))
	rec := tr.RecordRoundTrip(domain.OpenTrade{
		Strategy:   "swing_trading",
		Symbol:     "ETH/USDT",
		Side:       domain.SideSell,
		EntryPrice: 2000,
		Quantity:   1,
		EntryTime:  base,
	}, 1900, "stop_loss")

	assert.NotEmpty(t, rec.ID)
	assert.InDelta(t, 100, rec.PnLUSD, 1e-9)
	assert.InDelta(t, 2, rec.HoldTimeHours, 1e-12)
	assert.Equal(t, "stop_loss", rec.ExitReason)

	m, _ := tr.Metrics("swing_trading")
	assert.Equal(t, 1, m.TotalTrades)
	assert.Zero(t, m.ActivePositions)
	day, _ := tr.Metrics("day_trading")
	assert.Equal(t, 1, day.ActivePositions, "other strategies' open trades are untouched")
	assert.Equal(t, 1, store.saves)

	_, err := tr.RecordExit("day_trading", open, 110, "signal")
	require.NoError(t, err)
	assert.Len(t, tr.TradeHistory("", 0), 2)
}

func TestTracker_ShortPnLInverted(t *testing.T) {
	tr, _ := newTracker(t, nil)
	id := tr.RecordEntry("pump_detection", "DOGE/USDT", domain.SideSell, 0.2, 1000, nil)
	rec, err := tr.RecordExit("pump_detection", id, 0.18, "reversal")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rec.PnLPct, 1e-12)
	assert.InDelta(t, 20, rec.PnLUSD, 1e-9)
	assert.True(t, rec.Success)
}

func TestTracker_ExitUnknownTrade(t *testing.T) {
	tr, _ := newTracker(t, nil)
	_, err := tr.RecordExit("day_trading", "missing", 1, "x")
	assert.ErrorIs(t, err, domain.ErrTradeNotFound)

	id := tr.RecordEntry("day_trading", "BTC/USDT", domain.SideBuy, 1, 1, nil)
	_, err = tr.RecordExit("swing_trading", id, 1, "x")
	assert.ErrorIs(t, err, domain.ErrTradeNotFound, "trade belongs to another strategy")

	_, err = tr.RecordExit("day_trading", id, 1, "x")
	require.NoError(t, err)
	_, err = tr.RecordExit("day_trading", id, 1, "x")
	assert.ErrorIs(t, err, domain.ErrTradeNotFound, "a trade closes exactly once")
}

func TestTracker_UnknownStrategyCreatedOnDemand(t *testing.T) {
	tr, c := newTracker(t, nil)
	trade(t, tr, c, "grid_bot", 10, 11, 1, time.Hour)
	m, ok := tr.Metrics("grid_bot")
	require.True(t, ok)
	assert.Equal(t, 1, m.TotalTrades)
	assert.Len(t, tr.AllPerformance(), len(performance.DefaultStrategies)+1)
}

func TestSharpeRatio(t *testing.T) {
	assert.Zero(t, performance.SharpeRatio(nil, 0.02))
	assert.Zero(t, performance.SharpeRatio([]float64{0.05}, 0.02), "fewer than two samples")
	assert.Zero(t, performance.SharpeRatio([]float64{0.01, 0.01, 0.01}, 0.02), "zero volatility")

	// mean 0.02, population std 0.01
	want := (0.02*365 - 0.02) / (0.01 * math.Sqrt(365))
	assert.InDelta(t, want, performance.SharpeRatio([]float64{0.01, 0.03}, 0.02), 1e-9)
}

func TestMaxDrawdown_HandComputed(t *testing.T) {
	at := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }
	// Out of exit order on purpose: curve is 100, 50, 70, 30.
	trades := []domain.TradeRecord{
		{PnLUSD: 20, ExitTime: at(3)},
		{PnLUSD: 100, ExitTime: at(1)},
		{PnLUSD: -40, ExitTime: at(4)},
		{PnLUSD: -50, ExitTime: at(2)},
	}
	assert.InDelta(t, 0.7, performance.MaxDrawdown(trades), 1e-12)

	// Losses before any positive peak do not count.
	assert.Zero(t, performance.MaxDrawdown([]domain.TradeRecord{{PnLUSD: -10, ExitTime: at(1)}}))
}

func TestTracker_Overall(t *testing.T) {
	tr, c := newTracker(t, nil)
	trade(t, tr, c, "day_trading", 100, 110, 10, time.Hour)  // +100
	trade(t, tr, c, "day_trading", 100, 95, 10, time.Hour)   // -50
	trade(t, tr, c, "swing_trading", 100, 90, 10, time.Hour) // -100
	trade(t, tr, c, "arbitrage", 100, 101, 10, time.Hour)    // +10

	o := tr.Overall()
	assert.Equal(t, 4, o.TotalTrades)
	assert.InDelta(t, -40, o.TotalPnL, 1e-9)
	assert.InDelta(t, 0.5, o.WinRate, 1e-12)
	assert.Equal(t, "day_trading", o.BestStrategy)
	assert.Equal(t, "swing_trading", o.WorstStrategy)
	assert.InDelta(t, (0.1-0.05-0.1+0.01)/4, o.AvgReturn, 1e-12)
	// curve 100, 50, -50, -40 → peak 100, trough -50
	assert.InDelta(t, 1.5, o.MaxDrawdown, 1e-12)
}

func TestTracker_OverallRefreshesAfterExit(t *testing.T) {
	tr, c := newTracker(t, nil)
	trade(t, tr, c, "day_trading", 100, 110, 1, time.Hour)
	assert.Equal(t, 1, tr.Overall().TotalTrades)

	trade(t, tr, c, "day_trading", 100, 120, 1, time.Hour)
	assert.Equal(t, 2, tr.Overall().TotalTrades)
	assert.InDelta(t, 30, tr.Overall().TotalPnL, 1e-9)
}

func TestTracker_StrategyPerformancePeriods(t *testing.T) {
	tr, c := newTracker(t, nil)
	trade(t, tr, c, "swing_trading", 100, 110, 1, time.Hour)       // base+1h
	trade(t, tr, c, "swing_trading", 100, 90, 1, 10*24*time.Hour) // base+10d+1h
	trade(t, tr, c, "swing_trading", 100, 105, 1, 9*24*time.Hour) // base+19d+1h
	trade(t, tr, c, "swing_trading", 100, 101, 1, 30*time.Hour)   // base+20d+7h, now
	tr.RecordEntry("swing_trading", "SOL/USDT", domain.SideBuy, 150, 1, nil)

	sp, err := tr.StrategyPerformance("swing_trading")
	require.NoError(t, err)
	assert.Equal(t, 1, sp.Periods["24h"].Trades)
	assert.Equal(t, 2, sp.Periods["7d"].Trades)
	assert.Equal(t, 4, sp.Periods["30d"].Trades)
	assert.InDelta(t, 6, sp.Periods["7d"].PnL, 1e-9)
	assert.InDelta(t, 1.0, sp.Periods["24h"].WinRate, 1e-12)
	require.Len(t, sp.ActiveTrades, 1)
	assert.Equal(t, "SOL/USDT", sp.ActiveTrades[0].Symbol)

	_, err = tr.StrategyPerformance("nope")
	assert.Error(t, err)
}

func TestTracker_TradeHistory(t *testing.T) {
	tr, c := newTracker(t, nil)
	first := trade(t, tr, c, "day_trading", 100, 101, 1, time.Hour)
	second := trade(t, tr, c, "swing_trading", 100, 102, 1, time.Hour)
	third := trade(t, tr, c, "day_trading", 100, 103, 1, time.Hour)

	all := tr.TradeHistory("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	day := tr.TradeHistory("day_trading", 1)
	require.Len(t, day, 1)
	assert.Equal(t, third.ID, day[0].ID)
}

func TestTracker_WinStats(t *testing.T) {
	tr, c := newTracker(t, nil)
	trade(t, tr, c, "day_trading", 100, 110, 10, time.Hour) // +100
	trade(t, tr, c, "day_trading", 100, 130, 10, time.Hour) // +300
	trade(t, tr, c, "day_trading", 100, 92, 10, time.Hour)  // -80

	s := tr.WinStats()
	assert.Equal(t, 3, s.Trades)
	assert.InDelta(t, 2.0/3, s.WinRate, 1e-12)
	assert.InDelta(t, 200, s.AvgWin, 1e-9)
	assert.InDelta(t, 80, s.AvgLoss, 1e-9)
}

func TestTracker_TrendsRecommendations(t *testing.T) {
	tr, c := newTracker(t, nil)
	for i := 0; i < 11; i++ {
		trade(t, tr, c, "pump_detection", 100, 99, 1, time.Hour)
	}
	trend := tr.Trends()
	assert.Contains(t, trend.Recommendations, "Consider disabling pump_detection - win rate 0.0%")
	assert.Contains(t, trend.Recommendations, "Low risk-adjusted returns - review strategy parameters")

	total := 0.0
	for _, v := range trend.DailyPnL {
		total += v
	}
	assert.InDelta(t, -11, total, 1e-9)
	assert.InDelta(t, -1, trend.HourlyPnL[13], 1e-9, "first exit at 13:00 UTC")
}

func TestTracker_LoadsSnapshot(t *testing.T) {
	store := &memSnapshots{}
	tr, c := newTracker(t, store)
	trade(t, tr, c, "day_trading", 100, 110, 1, time.Hour)
	open := tr.RecordEntry("day_trading", "ETH/USDT", domain.SideBuy, 2000, 1, nil)
	trade(t, tr, c, "swing_trading", 100, 90, 1, time.Hour)

	restored, _ := newTracker(t, store)
	m, ok := restored.Metrics("day_trading")
	require.True(t, ok)
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, tr.TradeHistory("", 0), restored.TradeHistory("", 0))
	require.Len(t, restored.ActiveTrades(), 1)

	_, err := restored.RecordExit("day_trading", open, 2100, "restart")
	require.NoError(t, err, "open trades survive a restart")
}
