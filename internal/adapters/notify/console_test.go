package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/adapters/notify"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeOpp(symbol string, net float64) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		Symbol:      symbol,
		BuyVenue:    "kraken",
		BuyPrice:    30000,
		BuyVolume:   1.5,
		SellVenue:   "binance",
		SellPrice:   30300,
		SellVolume:  0.8,
		GrossSpread: 0.01,
		NetSpread:   net,
		DetectedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestConsole_NotifyOpportunities_Table(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	err := c.NotifyOpportunities(context.Background(), []domain.ArbitrageOpportunity{
		makeOpp("BTC/USDT", 0.008),
		makeOpp("ETH/USDT", 0.006),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "2 arbitrage opportunities")
	assert.Contains(t, out, "BTC/USDT")
	assert.Contains(t, out, "ETH/USDT")
	assert.Contains(t, out, "0.80%")
	assert.Contains(t, out, "kraken")
}

func TestConsole_NotifyOpportunities_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, c.NotifyOpportunities(context.Background(), []domain.ArbitrageOpportunity{makeOpp("BTC/USDT", 0.008)}))
	assert.Contains(t, buf.String(), "BTC/USDT kraken→binance net 0.80%")
}

func TestConsole_NotifyOpportunities_Empty(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, c.NotifyOpportunities(context.Background(), nil))
	assert.Contains(t, buf.String(), "no arbitrage opportunities")
}

func TestConsole_PrintRisk(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintRisk(domain.RiskMetrics{
		OpenPositions:  1,
		TotalExposure:  5000,
		TradingEnabled: false,
		DisabledReason: "max drawdown",
		VaR95:          164.5,
		PositionDetails: []domain.Position{
			{Symbol: "BTC/USDT", Side: domain.SideBuy, Quantity: 0.1, AvgPrice: 50000, Value: 5000},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "DISABLED (max drawdown)")
	assert.Contains(t, out, "$164.50")
	assert.Contains(t, out, "BTC/USDT")
}

func TestConsole_PrintPerformance(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintPerformance(map[string]domain.StrategyPerformance{
		"arbitrage":   {Metrics: domain.StrategyMetrics{Name: "arbitrage", TotalTrades: 4, WinRate: 0.75, TotalPnL: 42.5}},
		"day_trading": {Metrics: domain.StrategyMetrics{Name: "day_trading"}},
	}, domain.OverallPerformance{TotalPnL: 42.5, TotalTrades: 4, WinRate: 0.75, BestStrategy: "arbitrage", WorstStrategy: "day_trading"})

	out := buf.String()
	assert.Contains(t, out, "arbitrage")
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, "$42.50")
	assert.Contains(t, out, "Best: arbitrage | Worst: day_trading")
}

func TestConsole_PrintTrends(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintTrends(domain.TrendAnalysis{
		DailyPnL:        map[string]float64{"2026-03-02": -5, "2026-03-01": 10},
		Recommendations: []string{"High drawdown detected - consider tighter risk controls"},
	})

	out := buf.String()
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("2026-03-01")), bytes.Index(buf.Bytes(), []byte("2026-03-02")))
	assert.Contains(t, out, ">> High drawdown detected")
}
