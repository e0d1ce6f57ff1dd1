package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter int

func (c counter) Count() int { return int(c) }

func TestCollector_Counters(t *testing.T) {
	c := metrics.NewCollector()

	c.OrderStatus("kraken", domain.StatusFilled)
	c.OrderStatus("kraken", domain.StatusFilled)
	c.OrderStatus("binance", domain.StatusFailed)
	c.OrderTimeout()
	c.RiskRejected("Position too large")
	c.ArbitrageOpportunity("BTC/USDT")
	c.ArbitrageExecution("success")

	n, err := testutil.GatherAndCount(c.Registry(), "tradecore_orders_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "una serie por venue/status")

	for name, want := range map[string]int{
		"tradecore_order_timeouts_total":          1,
		"tradecore_risk_rejections_total":         1,
		"tradecore_arbitrage_opportunities_total": 1,
		"tradecore_arbitrage_executions_total":    1,
	} {
		n, err := testutil.GatherAndCount(c.Registry(), name)
		require.NoError(t, err)
		assert.Equal(t, want, n, name)
	}
}

func TestCollector_RiskStateGauges(t *testing.T) {
	c := metrics.NewCollector()
	c.RiskState(domain.RiskState{TradingEnabled: false, DailyRealizedPnL: -120, CurrentDrawdown: 0.04})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	out := string(body)
	assert.Contains(t, out, "tradecore_trading_enabled 0")
	assert.Contains(t, out, "tradecore_daily_pnl -120")
	assert.Contains(t, out, "tradecore_drawdown 0.04")
}

func TestCollector_OpenPositionsGauge(t *testing.T) {
	c := metrics.NewCollector()
	c.WatchPositions(counter(3))

	n, err := testutil.GatherAndCount(c.Registry(), "tradecore_open_positions")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "tradecore_open_positions 3")
}

func TestCollector_Healthz(t *testing.T) {
	srv := httptest.NewServer(metrics.NewCollector().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}
