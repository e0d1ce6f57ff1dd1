package httpapi_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/adapters/httpapi"
	"github.com/alejandrodnm/tradecore/internal/application/strategy"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRisk struct{ m domain.RiskMetrics }

func (f fakeRisk) Metrics() domain.RiskMetrics { return f.m }

type fakePositions struct{ p []domain.Position }

func (f fakePositions) Positions() []domain.Position { return f.p }

type fakeOrders struct {
	active     []domain.Order
	history    []domain.Order
	stats      domain.OrderStats
	unresolved []string
}

func (f fakeOrders) Active() []domain.Order   { return f.active }
func (f fakeOrders) History() []domain.Order  { return f.history }
func (f fakeOrders) Stats() domain.OrderStats { return f.stats }
func (f fakeOrders) Unresolved() []string     { return f.unresolved }

type fakeStrategies struct{}

func (fakeStrategies) Reports() []strategy.Report {
	return []strategy.Report{{ID: "arbitrage", Kind: strategy.KindArbitrage}}
}

type fakePerf struct {
	trades    []domain.TradeRecord
	lastLimit int
}

func (f *fakePerf) StrategyPerformance(s string) (domain.StrategyPerformance, error) {
	if s != "arbitrage" {
		return domain.StrategyPerformance{}, fmt.Errorf("performance: unknown strategy %q", s)
	}
	return domain.StrategyPerformance{Metrics: domain.StrategyMetrics{Name: s, TotalTrades: 2}}, nil
}

func (f *fakePerf) AllPerformance() map[string]domain.StrategyPerformance {
	return map[string]domain.StrategyPerformance{"arbitrage": {}}
}

func (f *fakePerf) Overall() domain.OverallPerformance {
	return domain.OverallPerformance{TotalTrades: 2, BestStrategy: "arbitrage"}
}

func (f *fakePerf) TradeHistory(_ string, limit int) []domain.TradeRecord {
	f.lastLimit = limit
	return f.trades
}

func (f *fakePerf) Trends() domain.TrendAnalysis {
	return domain.TrendAnalysis{Recommendations: []string{"Strong performance from arbitrage - consider increasing allocation"}}
}

// fakeEvents entrega al handler un canal controlado por el test.
type fakeEvents struct {
	ch         chan domain.Event
	subscribed chan struct{}
}

func (f *fakeEvents) Subscribe(int, ...domain.EventType) (<-chan domain.Event, func()) {
	close(f.subscribed)
	return f.ch, func() {}
}

func newServer(t *testing.T) (*httptest.Server, *fakePerf, *fakeEvents) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	perf := &fakePerf{trades: []domain.TradeRecord{{ID: "t1", Strategy: "arbitrage", PnLUSD: 5}}}
	ev := &fakeEvents{ch: make(chan domain.Event, 1), subscribed: make(chan struct{})}
	s := httpapi.New(httpapi.Deps{
		Risk: fakeRisk{m: domain.RiskMetrics{
			OpenPositions:  1,
			TotalExposure:  5000,
			TradingEnabled: true,
			VaR95:          164.5,
		}},
		Positions: fakePositions{p: []domain.Position{{Symbol: "BTC/USDT", Side: domain.SideBuy, Quantity: 0.1}}},
		Orders: fakeOrders{
			active: []domain.Order{{ID: "o1", Venue: "kraken", Symbol: "BTC/USDT", Status: domain.StatusPending}},
			history: []domain.Order{
				{ID: "h1", Status: domain.StatusFilled},
				{ID: "h2", Status: domain.StatusCancelled},
				{ID: "h3", Status: domain.StatusFailed},
			},
			stats: domain.OrderStats{TotalOrders: 3, FilledOrders: 2, FillRate: 2.0 / 3},
		},
		Performance: perf,
		Strategies:  fakeStrategies{},
		Events:      ev,
		Version:     "test",
	})
	srv := httptest.NewServer(s.Router)
	t.Cleanup(srv.Close)
	return srv, perf, ev
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPI_Risk(t *testing.T) {
	srv, _, _ := newServer(t)

	var m map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/risk", &m))
	assert.Equal(t, 1.0, m["open_positions"])
	assert.Equal(t, 5000.0, m["total_exposure"])
	assert.Equal(t, 164.5, m["var_95"])
	assert.Equal(t, true, m["trading_enabled"])
}

func TestAPI_Health(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAPI_Orders(t *testing.T) {
	srv, _, _ := newServer(t)

	var active []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/orders/active", &active))
	require.Len(t, active, 1)
	assert.Equal(t, "o1", active[0]["id"])
	assert.Equal(t, "PENDING", active[0]["status"])

	var stats domain.OrderStats
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/orders/stats", &stats))
	assert.Equal(t, 3, stats.TotalOrders)

	var unresolved map[string][]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/orders/unresolved", &unresolved))
	assert.Equal(t, []string{}, unresolved["order_ids"])
}

func TestAPI_OrderHistoryNewestFirst(t *testing.T) {
	srv, _, _ := newServer(t)

	var history []domain.Order
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/orders/history?limit=2", &history))
	require.Len(t, history, 2)
	assert.Equal(t, "h3", history[0].ID)
	assert.Equal(t, "h2", history[1].ID)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/orders/history?limit=0", nil))
}

func TestAPI_Strategies(t *testing.T) {
	srv, _, _ := newServer(t)

	var reports []strategy.Report
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/strategies", &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, strategy.KindArbitrage, reports[0].Kind)
}

func TestAPI_Performance(t *testing.T) {
	srv, _, _ := newServer(t)

	var all map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/performance", &all))
	assert.Contains(t, all, "overall")
	assert.Contains(t, all, "strategies")

	var one domain.StrategyPerformance
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/performance?strategy=arbitrage", &one))
	assert.Equal(t, 2, one.Metrics.TotalTrades)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/performance?strategy=nope", nil))
}

func TestAPI_Trades(t *testing.T) {
	srv, perf, _ := newServer(t)

	var trades []domain.TradeRecord
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/trades?strategy=arbitrage&limit=5", &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, 5, perf.lastLimit)

	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/trades", &trades))
	assert.Equal(t, 100, perf.lastLimit)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/trades?limit=abc", nil))
}

func TestAPI_Trends(t *testing.T) {
	srv, _, _ := newServer(t)

	var trends domain.TrendAnalysis
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/trends", &trends))
	require.Len(t, trends.Recommendations, 1)
}

func TestAPI_WebsocketStreamsEvents(t *testing.T) {
	srv, _, ev := newServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-ev.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never subscribed")
	}
	ev.ch <- domain.NewEvent(domain.EventOrderSubmitted, map[string]string{"id": "o1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, string(domain.EventOrderSubmitted), got.Type)
	assert.Equal(t, "o1", got.Payload["id"])
}
