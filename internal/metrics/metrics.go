package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PositionCounter es la vista del ledger que alimenta el gauge de posiciones.
type PositionCounter interface {
	Count() int
}

// Collector agrupa las métricas del core en un registry propio. Implementa
// los Recorder de risk, orders y arbitrage.
type Collector struct {
	reg *prometheus.Registry

	orders        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	opportunities *prometheus.CounterVec
	executions    *prometheus.CounterVec
	timeouts      prometheus.Counter

	tradingEnabled prometheus.Gauge
	dailyPnL       prometheus.Gauge
	drawdown       prometheus.Gauge
}

// NewCollector crea y registra las métricas.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_orders_total",
			Help: "Orders by venue and final or current status",
		}, []string{"venue", "status"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_risk_rejections_total",
			Help: "Order intents rejected by the risk gate",
		}, []string{"reason"}),
		opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_arbitrage_opportunities_total",
			Help: "Arbitrage opportunities detected",
		}, []string{"symbol"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_arbitrage_executions_total",
			Help: "Arbitrage executions by outcome",
		}, []string{"outcome"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradecore_order_timeouts_total",
			Help: "Orders left unresolved after the polling budget",
		}),
		tradingEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradecore_trading_enabled",
			Help: "1 while the risk gate allows new orders",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradecore_daily_pnl",
			Help: "Realized P&L since the last daily reset (quote units)",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradecore_drawdown",
			Help: "Current drawdown from the peak balance (fraction)",
		}),
	}
	c.tradingEnabled.Set(1)
	c.reg.MustRegister(
		c.orders,
		c.rejections,
		c.opportunities,
		c.executions,
		c.timeouts,
		c.tradingEnabled,
		c.dailyPnL,
		c.drawdown,
	)
	return c
}

// Registry expone el registry para tests y para el handler.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// WatchPositions registra tradecore_open_positions leyendo del ledger en cada scrape.
func (c *Collector) WatchPositions(p PositionCounter) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tradecore_open_positions",
		Help: "Open positions in the ledger",
	}, func() float64 { return float64(p.Count()) }))
}

// OrderStatus implementa orders.Recorder.
func (c *Collector) OrderStatus(venue string, status domain.OrderStatus) {
	c.orders.WithLabelValues(venue, string(status)).Inc()
}

// OrderTimeout implementa orders.Recorder.
func (c *Collector) OrderTimeout() { c.timeouts.Inc() }

// RiskRejected implementa risk.Recorder.
func (c *Collector) RiskRejected(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

// RiskState implementa risk.Recorder.
func (c *Collector) RiskState(s domain.RiskState) {
	if s.TradingEnabled {
		c.tradingEnabled.Set(1)
	} else {
		c.tradingEnabled.Set(0)
	}
	c.dailyPnL.Set(s.DailyRealizedPnL)
	c.drawdown.Set(s.CurrentDrawdown)
}

// ArbitrageOpportunity implementa arbitrage.Recorder.
func (c *Collector) ArbitrageOpportunity(symbol string) {
	c.opportunities.WithLabelValues(symbol).Inc()
}

// ArbitrageExecution implementa arbitrage.Recorder.
func (c *Collector) ArbitrageExecution(outcome string) {
	c.executions.WithLabelValues(outcome).Inc()
}

// Handler devuelve el mux con /metrics y /healthz.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	return mux
}

// Serve sirve las métricas en addr hasta que ctx se cancela.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		slog.Info("metrics: disabled, empty addr")
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics: server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics: shutdown error", "err", err)
		}
		slog.Info("metrics: server stopped")
		return nil
	}
}
