package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradecore/internal/ports"
)

// Monitor feeds account equity into the gate, resets daily limits at UTC
// midnight, and persists the risk state.
type Monitor struct {
	gate      *Gate
	venues    []ports.Exchange
	positions PositionView
	store     ports.RiskStateStore
	interval  time.Duration
	now       func() time.Time
	lastDay   string

	prices ports.PriceSource
	marker Marker
}

// Marker revalues open positions. Implemented by the position ledger.
type Marker interface {
	Mark(symbol string, price float64)
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithMarking revalues every open position at its latest price before
// computing equity.
func WithMarking(prices ports.PriceSource, marker Marker) MonitorOption {
	return func(m *Monitor) {
		m.prices = prices
		m.marker = marker
	}
}

// NewMonitor creates a monitor. store may be nil.
func NewMonitor(gate *Gate, venues []ports.Exchange, positions PositionView, store ports.RiskStateStore, interval time.Duration, opts ...MonitorOption) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &Monitor{
		gate:      gate,
		venues:    venues,
		positions: positions,
		store:     store,
		interval:  interval,
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Restore loads the persisted risk state into the gate, if any.
func (m *Monitor) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	s, found, err := m.store.LoadRiskState(ctx)
	if err != nil {
		return fmt.Errorf("risk.Monitor.Restore: %w", err)
	}
	if !found {
		return nil
	}
	m.gate.Restore(s)
	m.lastDay = s.LastReset.UTC().Format(time.DateOnly)
	slog.Info("risk: state restored",
		"trading_enabled", s.TradingEnabled,
		"daily_pnl", fmt.Sprintf("%.2f", s.DailyRealizedPnL),
		"peak", fmt.Sprintf("%.2f", s.PeakBalance),
	)
	return nil
}

// Run ticks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("risk monitor starting", "interval", m.interval)
	m.Tick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.persist(context.WithoutCancel(ctx))
			slog.Info("risk monitor stopped")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one monitoring pass and returns the equity it observed.
func (m *Monitor) Tick(ctx context.Context) float64 {
	today := m.now().UTC().Format(time.DateOnly)
	if m.lastDay != "" && m.lastDay != today {
		m.gate.ResetDailyLimits()
	}
	m.lastDay = today

	m.markPositions(ctx)
	equity := m.positions.Exposure()
	for _, v := range m.venues {
		bal, err := v.GetBalance(ctx)
		if err != nil {
			slog.Warn("risk: balance unavailable, venue excluded from equity", "venue", v.Name(), "err", err)
			continue
		}
		equity += m.gate.cfg.QuoteBalance(bal)
	}

	s := m.gate.UpdateDrawdown(equity)
	if !s.TradingEnabled {
		slog.Warn("risk: trading disabled", "reason", s.DisabledReason)
	}
	slog.Info("risk: portfolio",
		"equity", fmt.Sprintf("%.2f", equity),
		"daily_pnl", fmt.Sprintf("%.2f", s.DailyRealizedPnL),
		"drawdown", fmt.Sprintf("%.4f", s.CurrentDrawdown),
	)
	m.persist(ctx)
	return equity
}

func (m *Monitor) markPositions(ctx context.Context) {
	if m.prices == nil || m.marker == nil {
		return
	}
	for _, p := range m.positions.Positions() {
		price, ok, err := m.prices.LatestPrice(ctx, p.Symbol)
		if err != nil {
			slog.Debug("risk: mark price unavailable", "symbol", p.Symbol, "err", err)
			continue
		}
		if ok {
			m.marker.Mark(p.Symbol, price)
		}
	}
}

func (m *Monitor) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveRiskState(ctx, m.gate.State()); err != nil {
		slog.Warn("risk: error saving state", "err", err)
	}
}
