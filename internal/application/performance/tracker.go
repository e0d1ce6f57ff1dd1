package performance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
)

const persistTimeout = 5 * time.Second

// DefaultStrategies are registered at startup so they show up in reports
// before their first trade.
var DefaultStrategies = []string{
	"new_listing_detection",
	"pump_detection",
	"arbitrage",
	"day_trading",
	"swing_trading",
}

// Config holds the tracker settings.
type Config struct {
	RiskFreeRate float64
	MemoTTL      time.Duration
	Strategies   []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate: 0.02,
		MemoTTL:      time.Hour,
		Strategies:   DefaultStrategies,
	}
}

// Tracker is the append-only trade ledger and the only writer of TradeRecord.
type Tracker struct {
	cfg       Config
	store     ports.SnapshotStore
	publisher ports.EventPublisher
	now       func() time.Time

	mu         sync.RWMutex
	metrics    map[string]*domain.StrategyMetrics
	completed  map[string][]domain.TradeRecord
	active     map[string]domain.OpenTrade // trade id → open trade
	generation uint64

	memo *ristretto.Cache
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithPublisher publishes a trade.closed event on every exit.
func WithPublisher(p ports.EventPublisher) Option { return func(t *Tracker) { t.publisher = p } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// NewTracker creates a tracker and loads the persisted snapshot from store,
// if any. store may be nil.
func NewTracker(ctx context.Context, cfg Config, store ports.SnapshotStore, opts ...Option) (*Tracker, error) {
	memo, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("performance.NewTracker: memo: %w", err)
	}

	t := &Tracker{
		cfg:       cfg,
		store:     store,
		now:       time.Now,
		metrics:   make(map[string]*domain.StrategyMetrics),
		completed: make(map[string][]domain.TradeRecord),
		active:    make(map[string]domain.OpenTrade),
		memo:      memo,
	}
	for _, o := range opts {
		o(t)
	}
	for _, id := range cfg.Strategies {
		t.ensureLocked(id)
	}

	if store != nil {
		snap, found, err := store.LoadSnapshot(ctx)
		if err != nil {
			memo.Close()
			return nil, fmt.Errorf("performance.NewTracker: load snapshot: %w", err)
		}
		if found {
			t.restoreLocked(snap)
			slog.Info("performance: snapshot loaded",
				"strategies", len(snap.StrategyMetrics),
				"active_trades", len(snap.ActiveTrades),
			)
		}
	}
	return t, nil
}

// Close releases the memo.
func (t *Tracker) Close() {
	t.memo.Close()
}

// RecordEntry opens a trade and returns its id.
func (t *Tracker) RecordEntry(strategy, symbol string, side domain.Side, entryPrice, quantity float64, metadata map[string]string) string {
	if side == "" {
		side = domain.SideBuy
	}
	open := domain.OpenTrade{
		ID:         uuid.New().String(),
		Strategy:   strategy,
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		EntryTime:  t.now().UTC(),
		Metadata:   metadata,
	}

	t.mu.Lock()
	m := t.ensureLocked(strategy)
	t.active[open.ID] = open
	m.ActivePositions++
	t.mu.Unlock()

	slog.Debug("performance: entry recorded",
		"strategy", strategy, "symbol", symbol, "side", side,
		"price", fmt.Sprintf("%.2f", entryPrice), "trade_id", open.ID)
	return open.ID
}

// RecordExit closes an open trade, appends the TradeRecord and persists the
// snapshot. The trade must belong to strategy.
func (t *Tracker) RecordExit(strategy, tradeID string, exitPrice float64, reason string) (domain.TradeRecord, error) {
	t.mu.Lock()
	open, ok := t.active[tradeID]
	if !ok || open.Strategy != strategy {
		t.mu.Unlock()
		return domain.TradeRecord{}, fmt.Errorf("performance.RecordExit %s/%s: %w", strategy, tradeID, domain.ErrTradeNotFound)
	}
	delete(t.active, tradeID)
	m := t.ensureLocked(strategy)
	if m.ActivePositions > 0 {
		m.ActivePositions--
	}
	rec := t.appendLocked(m, open, exitPrice, reason)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.closed(rec, snap)
	return rec, nil
}

// RecordRoundTrip appends a completed trade whose entry was never opened in
// the tracker, such as a position closed by a reducing fill. An empty ID is
// generated; a zero EntryTime means now.
func (t *Tracker) RecordRoundTrip(open domain.OpenTrade, exitPrice float64, reason string) domain.TradeRecord {
	if open.ID == "" {
		open.ID = uuid.New().String()
	}
	if open.EntryTime.IsZero() {
		open.EntryTime = t.now().UTC()
	}

	t.mu.Lock()
	rec := t.appendLocked(t.ensureLocked(open.Strategy), open, exitPrice, reason)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.closed(rec, snap)
	return rec
}

func (t *Tracker) appendLocked(m *domain.StrategyMetrics, open domain.OpenTrade, exitPrice float64, reason string) domain.TradeRecord {
	rec := domain.CloseTrade(open, exitPrice, t.now().UTC(), reason)
	t.completed[open.Strategy] = append(t.completed[open.Strategy], rec)
	t.applyLocked(m, rec)
	t.generation++
	return rec
}

func (t *Tracker) closed(rec domain.TradeRecord, snap domain.PerformanceSnapshot) {
	slog.Info("performance: trade closed",
		"strategy", rec.Strategy,
		"symbol", rec.Symbol,
		"pnl_usd", fmt.Sprintf("%.2f", rec.PnLUSD),
		"pnl_pct", fmt.Sprintf("%.2f%%", rec.PnLPct*100),
		"hold_hours", fmt.Sprintf("%.1f", rec.HoldTimeHours),
		"reason", rec.ExitReason,
	)
	t.persist(snap)
	if t.publisher != nil {
		t.publisher.Publish(domain.NewEvent(domain.EventTradeClosed, rec))
	}
}

// Snapshot returns the persisted document for the current state.
func (t *Tracker) Snapshot() domain.PerformanceSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// applyLocked folds a completed trade into the strategy's running metrics.
func (t *Tracker) applyLocked(m *domain.StrategyMetrics, rec domain.TradeRecord) {
	first := m.TotalTrades == 0
	m.TotalTrades++
	if rec.Success {
		m.WinningTrades++
	} else {
		m.LosingTrades++
	}
	m.TotalPnL += rec.PnLUSD
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.AvgReturn += (rec.PnLPct - m.AvgReturn) / float64(m.TotalTrades)
	if first || rec.PnLPct > m.BestTrade {
		m.BestTrade = rec.PnLPct
	}
	if first || rec.PnLPct < m.WorstTrade {
		m.WorstTrade = rec.PnLPct
	}
	m.LastUpdated = rec.ExitTime
}

func (t *Tracker) ensureLocked(strategy string) *domain.StrategyMetrics {
	m, ok := t.metrics[strategy]
	if !ok {
		m = &domain.StrategyMetrics{Name: strategy}
		t.metrics[strategy] = m
	}
	return m
}

func (t *Tracker) snapshotLocked() domain.PerformanceSnapshot {
	snap := domain.PerformanceSnapshot{
		StrategyMetrics: make(map[string]domain.StrategyMetrics, len(t.metrics)),
		CompletedTrades: make(map[string][]domain.TradeRecord, len(t.completed)),
		ActiveTrades:    make(map[string]domain.OpenTrade, len(t.active)),
		LastUpdated:     t.now().UTC(),
	}
	for id, m := range t.metrics {
		snap.StrategyMetrics[id] = *m
	}
	for id, trades := range t.completed {
		snap.CompletedTrades[id] = append([]domain.TradeRecord(nil), trades...)
	}
	for id, open := range t.active {
		snap.ActiveTrades[id] = open
	}
	return snap
}

func (t *Tracker) restoreLocked(snap domain.PerformanceSnapshot) {
	for id, m := range snap.StrategyMetrics {
		m := m
		if m.Name == "" {
			m.Name = id
		}
		t.metrics[id] = &m
	}
	for id, trades := range snap.CompletedTrades {
		t.ensureLocked(id)
		t.completed[id] = append([]domain.TradeRecord(nil), trades...)
	}
	for id, open := range snap.ActiveTrades {
		t.ensureLocked(open.Strategy)
		t.active[id] = open
	}
	t.generation++
}

func (t *Tracker) persist(snap domain.PerformanceSnapshot) {
	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := t.store.SaveSnapshot(ctx, snap); err != nil {
		slog.Warn("performance: error saving snapshot", "err", err)
	}
}
