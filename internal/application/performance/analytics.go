package performance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

const (
	tradingDaysPerYear = 365
	trendDays          = 30
	minTrendTrades     = 10
)

var periods = []struct {
	name   string
	window time.Duration
}{
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
	{"30d", 30 * 24 * time.Hour},
}

// SharpeRatio annualizes per-trade returns. It is 0 with fewer than two
// samples or zero volatility.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return (mean*tradingDaysPerYear - riskFreeRate) / (std * math.Sqrt(tradingDaysPerYear))
}

// MaxDrawdown walks the cumulative P&L curve in exit-time order and returns
// the largest (peak-current)/peak for positive peaks.
func MaxDrawdown(trades []domain.TradeRecord) float64 {
	sorted := append([]domain.TradeRecord(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ExitTime.Before(sorted[j].ExitTime) })

	var cum, peak, maxDD float64
	for _, tr := range sorted {
		cum += tr.PnLUSD
		if cum > peak {
			peak = cum
		}
		if peak > 0 {
			if dd := (peak - cum) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Metrics returns the running metrics of one strategy.
func (t *Tracker) Metrics(strategy string) (domain.StrategyMetrics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.metrics[strategy]
	if !ok {
		return domain.StrategyMetrics{}, false
	}
	return *m, true
}

// StrategyPerformance returns metrics, period windows and open trades for one strategy.
func (t *Tracker) StrategyPerformance(strategy string) (domain.StrategyPerformance, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.metrics[strategy]
	if !ok {
		return domain.StrategyPerformance{}, fmt.Errorf("performance.StrategyPerformance %s: %w", strategy, domain.ErrTradeNotFound)
	}
	return t.strategyPerformanceLocked(strategy, m), nil
}

// AllPerformance returns StrategyPerformance for every known strategy.
func (t *Tracker) AllPerformance() map[string]domain.StrategyPerformance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]domain.StrategyPerformance, len(t.metrics))
	for id, m := range t.metrics {
		out[id] = t.strategyPerformanceLocked(id, m)
	}
	return out
}

func (t *Tracker) strategyPerformanceLocked(strategy string, m *domain.StrategyMetrics) domain.StrategyPerformance {
	now := t.now()
	sp := domain.StrategyPerformance{
		Metrics:      *m,
		Periods:      make(map[string]domain.PeriodPerformance, len(periods)),
		ActiveTrades: []domain.OpenTrade{},
	}
	for _, p := range periods {
		cutoff := now.Add(-p.window)
		var pp domain.PeriodPerformance
		wins := 0
		for _, tr := range t.completed[strategy] {
			if !tr.ExitTime.After(cutoff) {
				continue
			}
			pp.Trades++
			pp.PnL += tr.PnLUSD
			if tr.Success {
				wins++
			}
		}
		if pp.Trades > 0 {
			pp.WinRate = float64(wins) / float64(pp.Trades)
		}
		sp.Periods[p.name] = pp
	}
	for _, open := range t.active {
		if open.Strategy == strategy {
			sp.ActiveTrades = append(sp.ActiveTrades, open)
		}
	}
	sortOpen(sp.ActiveTrades)
	return sp
}

// Overall aggregates every strategy. Memoized until the next exit.
func (t *Tracker) Overall() domain.OverallPerformance {
	return memoized(t, "overall", t.computeOverall)
}

func (t *Tracker) computeOverall() domain.OverallPerformance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.overallLocked()
}

func (t *Tracker) overallLocked() domain.OverallPerformance {
	var (
		o       domain.OverallPerformance
		all     []domain.TradeRecord
		returns []float64
		wins    int
	)
	o.ActivePositions = len(t.active)

	ids := make([]string, 0, len(t.metrics))
	for id := range t.metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bestPnL, worstPnL := math.Inf(-1), math.Inf(1)
	for _, id := range ids {
		m := t.metrics[id]
		o.TotalPnL += m.TotalPnL
		o.TotalTrades += m.TotalTrades
		wins += m.WinningTrades
		if m.TotalTrades == 0 {
			continue
		}
		if m.TotalPnL > bestPnL {
			bestPnL, o.BestStrategy = m.TotalPnL, id
		}
		if m.TotalPnL < worstPnL {
			worstPnL, o.WorstStrategy = m.TotalPnL, id
		}
	}
	for _, id := range ids {
		for _, tr := range t.completed[id] {
			all = append(all, tr)
			returns = append(returns, tr.PnLPct)
		}
	}
	if o.TotalTrades > 0 {
		o.WinRate = float64(wins) / float64(o.TotalTrades)
	}
	if len(returns) > 0 {
		sum := 0.0
		for _, r := range returns {
			sum += r
		}
		o.AvgReturn = sum / float64(len(returns))
	}
	o.SharpeRatio = SharpeRatio(returns, t.cfg.RiskFreeRate)
	o.MaxDrawdown = MaxDrawdown(all)
	return o
}

// TradeHistory returns completed trades, newest exit first. An empty strategy
// means every strategy; limit <= 0 means all.
func (t *Tracker) TradeHistory(strategy string, limit int) []domain.TradeRecord {
	t.mu.RLock()
	var out []domain.TradeRecord
	if strategy != "" {
		out = append(out, t.completed[strategy]...)
	} else {
		for _, trades := range t.completed {
			out = append(out, trades...)
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ExitTime.After(out[j].ExitTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ActiveTrades returns every open trade, oldest entry first.
func (t *Tracker) ActiveTrades() []domain.OpenTrade {
	t.mu.RLock()
	out := make([]domain.OpenTrade, 0, len(t.active))
	for _, open := range t.active {
		out = append(out, open)
	}
	t.mu.RUnlock()
	sortOpen(out)
	return out
}

// WinStats summarizes every completed trade for Kelly sizing. Wins and losses
// are in quote currency; AvgLoss is positive.
func (t *Tracker) WinStats() domain.WinStats {
	return memoized(t, "winstats", func() domain.WinStats {
		t.mu.RLock()
		defer t.mu.RUnlock()
		var (
			s               domain.WinStats
			wins, losses    int
			winSum, lossSum float64
		)
		for _, trades := range t.completed {
			for _, tr := range trades {
				s.Trades++
				if tr.Success {
					wins++
					winSum += tr.PnLUSD
				} else if tr.PnLUSD < 0 {
					losses++
					lossSum += -tr.PnLUSD
				}
			}
		}
		if s.Trades > 0 {
			s.WinRate = float64(wins) / float64(s.Trades)
		}
		if wins > 0 {
			s.AvgWin = winSum / float64(wins)
		}
		if losses > 0 {
			s.AvgLoss = lossSum / float64(losses)
		}
		return s
	})
}

// Trends returns daily P&L for the last 30 trading days with activity, the
// P&L by UTC exit hour, and recommendations.
func (t *Tracker) Trends() domain.TrendAnalysis {
	return memoized(t, "trends", t.computeTrends)
}

func (t *Tracker) computeTrends() domain.TrendAnalysis {
	t.mu.RLock()
	defer t.mu.RUnlock()

	daily := make(map[string]float64)
	hourly := make(map[int]float64)
	for _, trades := range t.completed {
		for _, tr := range trades {
			exit := tr.ExitTime.UTC()
			daily[exit.Format(time.DateOnly)] += tr.PnLUSD
			hourly[exit.Hour()] += tr.PnLUSD
		}
	}
	days := make([]string, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Strings(days)
	if len(days) > trendDays {
		for _, d := range days[:len(days)-trendDays] {
			delete(daily, d)
		}
	}

	return domain.TrendAnalysis{
		DailyPnL:        daily,
		HourlyPnL:       hourly,
		Recommendations: t.recommendationsLocked(),
		GeneratedAt:     t.now().UTC(),
	}
}

func (t *Tracker) recommendationsLocked() []string {
	recs := []string{}
	ids := make([]string, 0, len(t.metrics))
	for id := range t.metrics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := t.metrics[id]
		if m.TotalTrades <= minTrendTrades {
			continue
		}
		switch {
		case m.WinRate < 0.3:
			recs = append(recs, fmt.Sprintf("Consider disabling %s - win rate %.1f%%", id, m.WinRate*100))
		case m.WinRate > 0.7:
			recs = append(recs, fmt.Sprintf("Strong performance from %s - consider increasing allocation", id))
		}
	}

	o := t.overallLocked()
	if o.MaxDrawdown > 0.2 {
		recs = append(recs, "High drawdown detected - consider tighter risk controls")
	}
	if o.TotalTrades >= 2 && o.SharpeRatio < 0.5 {
		recs = append(recs, "Low risk-adjusted returns - review strategy parameters")
	}
	return recs
}

// memoized caches a derived view until the next exit bumps the generation
// or the TTL expires.
func memoized[T any](t *Tracker, view string, compute func() T) T {
	t.mu.RLock()
	key := fmt.Sprintf("%s:%d", view, t.generation)
	t.mu.RUnlock()

	if v, ok := t.memo.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed
		}
	}
	v := compute()
	t.memo.SetWithTTL(key, v, 1, t.cfg.MemoTTL)
	return v
}

func sortOpen(trades []domain.OpenTrade) {
	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].EntryTime.Equal(trades[j].EntryTime) {
			return trades[i].EntryTime.Before(trades[j].EntryTime)
		}
		return trades[i].ID < trades[j].ID
	})
}
