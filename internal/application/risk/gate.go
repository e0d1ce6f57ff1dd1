package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

// Rejection reasons.
const (
	ReasonTradingDisabled  = "Trading disabled"
	ReasonDailyLoss        = "Daily loss limit exceeded"
	ReasonTooLarge         = "Position too large"
	ReasonTooSmall         = "Position too small"
	ReasonTooSmallSized    = "Position too small after sizing"
	ReasonTooManyPositions = "Too many open positions"
	ReasonCorrelation      = "High correlation with existing positions"
	ReasonInvalid          = "Invalid quantity or price"
)

const qtyEpsilon = 1e-12

// PositionView is the read side of the position ledger.
type PositionView interface {
	Get(symbol string) (domain.Position, bool)
	Symbols() []string
	Exposure() float64
	Positions() []domain.Position
}

// WinStatsSource supplies historical trade stats for Kelly sizing.
type WinStatsSource interface {
	WinStats() domain.WinStats
}

// Recorder receives risk telemetry. Implemented by the metrics collector.
type Recorder interface {
	RiskRejected(reason string)
	RiskState(s domain.RiskState)
}

// Approval is an authorized, sized intent. It holds a position slot until
// Release is called.
type Approval struct {
	Symbol        string
	Side          domain.Side
	SizedQuantity float64
	Notional      float64
	RiskScore     float64
	Fraction      float64 // Kelly fraction applied
	ReduceOnly    bool
	ticket        uint64
}

// Gate is the pre-trade authorizer and the only writer of RiskState.
type Gate struct {
	cfg       Config
	positions PositionView
	stats     WinStatsSource
	recorder  Recorder
	publisher ports.EventPublisher
	now       func() time.Time

	mu           sync.Mutex
	state        domain.RiskState
	lastBalance  float64
	reservations map[uint64]string    // ticket → symbol
	reducing     map[uint64]reduction // ticket → pending reduce-only quantity
	nextTicket   uint64
}

type reduction struct {
	symbol string
	qty    float64
}

// Option customizes a Gate.
type Option func(*Gate)

// WithWinStats sets the source of historical win stats.
func WithWinStats(s WinStatsSource) Option { return func(g *Gate) { g.stats = s } }

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) Option { return func(g *Gate) { g.recorder = r } }

// WithPublisher sets the event publisher used for breaker trips.
func WithPublisher(p ports.EventPublisher) Option { return func(g *Gate) { g.publisher = p } }

// New creates a gate with trading enabled.
func New(cfg Config, positions PositionView, opts ...Option) *Gate {
	g := &Gate{
		cfg:          cfg,
		positions:    positions,
		now:          time.Now,
		reservations: make(map[uint64]string),
		reducing:     make(map[uint64]reduction),
		state: domain.RiskState{
			TradingEnabled: true,
			Correlations:   make(map[string]float64),
		},
	}
	for _, o := range opts {
		o(g)
	}
	g.state.LastReset = g.now().UTC()
	return g
}

// Authorize runs the pre-trade checks in order and sizes the trade.
// Rejections are returned as *domain.RiskRejectedError.
//
// An order that only shrinks the open position on symbol is reduce-only: it
// passes the breaker and daily-loss checks and is approved unsized, without
// the size, count and correlation limits.
func (g *Gate) Authorize(symbol string, side domain.Side, quantity, price float64, balances map[string]float64) (Approval, error) {
	if quantity <= 0 || price <= 0 {
		return Approval{}, g.reject(symbol, ReasonInvalid)
	}

	// Read collaborators before taking the lock; they have their own.
	held, hasPosition := g.positions.Get(symbol)
	open := g.positions.Symbols()
	exposure := g.positions.Exposure()
	var stats domain.WinStats
	if g.stats != nil {
		stats = g.stats.WinStats()
	}

	total := g.cfg.QuoteBalance(balances)
	notional := quantity * price

	g.mu.Lock()

	if !g.state.TradingEnabled {
		reason := ReasonTradingDisabled
		if g.state.DisabledReason != "" {
			reason += ": " + g.state.DisabledReason
		}
		g.mu.Unlock()
		return Approval{}, g.reject(symbol, reason)
	}

	// Sin peak todavía no hay umbral.
	if g.state.PeakBalance > 0 && g.state.DailyRealizedPnL < -g.cfg.MaxDailyLoss*g.state.PeakBalance {
		g.tripLocked(ReasonDailyLoss)
		snap := g.snapshotLocked()
		g.mu.Unlock()
		g.breakerTripped(ReasonDailyLoss, snap)
		return Approval{}, g.reject(symbol, ReasonDailyLoss)
	}

	if hasPosition && held.Side == side.Opposite() {
		pending := 0.0
		for _, r := range g.reducing {
			if r.symbol == symbol {
				pending += r.qty
			}
		}
		if quantity <= held.Quantity-pending+qtyEpsilon {
			g.nextTicket++
			ticket := g.nextTicket
			g.reducing[ticket] = reduction{symbol: symbol, qty: quantity}
			g.mu.Unlock()

			slog.Debug("risk: approved reduce-only",
				"symbol", symbol,
				"side", side,
				"qty", fmt.Sprintf("%.8f", quantity),
				"held", fmt.Sprintf("%.8f", held.Quantity),
			)
			return Approval{
				Symbol:        symbol,
				Side:          side,
				SizedQuantity: quantity,
				Notional:      notional,
				ReduceOnly:    true,
				ticket:        ticket,
			}, nil
		}
	}

	maxNotional := g.cfg.MaxPositionSize * total
	if notional > maxNotional {
		g.mu.Unlock()
		return Approval{}, g.reject(symbol, ReasonTooLarge)
	}
	if notional < g.cfg.MinOrderNotional {
		g.mu.Unlock()
		return Approval{}, g.reject(symbol, ReasonTooSmall)
	}

	heldSymbols := g.heldSymbolsLocked(open)
	if len(heldSymbols) >= g.cfg.MaxOpenPositions {
		g.mu.Unlock()
		return Approval{}, g.reject(symbol, ReasonTooManyPositions)
	}

	for other := range heldSymbols {
		if other == symbol {
			continue
		}
		if g.correlationLocked(symbol, other) > g.cfg.CorrelationLimit {
			g.mu.Unlock()
			return Approval{}, g.reject(symbol, ReasonCorrelation)
		}
	}

	fraction := g.cfg.sizingFraction(stats)
	sized := min(notional, total*fraction)
	if sized < g.cfg.MinOrderNotional {
		g.mu.Unlock()
		return Approval{}, g.reject(symbol, ReasonTooSmallSized)
	}

	score := g.riskScore(sized, exposure, total)

	g.nextTicket++
	ticket := g.nextTicket
	g.reservations[ticket] = symbol
	g.mu.Unlock()

	slog.Debug("risk: approved",
		"symbol", symbol,
		"side", side,
		"requested", fmt.Sprintf("%.2f", notional),
		"sized", fmt.Sprintf("%.2f", sized),
		"kelly", fmt.Sprintf("%.4f", fraction),
		"score", fmt.Sprintf("%.3f", score),
	)

	return Approval{
		Symbol:        symbol,
		Side:          side,
		SizedQuantity: sized / price,
		Notional:      sized,
		RiskScore:     score,
		Fraction:      fraction,
		ticket:        ticket,
	}, nil
}

// Release frees the position slot or the pending reduction held by an
// approval. Safe to call twice.
func (g *Gate) Release(a Approval) {
	if a.ticket == 0 {
		return
	}
	g.mu.Lock()
	delete(g.reservations, a.ticket)
	delete(g.reducing, a.ticket)
	g.mu.Unlock()
}

// MaxOrderNotional is the largest notional the gate would accept right now
// for the given balances, after Kelly sizing.
func (g *Gate) MaxOrderNotional(balances map[string]float64) float64 {
	var stats domain.WinStats
	if g.stats != nil {
		stats = g.stats.WinStats()
	}
	total := g.cfg.QuoteBalance(balances)
	return min(g.cfg.MaxPositionSize*total, total*g.cfg.sizingFraction(stats))
}

// UpdateDrawdown records the account balance, raising the peak and tripping
// the breaker when drawdown exceeds the soft or the hard threshold.
func (g *Gate) UpdateDrawdown(balance float64) domain.RiskState {
	g.mu.Lock()
	g.lastBalance = balance
	if balance > g.state.PeakBalance {
		g.state.PeakBalance = balance
	}
	dd := 0.0
	if g.state.PeakBalance > 0 {
		dd = (g.state.PeakBalance - balance) / g.state.PeakBalance
	}
	g.state.CurrentDrawdown = dd
	if dd > g.state.MaxDrawdown {
		g.state.MaxDrawdown = dd
	}

	tripped := ""
	if g.state.TradingEnabled {
		switch {
		case dd > g.cfg.MaxDrawdown:
			tripped = fmt.Sprintf("Max drawdown exceeded (%.2f%%)", dd*100)
		case dd > g.cfg.CircuitBreakerThreshold:
			tripped = fmt.Sprintf("Circuit breaker: drawdown %.2f%%", dd*100)
		}
		if tripped != "" {
			g.tripLocked(tripped)
		}
	}
	g.state.UpdatedAt = g.now().UTC()
	snap := g.snapshotLocked()
	g.mu.Unlock()

	if tripped != "" {
		g.breakerTripped(tripped, snap)
	} else if g.recorder != nil {
		g.recorder.RiskState(snap)
	}
	return snap
}

// ResetDailyLimits clears the daily P&L and re-enables trading. The peak
// restarts from the last balance seen by UpdateDrawdown.
func (g *Gate) ResetDailyLimits() {
	g.mu.Lock()
	g.state.DailyRealizedPnL = 0
	g.state.PeakBalance = g.lastBalance
	g.state.CurrentDrawdown = 0
	g.state.TradingEnabled = true
	g.state.DisabledReason = ""
	g.state.LastReset = g.now().UTC()
	snap := g.snapshotLocked()
	g.mu.Unlock()

	slog.Info("risk: daily limits reset")
	if g.recorder != nil {
		g.recorder.RiskState(snap)
	}
}

// RecordRealized adds realized P&L to the daily total.
func (g *Gate) RecordRealized(pnl float64) {
	if pnl == 0 {
		return
	}
	g.mu.Lock()
	g.state.DailyRealizedPnL += pnl
	snap := g.snapshotLocked()
	g.mu.Unlock()
	if g.recorder != nil {
		g.recorder.RiskState(snap)
	}
}

// SetCorrelation stores a symmetric correlation estimate for a symbol pair.
func (g *Gate) SetCorrelation(a, b string, rho float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Correlations[pairKey(a, b)] = rho
}

// TradingEnabled reports the breaker switch.
func (g *Gate) TradingEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.TradingEnabled
}

// State returns a copy of the risk state.
func (g *Gate) State() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// Restore replaces the risk state with a persisted one.
func (g *Gate) Restore(s domain.RiskState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s.Correlations == nil {
		s.Correlations = make(map[string]float64)
	}
	g.state = s
}

// Metrics is the read-only risk view for the presentation layer.
func (g *Gate) Metrics() domain.RiskMetrics {
	positions := g.positions.Positions()
	exposure := g.positions.Exposure()
	s := g.State()
	return domain.RiskMetrics{
		OpenPositions:   len(positions),
		TotalExposure:   exposure,
		DailyPnL:        s.DailyRealizedPnL,
		MaxDrawdown:     s.MaxDrawdown,
		CurrentDrawdown: s.CurrentDrawdown,
		PeakBalance:     s.PeakBalance,
		TradingEnabled:  s.TradingEnabled,
		DisabledReason:  s.DisabledReason,
		VaR95:           VaR(exposure, g.cfg.DailyVolatility, g.cfg.VaRConfidence),
		PositionDetails: positions,
	}
}

func (g *Gate) riskScore(notional, exposure, total float64) float64 {
	if total <= 0 {
		return 1
	}
	sizeRisk := 0.0
	if limit := total * g.cfg.MaxPositionSize; limit > 0 {
		sizeRisk = notional / limit
	}
	concentration := (exposure + notional) / total
	return clamp(0.3*sizeRisk+0.4*concentration+0.3*g.cfg.VolatilityEstimate, 0, 1)
}

func (g *Gate) heldSymbolsLocked(open []string) map[string]struct{} {
	held := make(map[string]struct{}, len(open)+len(g.reservations))
	for _, s := range open {
		held[s] = struct{}{}
	}
	for _, s := range g.reservations {
		held[s] = struct{}{}
	}
	return held
}

func (g *Gate) correlationLocked(a, b string) float64 {
	if rho, ok := g.state.Correlations[pairKey(a, b)]; ok {
		return rho
	}
	return g.cfg.DefaultCorrelation
}

func (g *Gate) tripLocked(reason string) {
	g.state.TradingEnabled = false
	g.state.DisabledReason = reason
}

func (g *Gate) snapshotLocked() domain.RiskState {
	s := g.state
	s.Correlations = make(map[string]float64, len(g.state.Correlations))
	for k, v := range g.state.Correlations {
		s.Correlations[k] = v
	}
	return s
}

func (g *Gate) breakerTripped(reason string, snap domain.RiskState) {
	slog.Warn("risk: circuit breaker tripped, trading disabled",
		"reason", reason,
		"daily_pnl", fmt.Sprintf("%.2f", snap.DailyRealizedPnL),
		"peak", fmt.Sprintf("%.2f", snap.PeakBalance),
		"drawdown", fmt.Sprintf("%.4f", snap.CurrentDrawdown),
	)
	if g.recorder != nil {
		g.recorder.RiskState(snap)
	}
	if g.publisher != nil {
		g.publisher.Publish(domain.NewEvent(domain.EventRiskBreaker, snap))
	}
}

func (g *Gate) reject(symbol, reason string) error {
	slog.Warn("risk: trade rejected", "symbol", symbol, "reason", reason)
	if g.recorder != nil {
		g.recorder.RiskRejected(reason)
	}
	return &domain.RiskRejectedError{Reason: reason}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
