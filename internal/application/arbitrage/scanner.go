package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

// StrategyID is the strategy tag used for arbitrage orders and trades.
const StrategyID = "arbitrage"

// Config holds the scanner settings.
type Config struct {
	CheckInterval     time.Duration
	MinSpread         float64            // net spread threshold, fraction
	DefaultFee        float64            // taker fee when a venue has none configured
	Fees              map[string]float64 // venue → taker fee
	BalanceFraction   float64            // of buy-venue quote balance
	LiquidityFraction float64            // of top-of-book volume on each side
	MinTradeNotional  float64
	MaxTradeNotional  float64
	BookDepth         int
	MaxConcurrency    int // quote fetches in flight per cycle
	MaxExecutionTime  time.Duration
	Symbols           []string // optional allow-list
	AutoExecute       bool
	DryRun            bool // single cycle, no execution
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     time.Second,
		MinSpread:         0.005,
		DefaultFee:        0.001,
		BalanceFraction:   0.3,
		LiquidityFraction: 0.5,
		MinTradeNotional:  50,
		MaxTradeNotional:  5000,
		BookDepth:         5,
		MaxConcurrency:    8,
		MaxExecutionTime:  30 * time.Second,
		AutoExecute:       true,
	}
}

func (c Config) fee(venue string) float64 {
	if f, ok := c.Fees[venue]; ok {
		return f
	}
	return c.DefaultFee
}

// Venues resolves the venue adapters the scanner compares.
type Venues interface {
	Get(name string) (ports.Exchange, bool)
	All() []ports.Exchange
}

// OrderSubmitter is the order lifecycle manager as seen by the executor.
type OrderSubmitter interface {
	Submit(ctx context.Context, in domain.OrderIntent) (domain.Order, error)
	Wait(ctx context.Context, id string) (domain.Order, error)
}

// SizeLimiter caps a leg at what the risk gate would approve unclamped.
type SizeLimiter interface {
	MaxOrderNotional(balances map[string]float64) float64
}

// Recorder receives arbitrage telemetry.
type Recorder interface {
	ArbitrageOpportunity(symbol string)
	ArbitrageExecution(outcome string)
}

// Stats are cumulative scanner counters.
type Stats struct {
	Cycles           int64 `json:"cycles"`
	Opportunities    int64 `json:"opportunities"`
	Executions       int64 `json:"executions"`
	PartialFailures  int64 `json:"partial_failures"`
	Failed           int64 `json:"failed"`
	SkippedLiquidity int64 `json:"skipped_liquidity"`
	InFlight         int   `json:"in_flight"`
}

// Scanner finds cross-venue spreads and executes them through the order manager.
type Scanner struct {
	cfg       Config
	venues    Venues
	orders    OrderSubmitter
	limiter   SizeLimiter
	notifiers []ports.OpportunityNotifier
	publisher ports.EventPublisher
	recorder  Recorder

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup

	cycles, opportunities, executions, partials, failed, skipped atomic.Int64
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithSizeLimiter caps leg size by the risk gate's current limit.
func WithSizeLimiter(l SizeLimiter) Option { return func(s *Scanner) { s.limiter = l } }

// WithNotifiers adds opportunity notifiers.
func WithNotifiers(n ...ports.OpportunityNotifier) Option {
	return func(s *Scanner) { s.notifiers = append(s.notifiers, n...) }
}

// WithPublisher publishes arbitrage events.
func WithPublisher(p ports.EventPublisher) Option { return func(s *Scanner) { s.publisher = p } }

// WithRecorder records arbitrage telemetry.
func WithRecorder(r Recorder) Option { return func(s *Scanner) { s.recorder = r } }

// New creates a scanner. orders may be nil when only detection is needed.
func New(cfg Config, venues Venues, orders OrderSubmitter, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:      cfg,
		venues:   venues,
		orders:   orders,
		inFlight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run scans every CheckInterval until ctx is cancelled. With DryRun it runs a
// single cycle.
func (s *Scanner) Run(ctx context.Context) error {
	slog.Info("arb scanner starting",
		"interval", s.cfg.CheckInterval,
		"min_spread", s.cfg.MinSpread,
		"venues", len(s.venues.All()),
		"auto_execute", s.cfg.AutoExecute && !s.cfg.DryRun,
	)
	defer s.wg.Wait()

	if err := s.runCycle(ctx); err != nil {
		slog.Error("arb: scan cycle failed", "err", err)
		if s.cfg.DryRun {
			return err
		}
	}
	if s.cfg.DryRun {
		return nil
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("arb scanner stopped")
			return nil
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				slog.Error("arb: scan cycle failed", "err", err)
			}
		}
	}
}

// RunOnce performs one detection pass without executing.
func (s *Scanner) RunOnce(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	return s.Scan(ctx)
}

// Scan returns the best opportunity per symbol whose net spread exceeds
// MinSpread, ordered by net spread descending.
func (s *Scanner) Scan(ctx context.Context) ([]domain.ArbitrageOpportunity, error) {
	holders, err := s.commonSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("arbitrage.Scan: %w", err)
	}
	quotes := s.fetchQuotes(ctx, holders)

	now := time.Now().UTC()
	opps := make([]domain.ArbitrageOpportunity, 0, len(quotes))
	for symbol, qs := range quotes {
		if opp, ok := bestOpportunity(symbol, qs, s.cfg.fee, s.cfg.MinSpread, now); ok {
			opps = append(opps, opp)
		}
	}
	sort.Slice(opps, func(i, j int) bool {
		if opps[i].NetSpread != opps[j].NetSpread {
			return opps[i].NetSpread > opps[j].NetSpread
		}
		return opps[i].Symbol < opps[j].Symbol
	})
	return opps, nil
}

// Wait blocks until every dispatched execution has finished.
func (s *Scanner) Wait() {
	s.wg.Wait()
}

// Stats returns a snapshot of the counters.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	inFlight := len(s.inFlight)
	s.mu.Unlock()
	return Stats{
		Cycles:           s.cycles.Load(),
		Opportunities:    s.opportunities.Load(),
		Executions:       s.executions.Load(),
		PartialFailures:  s.partials.Load(),
		Failed:           s.failed.Load(),
		SkippedLiquidity: s.skipped.Load(),
		InFlight:         inFlight,
	}
}

func (s *Scanner) runCycle(ctx context.Context) error {
	start := time.Now()
	opps, err := s.Scan(ctx)
	if err != nil {
		return err
	}
	s.cycles.Add(1)
	s.opportunities.Add(int64(len(opps)))

	for _, opp := range opps {
		slog.Info("arb: opportunity",
			"symbol", opp.Symbol,
			"buy", opp.BuyVenue,
			"sell", opp.SellVenue,
			"net_spread", fmt.Sprintf("%.4f%%", opp.NetSpread*100),
		)
		if s.recorder != nil {
			s.recorder.ArbitrageOpportunity(opp.Symbol)
		}
		s.publish(domain.EventArbOpportunity, opp)
	}
	if len(opps) > 0 {
		for _, n := range s.notifiers {
			if err := n.NotifyOpportunities(ctx, opps); err != nil {
				slog.Warn("arb: notifier error", "err", err)
			}
		}
	}

	if s.cfg.AutoExecute && !s.cfg.DryRun && s.orders != nil {
		for _, opp := range opps {
			s.dispatch(ctx, opp)
		}
	}

	slog.Debug("arb: scan cycle complete",
		"opportunities", len(opps),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (s *Scanner) publish(t domain.EventType, payload any) {
	if s.publisher != nil {
		s.publisher.Publish(domain.NewEvent(t, payload))
	}
}
