package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInFlight is returned when the same symbol/venue pair is already executing.
	ErrInFlight = errors.New("arbitrage already in flight")

	// ErrBelowThreshold is returned for opportunities at or under MinSpread.
	ErrBelowThreshold = errors.New("net spread below threshold")

	// ErrShortCompensation means the compensating order left exposure behind.
	ErrShortCompensation = errors.New("compensation smaller than the executed leg")
)

// Exit reasons recorded on the round trips arbitrage orders close.
const (
	ReasonComplete     = "arbitrage_complete"
	ReasonCompensation = "compensation"
)

const qtyEpsilon = 1e-12

// Execution describes a completed paired execution.
type Execution struct {
	Opportunity domain.ArbitrageOpportunity
	Notional    float64
	Quantity    float64
	BuyOrder    domain.Order
	SellOrder   domain.Order
	Profit      float64 // realized, before fees
}

// dispatch runs Execute in the background, bounded by MaxExecutionTime.
func (s *Scanner) dispatch(ctx context.Context, opp domain.ArbitrageOpportunity) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		execCtx := ctx
		if s.cfg.MaxExecutionTime > 0 {
			var cancel context.CancelFunc
			execCtx, cancel = context.WithTimeout(ctx, s.cfg.MaxExecutionTime)
			defer cancel()
		}
		if _, err := s.Execute(execCtx, opp); err != nil {
			switch {
			case errors.Is(err, ErrInFlight):
				slog.Debug("arb: already executing", "key", opp.Key())
			case errors.Is(err, domain.ErrInsufficientLiquidity), errors.Is(err, ErrBelowThreshold):
				slog.Debug("arb: skipped", "key", opp.Key(), "err", err)
			default:
				var partial *domain.PartialArbitrageFailure
				if !errors.As(err, &partial) {
					slog.Warn("arb: execution failed", "key", opp.Key(), "err", err)
				}
			}
		}
	}()
}

// Execute sizes the opportunity and submits both legs concurrently. Only one
// execution per Key() runs at a time. If exactly one leg reaches its venue,
// the other side is compensated with an opposite market order and a
// *domain.PartialArbitrageFailure is returned. The order manager records the
// round trip when the second leg closes the first.
func (s *Scanner) Execute(ctx context.Context, opp domain.ArbitrageOpportunity) (Execution, error) {
	if s.orders == nil {
		return Execution{}, errors.New("arbitrage.Execute: no order manager")
	}
	if opp.NetSpread <= s.cfg.MinSpread {
		return Execution{}, fmt.Errorf("arbitrage.Execute %s: %.4f: %w", opp.Key(), opp.NetSpread, ErrBelowThreshold)
	}
	key := opp.Key()
	if !s.acquire(key) {
		return Execution{}, ErrInFlight
	}
	defer s.release(key)

	notional, err := s.size(ctx, opp)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientLiquidity) {
			s.skipped.Add(1)
		} else {
			s.failed.Add(1)
		}
		return Execution{}, err
	}
	qty := notional / opp.SellPrice

	buyIn := domain.OrderIntent{
		Strategy: StrategyID, Venue: opp.BuyVenue, Symbol: opp.Symbol,
		Side: domain.SideBuy, Quantity: qty, Type: domain.OrderMarket, Price: opp.BuyPrice,
		Reason: ReasonComplete,
	}
	sellIn := domain.OrderIntent{
		Strategy: StrategyID, Venue: opp.SellVenue, Symbol: opp.Symbol,
		Side: domain.SideSell, Quantity: qty, Type: domain.OrderMarket, Price: opp.SellPrice,
		Reason: ReasonComplete,
	}

	var (
		buy, sell       domain.Order
		buyErr, sellErr error
		g               errgroup.Group
	)
	g.Go(func() error {
		buy, buyErr = s.orders.Submit(ctx, buyIn)
		return nil
	})
	g.Go(func() error {
		sell, sellErr = s.orders.Submit(ctx, sellIn)
		return nil
	})
	_ = g.Wait()

	switch {
	case buyErr != nil && sellErr != nil:
		s.failed.Add(1)
		s.recordOutcome("failed")
		return Execution{}, fmt.Errorf("arbitrage.Execute %s: both legs failed: %w", key, errors.Join(buyErr, sellErr))
	case buyErr != nil || sellErr != nil:
		return Execution{}, s.partialFailure(ctx, opp, buy, buyErr, sell, sellErr)
	}

	slog.Info("arb: legs submitted",
		"key", key,
		"qty", fmt.Sprintf("%.8f", qty),
		"notional", fmt.Sprintf("%.2f", notional),
		"buy_order", buy.ID,
		"sell_order", sell.ID,
	)

	// The gate may clamp each leg differently; flatten the excess.
	if diff := buy.Quantity - sell.Quantity; math.Abs(diff) > qtyEpsilon {
		s.compensateExcess(ctx, opp, buy, sell, diff)
	}

	buy, sell = s.await(ctx, buy), s.await(ctx, sell)
	exec := Execution{
		Opportunity: opp,
		Notional:    notional,
		Quantity:    min(buy.Quantity, sell.Quantity),
		BuyOrder:    buy,
		SellOrder:   sell,
	}

	if buy.Status != domain.StatusFilled || sell.Status != domain.StatusFilled {
		slog.Warn("arb: legs not confirmed filled",
			"key", key, "buy_status", buy.Status, "sell_status", sell.Status)
		s.recordOutcome("unconfirmed")
		s.publish(domain.EventArbExecuted, exec)
		return exec, nil
	}

	filled := min(buy.Filled, sell.Filled)
	exec.Quantity = filled
	exec.Profit = filled * (sell.AveragePrice - buy.AveragePrice)

	s.executions.Add(1)
	s.recordOutcome("success")
	s.publish(domain.EventArbExecuted, exec)
	slog.Info("arb: executed",
		"key", key,
		"qty", fmt.Sprintf("%.8f", filled),
		"buy_price", fmt.Sprintf("%.2f", buy.AveragePrice),
		"sell_price", fmt.Sprintf("%.2f", sell.AveragePrice),
		"profit", fmt.Sprintf("%.2f", exec.Profit),
	)
	return exec, nil
}

// size returns the quote notional per leg.
func (s *Scanner) size(ctx context.Context, opp domain.ArbitrageOpportunity) (float64, error) {
	buyVenue, ok := s.venues.Get(opp.BuyVenue)
	if !ok {
		return 0, fmt.Errorf("arbitrage.size: %w: %s", domain.ErrUnknownVenue, opp.BuyVenue)
	}
	sellVenue, ok := s.venues.Get(opp.SellVenue)
	if !ok {
		return 0, fmt.Errorf("arbitrage.size: %w: %s", domain.ErrUnknownVenue, opp.SellVenue)
	}
	buyBal, err := buyVenue.GetBalance(ctx)
	if err != nil {
		return 0, &domain.ExchangeError{Venue: opp.BuyVenue, Op: "balance", Err: err}
	}

	_, quote, _ := strings.Cut(opp.Symbol, "/")
	notional := min(
		s.cfg.BalanceFraction*buyBal[quote],
		s.cfg.LiquidityFraction*opp.BuyVolume*opp.BuyPrice,
		s.cfg.LiquidityFraction*opp.SellVolume*opp.SellPrice,
	)
	if s.cfg.MaxTradeNotional > 0 {
		notional = min(notional, s.cfg.MaxTradeNotional)
	}
	if s.limiter != nil {
		sellBal, err := sellVenue.GetBalance(ctx)
		if err != nil {
			return 0, &domain.ExchangeError{Venue: opp.SellVenue, Op: "balance", Err: err}
		}
		notional = min(notional, s.limiter.MaxOrderNotional(buyBal), s.limiter.MaxOrderNotional(sellBal))
	}

	// The buy leg is the smaller notional of the two.
	if notional*opp.BuyPrice/opp.SellPrice < s.cfg.MinTradeNotional {
		return 0, fmt.Errorf("arbitrage.size %s: %.2f below minimum %.2f: %w",
			opp.Key(), notional, s.cfg.MinTradeNotional, domain.ErrInsufficientLiquidity)
	}
	return notional, nil
}

// partialFailure compensates the leg that reached its venue and reports both.
func (s *Scanner) partialFailure(ctx context.Context, opp domain.ArbitrageOpportunity,
	buy domain.Order, buyErr error, sell domain.Order, sellErr error) error {

	pf := &domain.PartialArbitrageFailure{
		Symbol:  opp.Symbol,
		BuyLeg:  legOutcome(opp.BuyVenue, domain.SideBuy, buy, buyErr),
		SellLeg: legOutcome(opp.SellVenue, domain.SideSell, sell, sellErr),
	}
	done := buy
	if buyErr != nil {
		done = sell
	}
	comp, err := s.compensate(ctx, done, done.Quantity)
	switch {
	case err != nil:
		pf.CompErr = err
		pf.Residual = done.Quantity - comp.Quantity
	default:
		pf.Compensated = true
	}

	s.partials.Add(1)
	s.recordOutcome("partial")
	s.publish(domain.EventArbPartialFailed, pf.Error())
	slog.Error("arb: partial execution",
		"key", opp.Key(),
		"buy_leg", pf.BuyLeg.String(),
		"sell_leg", pf.SellLeg.String(),
		"compensated", pf.Compensated,
		"residual", fmt.Sprintf("%.8f", pf.Residual),
		"comp_err", pf.CompErr,
	)
	return pf
}

// compensateExcess flattens the quantity one leg holds beyond the other.
func (s *Scanner) compensateExcess(ctx context.Context, opp domain.ArbitrageOpportunity, buy, sell domain.Order, diff float64) {
	larger := buy
	if diff < 0 {
		larger = sell
	}
	excess := math.Abs(diff)
	if _, err := s.compensate(ctx, larger, excess); err != nil {
		slog.Error("arb: excess compensation failed",
			"key", opp.Key(), "venue", larger.Venue, "excess", fmt.Sprintf("%.8f", excess), "err", err)
	}
}

// compensate submits an opposite market order for qty on the leg's venue.
// A placement smaller than qty returns the order with ErrShortCompensation.
func (s *Scanner) compensate(ctx context.Context, leg domain.Order, qty float64) (domain.Order, error) {
	o, err := s.orders.Submit(ctx, domain.OrderIntent{
		Strategy: StrategyID,
		Venue:    leg.Venue,
		Symbol:   leg.Symbol,
		Side:     leg.Side.Opposite(),
		Quantity: qty,
		Type:     domain.OrderMarket,
		Reason:   ReasonCompensation,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("arbitrage.compensate %s on %s: %w", leg.ID, leg.Venue, err)
	}
	slog.Warn("arb: compensating order submitted",
		"leg", leg.ID, "venue", leg.Venue, "side", o.Side, "qty", fmt.Sprintf("%.8f", o.Quantity), "order", o.ID)
	if qty-o.Quantity > qtyEpsilon {
		return o, fmt.Errorf("arbitrage.compensate %s on %s: placed %.8f of %.8f: %w",
			leg.ID, leg.Venue, o.Quantity, qty, ErrShortCompensation)
	}
	return o, nil
}

// await waits for a leg to leave supervision. On ctx expiry it returns the
// last known state.
func (s *Scanner) await(ctx context.Context, o domain.Order) domain.Order {
	final, err := s.orders.Wait(ctx, o.ID)
	if err != nil {
		slog.Warn("arb: leg wait interrupted", "order", o.ID, "err", err)
		return o
	}
	return final
}

func (s *Scanner) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Scanner) release(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

func (s *Scanner) recordOutcome(outcome string) {
	if s.recorder != nil {
		s.recorder.ArbitrageExecution(outcome)
	}
}

func legOutcome(venue string, side domain.Side, o domain.Order, err error) domain.LegOutcome {
	return domain.LegOutcome{
		Venue:    venue,
		Side:     side,
		OrderID:  o.ID,
		Quantity: o.Quantity,
		Status:   o.Status,
		Err:      err,
	}
}
