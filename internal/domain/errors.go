package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrUnknownVenue          = errors.New("unknown venue")
	ErrNoPrice               = errors.New("no price available")
	ErrOrderNotFound         = errors.New("order not found")
	ErrTradeNotFound         = errors.New("trade not found")
	ErrInvalidIntent         = errors.New("invalid order intent")
)

// RiskRejectedError is returned when the risk gate declines an intent.
// The trade never reaches a venue.
type RiskRejectedError struct {
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return "risk rejected: " + e.Reason
}

// ExchangeError wraps any failure talking to a venue.
type ExchangeError struct {
	Venue string
	Op    string
	Err   error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange %s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// OrderTimeoutError means supervision ran out of polls before the venue
// reported a terminal status. The order state is unknown.
type OrderTimeoutError struct {
	OrderID string
	Polls   int
}

func (e *OrderTimeoutError) Error() string {
	return fmt.Sprintf("order %s unresolved after %d polls", e.OrderID, e.Polls)
}

// PartialArbitrageFailure means one arbitrage leg executed and the other did not.
// Residual is the executed quantity the compensation did not cover.
type PartialArbitrageFailure struct {
	Symbol      string
	BuyLeg      LegOutcome
	SellLeg     LegOutcome
	Compensated bool
	Residual    float64
	CompErr     error
}

func (e *PartialArbitrageFailure) Error() string {
	msg := fmt.Sprintf("partial arbitrage failure on %s: buy=[%s] sell=[%s]", e.Symbol, e.BuyLeg, e.SellLeg)
	if e.Compensated {
		return msg + " (compensated)"
	}
	if e.CompErr != nil {
		return msg + fmt.Sprintf(" (compensation failed, residual %.8f: %v)", e.Residual, e.CompErr)
	}
	return msg
}
