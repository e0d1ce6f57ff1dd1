package domain

import (
	"fmt"
	"time"
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType is market or limit.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderStatus represents the lifecycle of an order inside the core.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusFailed          OrderStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusPartiallyFilled || next.Terminal()
	case StatusPartiallyFilled:
		return next == StatusFilled || next == StatusCancelled
	}
	return false
}

// VenueOrderState is the status string reported by a venue.
type VenueOrderState string

const (
	VenueOpen     VenueOrderState = "open"
	VenueClosed   VenueOrderState = "closed"
	VenueCanceled VenueOrderState = "canceled"
)

// OrderIntent is what a strategy asks the core to execute.
type OrderIntent struct {
	Strategy string
	Venue    string
	Symbol   string
	Side     Side
	Quantity float64 // base units
	Type     OrderType
	Price    float64 // 0 for market orders resolves via latest price
	Reason   string  // exit reason recorded if the order closes a position
}

// Validate checks the fields that do not depend on market state.
func (i OrderIntent) Validate() error {
	switch {
	case i.Venue == "":
		return fmt.Errorf("%w: venue is required", ErrInvalidIntent)
	case i.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidIntent)
	case !i.Side.Valid():
		return fmt.Errorf("%w: side %q", ErrInvalidIntent, i.Side)
	case i.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidIntent)
	case i.Type == OrderLimit && i.Price <= 0:
		return fmt.Errorf("%w: limit order needs a price", ErrInvalidIntent)
	case i.Type != OrderMarket && i.Type != OrderLimit:
		return fmt.Errorf("%w: order type %q", ErrInvalidIntent, i.Type)
	}
	return nil
}

// OrderAck is the venue response to a placement.
type OrderAck struct {
	ID        string
	Price     float64
	Timestamp time.Time
}

// OrderStatusReport is what a venue says about an order.
type OrderStatusReport struct {
	State        VenueOrderState
	Filled       float64
	AveragePrice float64
}

// Order is an order tracked by the lifecycle manager.
type Order struct {
	ID           string      `json:"id"` // internal correlation id (UUID)
	ExchangeID   string      `json:"exchange_id,omitempty"`
	Strategy     string      `json:"strategy,omitempty"`
	Venue        string      `json:"venue"`
	Symbol       string      `json:"symbol"`
	Side         Side        `json:"side"`
	Type         OrderType   `json:"type"`
	Quantity     float64     `json:"quantity"`  // after risk sizing
	Requested    float64     `json:"requested"` // as asked by the strategy
	Price        float64     `json:"price"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	TerminalAt   time.Time   `json:"terminal_at,omitzero"`
	Filled       float64     `json:"filled"`
	AveragePrice float64     `json:"average_price"`
	Error        string      `json:"error,omitempty"`
}

// Notional returns quantity × price.
func (o Order) Notional() float64 {
	return o.Quantity * o.Price
}

// ExecutionTime is the time from creation to the terminal state.
func (o Order) ExecutionTime() time.Duration {
	if o.TerminalAt.IsZero() {
		return 0
	}
	return o.TerminalAt.Sub(o.CreatedAt)
}

// OrderStats summarizes the order history.
type OrderStats struct {
	TotalOrders      int     `json:"total_orders"`
	FilledOrders     int     `json:"filled_orders"`
	CancelledOrders  int     `json:"cancelled_orders"`
	FailedOrders     int     `json:"failed_orders"`
	ActiveOrders     int     `json:"active_orders"`
	Unresolved       int     `json:"unresolved_orders"`
	FillRate         float64 `json:"fill_rate"`
	AvgExecutionTime float64 `json:"avg_execution_time"` // seconds
}
