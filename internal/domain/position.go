package domain

import "time"

// Position is the open exposure on one symbol.
type Position struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Quantity  float64   `json:"quantity"`
	AvgPrice  float64   `json:"avg_price"`
	Value     float64   `json:"value"` // quantity × last known price
	EntryTime time.Time `json:"entry_time"`
	OrderIDs  []string  `json:"order_ids"`
}

// PnLAt is the unrealized P&L if the position were closed at price.
func (p Position) PnLAt(price float64) float64 {
	if p.Side == SideBuy {
		return (price - p.AvgPrice) * p.Quantity
	}
	return (p.AvgPrice - price) * p.Quantity
}

// Fill is a quantity executed at a price for one order.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
	At       time.Time
}

// Booking records what one provisional fill did to a position, so the part
// that never fills can be withdrawn later.
type Booking struct {
	OrderID string
	Symbol  string
	Side    Side    // fill side
	Price   float64 // fill price
	Opened  float64 // added on Side, averaged in or opened past flat
	Reduced float64 // closed against the prior opposite position

	PriorAvgPrice float64
	PriorEntry    time.Time
	PriorOrderIDs []string
	Realized      float64
}

// Empty reports whether the booking changed nothing.
func (b Booking) Empty() bool {
	return b.Opened == 0 && b.Reduced == 0
}
