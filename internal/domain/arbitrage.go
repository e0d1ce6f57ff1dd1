package domain

import (
	"fmt"
	"time"
)

// ArbitrageOpportunity es una diferencia de precio entre dos venues para el
// mismo símbolo. Se recalcula en cada ciclo y nunca se muta.
type ArbitrageOpportunity struct {
	Symbol      string    `json:"symbol"`
	BuyVenue    string    `json:"buy_exchange"`
	BuyPrice    float64   `json:"buy_price"`  // best ask en BuyVenue
	BuyVolume   float64   `json:"buy_volume"` // volumen disponible al best ask
	SellVenue   string    `json:"sell_exchange"`
	SellPrice   float64   `json:"sell_price"`   // best bid en SellVenue
	SellVolume  float64   `json:"sell_volume"`  // volumen disponible al best bid
	GrossSpread float64   `json:"gross_spread"` // (sell - buy) / buy
	NetSpread   float64   `json:"net_spread"`   // gross - fees de ambos lados
	BuyFee      float64   `json:"buy_fee"`
	SellFee     float64   `json:"sell_fee"`
	DetectedAt  time.Time `json:"timestamp"`
}

// Key identifica la ejecución en curso de esta oportunidad (symbol:buy:sell).
func (o ArbitrageOpportunity) Key() string {
	return fmt.Sprintf("%s:%s:%s", o.Symbol, o.BuyVenue, o.SellVenue)
}

// NetSpreadFor calcula el spread neto de comprar a ask en un venue y vender a
// bid en otro, descontando la fee de cada lado.
func NetSpreadFor(ask, bid, buyFee, sellFee float64) (gross, net float64) {
	if ask <= 0 {
		return 0, 0
	}
	gross = (bid - ask) / ask
	return gross, gross - buyFee - sellFee
}

// LegOutcome describe cómo terminó una pata de un arbitraje.
type LegOutcome struct {
	Venue    string
	Side     Side
	OrderID  string
	Quantity float64
	Status   OrderStatus
	Err      error
}

func (l LegOutcome) String() string {
	if l.Err != nil {
		return fmt.Sprintf("%s %s on %s failed: %v", l.Side, formatQty(l.Quantity), l.Venue, l.Err)
	}
	return fmt.Sprintf("%s %s on %s %s (order %s)", l.Side, formatQty(l.Quantity), l.Venue, l.Status, l.OrderID)
}

// Succeeded es true si la pata llegó al venue.
func (l LegOutcome) Succeeded() bool {
	return l.Err == nil && l.OrderID != ""
}

func formatQty(q float64) string {
	return fmt.Sprintf("%.8g", q)
}
