package domain

import "time"

// OrderBook representa el libro de órdenes de un símbolo en un venue.
type OrderBook struct {
	Venue  string
	Symbol string
	Bids   []BookEntry // ordenados mayor a menor precio
	Asks   []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Quote resume el top-of-book: best bid/ask y el volumen disponible en cada lado.
func (ob OrderBook) Quote() (Quote, bool) {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return Quote{}, false
	}
	return Quote{
		Venue:     ob.Venue,
		Symbol:    ob.Symbol,
		Bid:       ob.Bids[0].Price,
		BidVolume: ob.Bids[0].Size,
		Ask:       ob.Asks[0].Price,
		AskVolume: ob.Asks[0].Size,
		FetchedAt: time.Now(),
	}, true
}

// Quote es el top-of-book de un símbolo en un venue en un instante.
type Quote struct {
	Venue     string
	Symbol    string
	Bid       float64
	BidVolume float64
	Ask       float64
	AskVolume float64
	FetchedAt time.Time
}
