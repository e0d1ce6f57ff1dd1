package paper

// venue.go: venue simulado en memoria.
//
// Llena órdenes market al best ask/bid del book configurado, descuenta la fee
// del lado quote y mueve balances. Sirve para dry-run y para tests: se pueden
// inyectar fallos por operación y resolver órdenes a mano.

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/google/uuid"
)

// Op identifica una operación del venue para inyección de fallos.
type Op string

const (
	OpBalance   Op = "balance"
	OpOrderBook Op = "orderbook"
	OpPlace     Op = "place"
	OpCancel    Op = "cancel"
	OpStatus    Op = "status"
	OpPairs     Op = "pairs"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoLiquidity       = errors.New("no liquidity")
	ErrUnknownOrder      = errors.New("unknown order")
)

// PlacedOrder es el registro de una orden recibida por el venue.
type PlacedOrder struct {
	ID       string
	Symbol   string
	Side     domain.Side
	Type     domain.OrderType
	Quantity float64
	Price    float64
	At       time.Time
}

type order struct {
	PlacedOrder
	state  domain.VenueOrderState
	filled float64
	avg    float64
}

// Venue es un exchange simulado. Seguro para uso concurrente.
type Venue struct {
	name string
	fee  float64

	mu       sync.Mutex
	balances map[string]float64
	books    map[string]domain.OrderBook
	orders   map[string]*order
	placed   []PlacedOrder
	failures map[Op]error
	manual   bool
}

// New crea un venue vacío con la fee dada (fracción, 0.001 = 0.1%).
func New(name string, fee float64) *Venue {
	return &Venue{
		name:     name,
		fee:      fee,
		balances: make(map[string]float64),
		books:    make(map[string]domain.OrderBook),
		orders:   make(map[string]*order),
		failures: make(map[Op]error),
	}
}

// Name implementa ports.Exchange.
func (v *Venue) Name() string { return v.name }

// SetBalance fija el balance libre de un asset.
func (v *Venue) SetBalance(asset string, amount float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[asset] = amount
}

// SetBook reemplaza el book de un símbolo y cruza las órdenes limit abiertas.
func (v *Venue) SetBook(symbol string, bids, asks []domain.BookEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.books[symbol] = domain.OrderBook{
		Venue:  v.name,
		Symbol: symbol,
		Bids:   append([]domain.BookEntry(nil), bids...),
		Asks:   append([]domain.BookEntry(nil), asks...),
	}
	v.matchOpenLocked(symbol)
}

// SetQuote es un atajo para un book de un nivel por lado.
func (v *Venue) SetQuote(symbol string, bid, bidSize, ask, askSize float64) {
	v.SetBook(symbol,
		[]domain.BookEntry{{Price: bid, Size: bidSize}},
		[]domain.BookEntry{{Price: ask, Size: askSize}},
	)
}

// SetManualFills hace que las órdenes market queden abiertas hasta Resolve.
func (v *Venue) SetManualFills(manual bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.manual = manual
}

// Fail hace que la operación devuelva err hasta que se limpie con Fail(op, nil).
func (v *Venue) Fail(op Op, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil {
		delete(v.failures, op)
		return
	}
	v.failures[op] = err
}

// Resolve fija el estado que el venue reportará para una orden.
func (v *Venue) Resolve(id string, state domain.VenueOrderState, filled, avg float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	o.state, o.filled, o.avg = state, filled, avg
	return nil
}

// Placed devuelve las órdenes recibidas, en orden de llegada.
func (v *Venue) Placed() []PlacedOrder {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]PlacedOrder(nil), v.placed...)
}

// Balances devuelve una copia de todos los balances.
func (v *Venue) Balances() map[string]float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]float64, len(v.balances))
	for k, b := range v.balances {
		out[k] = b
	}
	return out
}

// GetBalance implementa ports.Exchange.
func (v *Venue) GetBalance(_ context.Context) (map[string]float64, error) {
	if err := v.failure(OpBalance); err != nil {
		return nil, err
	}
	return v.Balances(), nil
}

// GetOrderBook implementa ports.Exchange.
func (v *Venue) GetOrderBook(_ context.Context, symbol string, depth int) (domain.OrderBook, error) {
	if err := v.failure(OpOrderBook); err != nil {
		return domain.OrderBook{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.books[symbol]
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("paper %s: symbol %s: %w", v.name, symbol, ErrNoLiquidity)
	}
	if depth > 0 {
		b.Bids = b.Bids[:min(depth, len(b.Bids))]
		b.Asks = b.Asks[:min(depth, len(b.Asks))]
	}
	b.Bids = append([]domain.BookEntry(nil), b.Bids...)
	b.Asks = append([]domain.BookEntry(nil), b.Asks...)
	return b, nil
}

// GetAvailablePairs implementa ports.Exchange.
func (v *Venue) GetAvailablePairs(_ context.Context) ([]string, error) {
	if err := v.failure(OpPairs); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.books))
	for s := range v.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// PlaceMarketOrder implementa ports.Exchange.
func (v *Venue) PlaceMarketOrder(_ context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderAck, error) {
	if err := v.failure(OpPlace); err != nil {
		return domain.OrderAck{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	book, ok := v.books[symbol]
	if !ok {
		return domain.OrderAck{}, fmt.Errorf("paper %s: %s: %w", v.name, symbol, ErrNoLiquidity)
	}
	price := book.BestAsk()
	if side == domain.SideSell {
		price = book.BestBid()
	}
	if price <= 0 {
		return domain.OrderAck{}, fmt.Errorf("paper %s: %s %s: %w", v.name, symbol, side, ErrNoLiquidity)
	}

	o := v.newOrderLocked(symbol, side, domain.OrderMarket, quantity, price)
	if !v.manual {
		if err := v.settleLocked(o, price); err != nil {
			delete(v.orders, o.ID)
			return domain.OrderAck{}, err
		}
	}
	v.placed = append(v.placed, o.PlacedOrder)
	return domain.OrderAck{ID: o.ID, Price: price, Timestamp: o.At}, nil
}

// PlaceLimitOrder implementa ports.Exchange. La orden se llena en cuanto el
// book cruza el precio límite.
func (v *Venue) PlaceLimitOrder(_ context.Context, symbol string, side domain.Side, quantity, price float64) (domain.OrderAck, error) {
	if err := v.failure(OpPlace); err != nil {
		return domain.OrderAck{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	o := v.newOrderLocked(symbol, side, domain.OrderLimit, quantity, price)
	v.placed = append(v.placed, o.PlacedOrder)
	if !v.manual {
		v.matchOpenLocked(symbol)
	}
	return domain.OrderAck{ID: o.ID, Price: price, Timestamp: o.At}, nil
}

// CancelOrder implementa ports.Exchange.
func (v *Venue) CancelOrder(_ context.Context, id, _ string) (bool, error) {
	if err := v.failure(OpCancel); err != nil {
		return false, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[id]
	if !ok {
		return false, fmt.Errorf("paper %s: %s: %w", v.name, id, ErrUnknownOrder)
	}
	if o.state != domain.VenueOpen {
		return false, nil
	}
	o.state = domain.VenueCanceled
	return true, nil
}

// GetOrderStatus implementa ports.Exchange.
func (v *Venue) GetOrderStatus(_ context.Context, id, _ string) (domain.OrderStatusReport, error) {
	if err := v.failure(OpStatus); err != nil {
		return domain.OrderStatusReport{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[id]
	if !ok {
		return domain.OrderStatusReport{}, fmt.Errorf("paper %s: %s: %w", v.name, id, ErrUnknownOrder)
	}
	return domain.OrderStatusReport{State: o.state, Filled: o.filled, AveragePrice: o.avg}, nil
}

// Walk mueve todos los books con un random walk hasta que ctx termine.
// volatility es la desviación relativa por paso.
func (v *Venue) Walk(ctx context.Context, interval time.Duration, volatility float64, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.mu.Lock()
			for symbol, b := range v.books {
				shift := 1 + rng.NormFloat64()*volatility
				for i := range b.Bids {
					b.Bids[i].Price *= shift
				}
				for i := range b.Asks {
					b.Asks[i].Price *= shift
				}
				v.books[symbol] = b
				v.matchOpenLocked(symbol)
			}
			v.mu.Unlock()
		}
	}
}

func (v *Venue) newOrderLocked(symbol string, side domain.Side, typ domain.OrderType, qty, price float64) *order {
	o := &order{
		PlacedOrder: PlacedOrder{
			ID:       uuid.New().String(),
			Symbol:   symbol,
			Side:     side,
			Type:     typ,
			Quantity: qty,
			Price:    price,
			At:       time.Now().UTC(),
		},
		state: domain.VenueOpen,
	}
	v.orders[o.ID] = o
	return o
}

// settleLocked mueve balances y cierra la orden al precio dado.
func (v *Venue) settleLocked(o *order, price float64) error {
	base, quote, ok := strings.Cut(o.Symbol, "/")
	if !ok {
		return fmt.Errorf("paper %s: bad symbol %q", v.name, o.Symbol)
	}
	cost := o.Quantity * price
	fee := cost * v.fee
	switch o.Side {
	case domain.SideBuy:
		if v.balances[quote] < cost+fee {
			return fmt.Errorf("paper %s: buy %s needs %.2f %s: %w", v.name, o.Symbol, cost+fee, quote, ErrInsufficientFunds)
		}
		v.balances[quote] -= cost + fee
		v.balances[base] += o.Quantity
	case domain.SideSell:
		if v.balances[base] < o.Quantity {
			return fmt.Errorf("paper %s: sell %s needs %.8f %s: %w", v.name, o.Symbol, o.Quantity, base, ErrInsufficientFunds)
		}
		v.balances[base] -= o.Quantity
		v.balances[quote] += cost - fee
	}
	o.state = domain.VenueClosed
	o.filled = o.Quantity
	o.avg = price
	return nil
}

func (v *Venue) matchOpenLocked(symbol string) {
	if v.manual {
		return
	}
	book, ok := v.books[symbol]
	if !ok {
		return
	}
	for _, o := range v.orders {
		if o.Symbol != symbol || o.Type != domain.OrderLimit || o.state != domain.VenueOpen {
			continue
		}
		switch {
		case o.Side == domain.SideBuy && book.BestAsk() > 0 && book.BestAsk() <= o.Price:
			_ = v.settleLocked(o, book.BestAsk())
		case o.Side == domain.SideSell && book.BestBid() >= o.Price:
			_ = v.settleLocked(o, book.BestBid())
		}
	}
}

func (v *Venue) failure(op Op) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failures[op]
}
