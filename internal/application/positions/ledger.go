package positions

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// qtyEpsilon treats residual float noise as a flat position.
const qtyEpsilon = 1e-12

// Ledger owns the open-position map, keyed by symbol.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
	now       func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]*domain.Position),
		now:       time.Now,
	}
}

// Apply books a fill and returns what it did to the position, realized P&L
// included.
//
// Same-side fills average in. Opposite-side fills reduce the position; the
// position is removed when flat, and any overshoot opens the other side at
// the fill price.
func (l *Ledger) Apply(f domain.Fill) domain.Booking {
	if f.Quantity <= 0 || f.Price <= 0 {
		return domain.Booking{}
	}
	if f.At.IsZero() {
		f.At = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(f)
}

func (l *Ledger) applyLocked(f domain.Fill) domain.Booking {
	b := domain.Booking{OrderID: f.OrderID, Symbol: f.Symbol, Side: f.Side, Price: f.Price}

	p, ok := l.positions[f.Symbol]
	if !ok {
		l.open(f, f.Quantity)
		b.Opened = f.Quantity
		return b
	}

	if p.Side == f.Side {
		total := p.Quantity + f.Quantity
		p.AvgPrice = (p.Quantity*p.AvgPrice + f.Quantity*f.Price) / total
		p.Quantity = total
		p.Value = total * f.Price
		p.OrderIDs = appendID(p.OrderIDs, f.OrderID)
		b.Opened = f.Quantity
		return b
	}

	b.Reduced = math.Min(p.Quantity, f.Quantity)
	b.PriorAvgPrice = p.AvgPrice
	b.PriorEntry = p.EntryTime
	b.PriorOrderIDs = append([]string(nil), p.OrderIDs...)
	overshoot := f.Quantity - b.Reduced

	if p.Quantity-b.Reduced <= qtyEpsilon {
		b.Realized = l.closeLocked(f.Symbol, f.Price)
		if overshoot > qtyEpsilon {
			l.open(f, overshoot)
			b.Opened = overshoot
		}
		return b
	}

	b.Realized = realizedPnL(p.Side, p.AvgPrice, f.Price, b.Reduced)
	p.Quantity -= b.Reduced
	p.Value = p.Quantity * f.Price
	p.OrderIDs = appendID(p.OrderIDs, f.OrderID)
	return b
}

func (l *Ledger) open(f domain.Fill, qty float64) {
	l.positions[f.Symbol] = &domain.Position{
		Symbol:    f.Symbol,
		Side:      f.Side,
		Quantity:  qty,
		AvgPrice:  f.Price,
		Value:     qty * f.Price,
		EntryTime: f.At,
		OrderIDs:  appendID(nil, f.OrderID),
	}
}

// closeLocked removes the position at exitPrice and returns the realized P&L.
func (l *Ledger) closeLocked(symbol string, exitPrice float64) float64 {
	p, ok := l.positions[symbol]
	if !ok {
		return 0
	}
	delete(l.positions, symbol)
	return realizedPnL(p.Side, p.AvgPrice, exitPrice, p.Quantity)
}

// Rescind withdraws the part of a booking that never filled and returns the
// realized P&L it takes back.
//
// Fills consume the reduction first, so the unfilled quantity comes off the
// opened part before the reduced part is restored at its prior average
// price. A restored position keeps its original entry time.
func (l *Ledger) Rescind(b domain.Booking, unfilled float64) float64 {
	unfilled = math.Min(unfilled, b.Opened+b.Reduced)
	if unfilled <= qtyEpsilon {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromOpened := math.Min(unfilled, b.Opened)
	if fromOpened > qtyEpsilon {
		p, ok := l.positions[b.Symbol]
		if !ok || p.Side != b.Side {
			slog.Warn("positions: nothing to rescind",
				"symbol", b.Symbol, "side", b.Side, "qty", fromOpened, "order_id", b.OrderID)
		} else {
			p.Quantity -= math.Min(fromOpened, p.Quantity)
			if p.Quantity <= qtyEpsilon {
				delete(l.positions, b.Symbol)
			} else {
				p.Value = p.Quantity * p.AvgPrice
			}
		}
	}

	restore := unfilled - fromOpened
	if restore <= qtyEpsilon {
		return 0
	}
	prior := b.Side.Opposite()
	l.applyLocked(domain.Fill{
		Symbol:   b.Symbol,
		Side:     prior,
		Quantity: restore,
		Price:    b.PriorAvgPrice,
		At:       b.PriorEntry,
	})
	if p, ok := l.positions[b.Symbol]; ok && p.Side == prior {
		for _, id := range b.PriorOrderIDs {
			p.OrderIDs = appendID(p.OrderIDs, id)
		}
	}
	return realizedPnL(prior, b.PriorAvgPrice, b.Price, restore)
}

// Mark revalues a position at the latest price.
func (l *Ledger) Mark(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[symbol]; ok && price > 0 {
		p.Value = p.Quantity * price
	}
}

// Get returns a copy of the position for symbol.
func (l *Ledger) Get(symbol string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return copyPosition(p), true
}

// Positions returns copies of all open positions sorted by symbol.
func (l *Ledger) Positions() []domain.Position {
	l.mu.RLock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, copyPosition(p))
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Count is the number of open positions.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Symbols lists the symbols with an open position.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.positions))
	for s := range l.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Exposure is the sum of position values.
func (l *Ledger) Exposure() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, p := range l.positions {
		total += math.Abs(p.Value)
	}
	return total
}

func realizedPnL(side domain.Side, avg, exit, qty float64) float64 {
	if side == domain.SideBuy {
		return (exit - avg) * qty
	}
	return (avg - exit) * qty
}

func appendID(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func copyPosition(p *domain.Position) domain.Position {
	c := *p
	c.OrderIDs = append([]string(nil), p.OrderIDs...)
	return c
}
