package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tradecore/internal/ports"
)

// Registry maps venue names to adapters and resolves latest prices across them.
type Registry struct {
	venues map[string]ports.Exchange
	order  []string
}

// NewRegistry registers venues in priority order. Later duplicates replace earlier ones.
func NewRegistry(venues ...ports.Exchange) *Registry {
	r := &Registry{venues: make(map[string]ports.Exchange, len(venues))}
	for _, v := range venues {
		r.Add(v)
	}
	return r
}

// Add registers a venue.
func (r *Registry) Add(v ports.Exchange) {
	if _, exists := r.venues[v.Name()]; !exists {
		r.order = append(r.order, v.Name())
	}
	r.venues[v.Name()] = v
}

// Get returns the venue by name.
func (r *Registry) Get(name string) (ports.Exchange, bool) {
	v, ok := r.venues[name]
	return v, ok
}

// All returns the venues in priority order.
func (r *Registry) All() []ports.Exchange {
	out := make([]ports.Exchange, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.venues[n])
	}
	return out
}

// Names returns the venue names in priority order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// LatestPrice returns the top-of-book midpoint from the first venue that
// quotes symbol. It errors only when every venue failed.
func (r *Registry) LatestPrice(ctx context.Context, symbol string) (float64, bool, error) {
	var errs []error
	for _, n := range r.order {
		book, err := r.venues[n].GetOrderBook(ctx, symbol, 1)
		if err != nil {
			slog.Debug("exchange: price lookup failed", "venue", n, "symbol", symbol, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
			continue
		}
		if mid := book.Midpoint(); mid > 0 {
			return mid, true, nil
		}
	}
	if len(errs) > 0 && len(errs) == len(r.order) {
		return 0, false, fmt.Errorf("exchange.LatestPrice %s: %w", symbol, errors.Join(errs...))
	}
	return 0, false, nil
}
