package arbitrage

// quotes.go: descubrimiento de símbolos comunes y fetch concurrente del
// top-of-book. Un venue que falla queda fuera del ciclo.

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
	"golang.org/x/sync/errgroup"
)

var errTooFewVenues = errors.New("arbitrage needs at least two venues")

// commonSymbols maps every symbol listed on two or more venues to those venues.
func (s *Scanner) commonSymbols(ctx context.Context) (map[string][]ports.Exchange, error) {
	venues := s.venues.All()
	if len(venues) < 2 {
		return nil, errTooFewVenues
	}

	pairs := make([][]string, len(venues))
	var g errgroup.Group
	for i, v := range venues {
		i, v := i, v
		g.Go(func() error {
			ps, err := v.GetAvailablePairs(ctx)
			if err != nil {
				slog.Warn("arb: pairs unavailable, venue excluded", "venue", v.Name(), "err", err)
				return nil
			}
			pairs[i] = ps
			return nil
		})
	}
	_ = g.Wait()

	var allow map[string]bool
	if len(s.cfg.Symbols) > 0 {
		allow = make(map[string]bool, len(s.cfg.Symbols))
		for _, sym := range s.cfg.Symbols {
			allow[sym] = true
		}
	}

	holders := make(map[string][]ports.Exchange)
	for i, ps := range pairs {
		for _, sym := range ps {
			if allow != nil && !allow[sym] {
				continue
			}
			holders[sym] = append(holders[sym], venues[i])
		}
	}
	for sym, vs := range holders {
		if len(vs) < 2 {
			delete(holders, sym)
		}
	}
	return holders, nil
}

// fetchQuotes fetches the top of book for every (symbol, venue) pair with at
// most MaxConcurrency requests in flight. Symbols left with fewer than two
// quotes are dropped.
func (s *Scanner) fetchQuotes(ctx context.Context, holders map[string][]ports.Exchange) map[string][]domain.Quote {
	var (
		mu     sync.Mutex
		quotes = make(map[string][]domain.Quote, len(holders))
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxConcurrency > 0 {
		g.SetLimit(s.cfg.MaxConcurrency)
	}
	for symbol, vs := range holders {
		for _, v := range vs {
			symbol, v := symbol, v
			g.Go(func() error {
				book, err := v.GetOrderBook(gctx, symbol, s.cfg.BookDepth)
				if err != nil {
					slog.Debug("arb: book unavailable", "venue", v.Name(), "symbol", symbol, "err", err)
					return nil
				}
				q, ok := book.Quote()
				if !ok {
					return nil
				}
				q.Venue, q.Symbol = v.Name(), symbol
				mu.Lock()
				quotes[symbol] = append(quotes[symbol], q)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	for symbol, qs := range quotes {
		if len(qs) < 2 {
			delete(quotes, symbol)
			continue
		}
		sort.Slice(qs, func(i, j int) bool { return qs[i].Venue < qs[j].Venue })
	}
	return quotes
}
