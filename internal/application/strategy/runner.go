package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Submitter es el order manager visto desde el runner.
type Submitter interface {
	Submit(ctx context.Context, in domain.OrderIntent) (domain.Order, error)
}

// RunnerConfig fija cada cuánto se consulta cada estrategia.
type RunnerConfig struct {
	DefaultInterval time.Duration
	Intervals       map[string]time.Duration // por ID
}

// Counts son los contadores de intents por estrategia.
type Counts struct {
	Cycles    int `json:"cycles"`
	Produced  int `json:"produced"`
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

// Runner ejecuta una goroutine por estrategia y envía sus intents al order manager.
type Runner struct {
	registry *Registry
	orders   Submitter
	cfg      RunnerConfig

	mu     sync.Mutex
	counts map[string]*Counts
}

// NewRunner crea el runner.
func NewRunner(registry *Registry, orders Submitter, cfg RunnerConfig) *Runner {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 10 * time.Second
	}
	return &Runner{
		registry: registry,
		orders:   orders,
		cfg:      cfg,
		counts:   make(map[string]*Counts),
	}
}

// Run arranca todas las estrategias registradas y bloquea hasta que ctx se cancela.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range r.registry.List() {
		s := s
		interval := r.interval(s.ID())
		slog.Info("strategy: starting", "id", s.ID(), "kind", s.Kind(), "interval", interval)
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				r.RunOnce(ctx, s)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// RunOnce ejecuta un ciclo de una estrategia: produce intents y los envía.
func (r *Runner) RunOnce(ctx context.Context, s Strategy) {
	intents, err := s.ProduceIntents(ctx)
	r.bump(s.ID(), func(c *Counts) {
		c.Cycles++
		c.Produced += len(intents)
		if err != nil {
			c.Errors++
		}
	})
	if err != nil {
		slog.Warn("strategy: produce intents failed", "id", s.ID(), "err", err)
		return
	}

	for _, in := range intents {
		if ctx.Err() != nil {
			return
		}
		if in.Strategy == "" {
			in.Strategy = s.ID()
		}
		o, err := r.orders.Submit(ctx, in)
		var rejected *domain.RiskRejectedError
		switch {
		case errors.As(err, &rejected):
			slog.Warn("strategy: intent rejected", "id", s.ID(), "symbol", in.Symbol, "reason", rejected.Reason)
			r.bump(s.ID(), func(c *Counts) { c.Rejected++ })
		case err != nil:
			slog.Warn("strategy: submit failed", "id", s.ID(), "symbol", in.Symbol, "err", err)
			r.bump(s.ID(), func(c *Counts) { c.Failed++ })
		default:
			slog.Info("strategy: order submitted",
				"id", s.ID(),
				"order", o.ID,
				"symbol", o.Symbol,
				"side", o.Side,
				"qty", fmt.Sprintf("%.8g", o.Quantity),
			)
			r.bump(s.ID(), func(c *Counts) { c.Submitted++ })
		}
	}
}

// Counts devuelve los contadores de una estrategia.
func (r *Runner) Counts(id string) Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counts[id]; ok {
		return *c
	}
	return Counts{}
}

func (r *Runner) interval(id string) time.Duration {
	if d, ok := r.cfg.Intervals[id]; ok && d > 0 {
		return d
	}
	return r.cfg.DefaultInterval
}

func (r *Runner) bump(id string, fn func(*Counts)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counts[id]
	if !ok {
		c = &Counts{}
		r.counts[id] = c
	}
	fn(c)
}
