package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Kind clasifica la familia de una estrategia. Sustituye el chequeo de
// capacidades opcionales: todas las estrategias exponen el mismo contrato.
type Kind string

const (
	KindTechnical     Kind = "technical"
	KindDiscretionary Kind = "discretionary"
	KindListing       Kind = "listing"
	KindArbitrage     Kind = "arbitrage"
	KindMomentum      Kind = "momentum"
)

// Strategy es un productor de order intents.
type Strategy interface {
	// ID es el tag de estrategia con el que se registran órdenes y trades.
	ID() string

	Kind() Kind

	// ProduceIntents devuelve las órdenes que la estrategia quiere ejecutar
	// ahora. Una lista vacía no es un error.
	ProduceIntents(ctx context.Context) ([]domain.OrderIntent, error)

	// Performance resume los resultados de la estrategia.
	Performance() Report
}

// Report es la vista de rendimiento de una estrategia.
type Report struct {
	ID      string                 `json:"id"`
	Kind    Kind                   `json:"kind"`
	Metrics domain.StrategyMetrics `json:"metrics"`
}

// MetricsSource resuelve las métricas acumuladas de una estrategia.
// Implementado por performance.Tracker.
type MetricsSource interface {
	Metrics(strategy string) (domain.StrategyMetrics, bool)
}

// Base implementa ID, Kind y Performance para estrategias concretas.
type Base struct {
	id      string
	kind    Kind
	metrics MetricsSource
}

// NewBase crea la parte común. metrics puede ser nil.
func NewBase(id string, kind Kind, metrics MetricsSource) Base {
	return Base{id: id, kind: kind, metrics: metrics}
}

func (b Base) ID() string { return b.id }

func (b Base) Kind() Kind { return b.kind }

func (b Base) Performance() Report {
	r := Report{ID: b.id, Kind: b.kind, Metrics: domain.StrategyMetrics{Name: b.id}}
	if b.metrics != nil {
		if m, ok := b.metrics.Metrics(b.id); ok {
			r.Metrics = m
		}
	}
	return r
}

// Registry mantiene las estrategias disponibles indexadas por ID.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry crea un registry vacío.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register añade una estrategia. Un ID duplicado es un error.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[s.ID()]; exists {
		return fmt.Errorf("strategy.Register: duplicate id %q", s.ID())
	}
	r.strategies[s.ID()] = s
	return nil
}

// Get devuelve la estrategia por ID.
func (r *Registry) Get(id string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	return s, ok
}

// List devuelve las estrategias ordenadas por ID.
func (r *Registry) List() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ByKind filtra por familia.
func (r *Registry) ByKind(k Kind) []Strategy {
	var out []Strategy
	for _, s := range r.List() {
		if s.Kind() == k {
			out = append(out, s)
		}
	}
	return out
}

// Reports devuelve el rendimiento de todas las estrategias.
func (r *Registry) Reports() []Report {
	list := r.List()
	out := make([]Report, 0, len(list))
	for _, s := range list {
		out = append(out, s.Performance())
	}
	return out
}
