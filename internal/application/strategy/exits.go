package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

// ExitGuardID es el tag de las órdenes de cierre por stop-loss/take-profit.
const ExitGuardID = "exit_guard"

// PositionSource es la vista del ledger que necesita el guard.
type PositionSource interface {
	Positions() []domain.Position
}

// ExitGuardConfig configura los umbrales de salida (fracciones del precio medio).
type ExitGuardConfig struct {
	Venue      string // venue donde se envían los cierres
	StopLoss   float64
	TakeProfit float64
	Cooldown   time.Duration // no reenvía un cierre del mismo símbolo antes de esto
}

// ExitGuard cierra posiciones que cruzan el stop-loss o el take-profit.
type ExitGuard struct {
	Base
	cfg       ExitGuardConfig
	positions PositionSource
	prices    ports.PriceSource
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time // symbol → último cierre enviado
}

// NewExitGuard crea el guard.
func NewExitGuard(cfg ExitGuardConfig, positions PositionSource, prices ports.PriceSource, metrics MetricsSource) *ExitGuard {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &ExitGuard{
		Base:      NewBase(ExitGuardID, KindDiscretionary, metrics),
		cfg:       cfg,
		positions: positions,
		prices:    prices,
		now:       time.Now,
		pending:   make(map[string]time.Time),
	}
}

// ProduceIntents implementa Strategy. El lock no se mantiene durante la
// consulta de precios; el cooldown se vuelve a comprobar antes de emitir.
func (g *ExitGuard) ProduceIntents(ctx context.Context) ([]domain.OrderIntent, error) {
	now := g.now()

	var candidates []domain.Position
	g.mu.Lock()
	for _, p := range g.positions.Positions() {
		if p.Quantity <= 0 || p.AvgPrice <= 0 || g.coolingLocked(p.Symbol, now) {
			continue
		}
		candidates = append(candidates, p)
	}
	g.mu.Unlock()

	var intents []domain.OrderIntent
	for _, p := range candidates {
		price, ok, err := g.prices.LatestPrice(ctx, p.Symbol)
		if err != nil {
			slog.Debug("strategy: exit guard price lookup failed", "symbol", p.Symbol, "err", err)
			continue
		}
		if !ok {
			continue
		}

		ret := p.PnLAt(price) / (p.AvgPrice * p.Quantity)
		reason := ""
		switch {
		case g.cfg.StopLoss > 0 && ret <= -g.cfg.StopLoss:
			reason = "stop_loss"
		case g.cfg.TakeProfit > 0 && ret >= g.cfg.TakeProfit:
			reason = "take_profit"
		default:
			continue
		}

		g.mu.Lock()
		if g.coolingLocked(p.Symbol, now) {
			g.mu.Unlock()
			continue
		}
		g.pending[p.Symbol] = now
		g.mu.Unlock()

		slog.Info("strategy: exit triggered",
			"symbol", p.Symbol,
			"reason", reason,
			"return", fmt.Sprintf("%.4f", ret),
			"price", fmt.Sprintf("%.8g", price),
		)
		intents = append(intents, domain.OrderIntent{
			Strategy: g.ID(),
			Venue:    g.cfg.Venue,
			Symbol:   p.Symbol,
			Side:     p.Side.Opposite(),
			Quantity: p.Quantity,
			Type:     domain.OrderMarket,
			Reason:   reason,
		})
	}
	return intents, nil
}

func (g *ExitGuard) coolingLocked(symbol string, now time.Time) bool {
	last, ok := g.pending[symbol]
	return ok && now.Sub(last) < g.cfg.Cooldown
}

// Reporting es una estrategia que ejecuta por su cuenta (p.ej. el scanner de
// arbitraje) y solo se registra para exponer su rendimiento.
type Reporting struct {
	Base
}

// NewReporting crea la estrategia de solo reporte.
func NewReporting(id string, kind Kind, metrics MetricsSource) *Reporting {
	return &Reporting{Base: NewBase(id, kind, metrics)}
}

// ProduceIntents implementa Strategy; nunca produce órdenes.
func (r *Reporting) ProduceIntents(context.Context) ([]domain.OrderIntent, error) {
	return nil, nil
}
