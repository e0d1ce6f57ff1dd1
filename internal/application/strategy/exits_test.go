package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type positionsStub []domain.Position

func (p positionsStub) Positions() []domain.Position { return p }

type pricesStub map[string]float64

func (p pricesStub) LatestPrice(_ context.Context, symbol string) (float64, bool, error) {
	v, ok := p[symbol]
	return v, ok, nil
}

func newGuard(positions positionsStub, prices pricesStub) *ExitGuard {
	return NewExitGuard(ExitGuardConfig{Venue: "paper", StopLoss: 0.02, TakeProfit: 0.05, Cooldown: time.Minute}, positions, prices, nil)
}

func TestExitGuard_StopLossAndTakeProfit(t *testing.T) {
	positions := positionsStub{
		{Symbol: "BTC/USDT", Side: domain.SideBuy, Quantity: 0.1, AvgPrice: 50000}, // -3%: stop
		{Symbol: "ETH/USDT", Side: domain.SideSell, Quantity: 2, AvgPrice: 3000},   // precio cae 6%: take profit
		{Symbol: "SOL/USDT", Side: domain.SideBuy, Quantity: 10, AvgPrice: 100},    // +1%: nada
	}
	prices := pricesStub{"BTC/USDT": 48500, "ETH/USDT": 2820, "SOL/USDT": 101}
	g := newGuard(positions, prices)

	intents, err := g.ProduceIntents(context.Background())
	require.NoError(t, err)
	require.Len(t, intents, 2)

	assert.Equal(t, domain.OrderIntent{
		Strategy: ExitGuardID, Venue: "paper", Symbol: "BTC/USDT",
		Side: domain.SideSell, Quantity: 0.1, Type: domain.OrderMarket, Reason: "stop_loss",
	}, intents[0])
	assert.Equal(t, "ETH/USDT", intents[1].Symbol)
	assert.Equal(t, domain.SideBuy, intents[1].Side, "cerrar un short es comprar")
	assert.Equal(t, "take_profit", intents[1].Reason)
}

func TestExitGuard_Cooldown(t *testing.T) {
	positions := positionsStub{{Symbol: "BTC/USDT", Side: domain.SideBuy, Quantity: 0.1, AvgPrice: 50000}}
	g := newGuard(positions, pricesStub{"BTC/USDT": 48000})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	first, err := g.ProduceIntents(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 1)

	now = now.Add(30 * time.Second)
	second, _ := g.ProduceIntents(context.Background())
	assert.Empty(t, second, "dentro del cooldown no se reenvía")

	now = now.Add(time.Minute)
	third, _ := g.ProduceIntents(context.Background())
	assert.Len(t, third, 1)
}

func TestExitGuard_NoPriceSkips(t *testing.T) {
	positions := positionsStub{{Symbol: "BTC/USDT", Side: domain.SideBuy, Quantity: 0.1, AvgPrice: 50000}}
	g := newGuard(positions, pricesStub{})

	intents, err := g.ProduceIntents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, intents)
	assert.Equal(t, KindDiscretionary, g.Kind())
}

// lockCheckingPrices comprueba que el guard no tiene el lock durante la consulta.
type lockCheckingPrices struct {
	guard *ExitGuard
	price float64
	held  bool
}

func (p *lockCheckingPrices) LatestPrice(context.Context, string) (float64, bool, error) {
	if p.guard.mu.TryLock() {
		p.guard.mu.Unlock()
	} else {
		p.held = true
	}
	return p.price, true, nil
}

func TestExitGuard_PriceLookupOutsideLock(t *testing.T) {
	positions := positionsStub{{Symbol: "BTC/USDT", Side: domain.SideBuy, Quantity: 0.1, AvgPrice: 50000}}
	prices := &lockCheckingPrices{price: 48000}
	g := NewExitGuard(ExitGuardConfig{Venue: "paper", StopLoss: 0.02}, positions, prices, nil)
	prices.guard = g

	intents, err := g.ProduceIntents(context.Background())
	require.NoError(t, err)
	assert.Len(t, intents, 1)
	assert.False(t, prices.held)
}
