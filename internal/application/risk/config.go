package risk

// Config holds the limits the gate enforces. Fractions are of total quote balance.
type Config struct {
	MaxPositionSize         float64
	MinOrderNotional        float64
	MaxOpenPositions        int
	MaxDailyLoss            float64
	MaxDrawdown             float64
	CircuitBreakerThreshold float64
	CorrelationLimit        float64
	DefaultCorrelation      float64
	VolatilityEstimate      float64
	DailyVolatility         float64
	VaRConfidence           float64

	// Kelly sizing
	KellyFraction   float64
	RiskPerTrade    float64
	StopLoss        float64
	PriorWinRate    float64
	PriorAvgWin     float64
	PriorAvgLoss    float64
	MinKellySamples int

	QuoteAssets []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositionSize:         0.05,
		MinOrderNotional:        50,
		MaxOpenPositions:        10,
		MaxDailyLoss:            0.05,
		MaxDrawdown:             0.10,
		CircuitBreakerThreshold: 0.03,
		CorrelationLimit:        0.7,
		DefaultCorrelation:      0.5,
		VolatilityEstimate:      0.5,
		DailyVolatility:         0.02,
		VaRConfidence:           0.95,
		KellyFraction:           0.25,
		RiskPerTrade:            0.01,
		StopLoss:                0.02,
		PriorWinRate:            0.55,
		PriorAvgWin:             100,
		PriorAvgLoss:            80,
		MinKellySamples:         10,
		QuoteAssets:             []string{"USDT", "USDC", "USD"},
	}
}

// QuoteBalance sums the free quote-asset balances, which is the capital the
// size limits are measured against.
func (c Config) QuoteBalance(balances map[string]float64) float64 {
	total := 0.0
	for _, a := range c.QuoteAssets {
		total += balances[a]
	}
	return total
}
