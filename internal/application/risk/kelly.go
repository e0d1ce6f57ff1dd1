package risk

import (
	"math"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// KellyFraction returns scale × (p·b − (1−p)) / b clamped to [0, scale],
// where b = avgWin / |avgLoss|.
func KellyFraction(winRate, avgWin, avgLoss, scale float64) float64 {
	avgLoss = math.Abs(avgLoss)
	if avgWin <= 0 || avgLoss == 0 {
		return 0
	}
	b := avgWin / avgLoss
	f := scale * (winRate*b - (1 - winRate)) / b
	return clamp(f, 0, scale)
}

// sizingFraction picks the Kelly inputs: realized trade stats once there are
// enough samples, configured priors otherwise. Until the inputs include a
// loss (and, for priors, a non-zero win rate) it falls back to risk-per-trade
// over stop-loss. Realized stats with no winners size to zero.
func (c Config) sizingFraction(stats domain.WinStats) float64 {
	if c.MinKellySamples > 0 && stats.Trades >= c.MinKellySamples {
		if stats.AvgLoss == 0 {
			return c.fallbackFraction()
		}
		return KellyFraction(stats.WinRate, stats.AvgWin, stats.AvgLoss, c.KellyFraction)
	}
	if c.PriorWinRate == 0 || c.PriorAvgLoss == 0 {
		return c.fallbackFraction()
	}
	return KellyFraction(c.PriorWinRate, c.PriorAvgWin, c.PriorAvgLoss, c.KellyFraction)
}

func (c Config) fallbackFraction() float64 {
	if c.StopLoss <= 0 {
		return 0
	}
	return clamp(c.RiskPerTrade/c.StopLoss, 0, c.KellyFraction)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
