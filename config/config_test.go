package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paperYAML = `
exchanges:
  sim:
    kind: paper
    paper:
      balances: {USDT: 10000}
      books:
        BTC/USDT: {bid: 50000, bid_size: 1, ask: 50010, ask_size: 1}
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(paperYAML))
	require.NoError(t, err)

	assert.InDelta(t, 0.05, cfg.Trading.MaxPositionSize, 1e-12)
	assert.Equal(t, 10, cfg.Trading.MaxOpenPositions)
	assert.InDelta(t, 50.0, cfg.Trading.MinTradeAmountUSD, 1e-12)
	assert.Equal(t, []string{"USDT", "USDC", "USD"}, cfg.Trading.QuoteAssets)

	assert.InDelta(t, 0.10, cfg.Risk.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.95, cfg.Risk.VaRConfidence, 1e-12)
	assert.Equal(t, 30*time.Second, cfg.Risk.MonitorInterval)

	assert.Equal(t, time.Second, cfg.Orders.PollInterval)
	assert.Equal(t, 60, cfg.Orders.MaxPolls)

	require.NotNil(t, cfg.Arbitrage.Enabled)
	assert.True(t, *cfg.Arbitrage.Enabled)
	assert.InDelta(t, 0.005, cfg.Arbitrage.MinSpread, 1e-12)
	assert.Equal(t, 5, cfg.Arbitrage.BookDepth)

	assert.Equal(t, "file", cfg.Performance.Snapshot)
	assert.Equal(t, "data/performance_history.json", cfg.Performance.SnapshotPath)
	assert.Equal(t, "tradecore:opportunities", cfg.Redis.Stream)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	sim := cfg.Exchanges["sim"]
	assert.Equal(t, "paper", sim.Kind)
	assert.InDelta(t, 0.001, sim.FeeRate, 1e-12)
	assert.True(t, sim.Usable())
}

func TestParse_RestVenueCredentialsFromEnv(t *testing.T) {
	t.Setenv("KRAKEN_API_KEY", "k")
	t.Setenv("KRAKEN_API_SECRET", "s")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := config.Parse([]byte(`
exchanges:
  kraken:
    base_url: https://api.kraken.example
`))
	require.NoError(t, err)

	kr := cfg.Exchanges["kraken"]
	assert.Equal(t, "rest", kr.Kind)
	assert.Equal(t, "k", kr.APIKey)
	assert.Equal(t, "s", kr.APISecret)
	assert.InDelta(t, 10.0, kr.RateLimit, 1e-12)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParse_NoUsableVenue(t *testing.T) {
	_, err := config.Parse([]byte(`
exchanges:
  binance:
    base_url: https://api.binance.example
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable venue")
}

func TestParse_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad confidence", "risk: {var_confidence: 0.9}", "var_confidence"},
		{"bad snapshot", "performance: {snapshot: s3}", "performance.snapshot"},
		{"unknown exit venue", "strategies: {exit_guard: true, exit_venue: nope}", "exit_venue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(paperYAML + tt.yaml + "\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_UnknownVenueKind(t *testing.T) {
	_, err := config.Parse([]byte(paperYAML + "  fix:\n    kind: fix\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `exchanges.fix.kind "fix"`)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(paperYAML+"arbitrage: {auto_execute: false}\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Arbitrage.AutoExecute)
	assert.False(t, *cfg.Arbitrage.AutoExecute)
	assert.Equal(t, []string{"sim"}, cfg.ExchangeNames())
	assert.Equal(t, map[string]float64{"sim": 0.001}, cfg.Fees())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
