package domain

import "time"

// RiskState is the process-wide risk state. Only the risk gate mutates it.
type RiskState struct {
	TradingEnabled   bool               `json:"trading_enabled"`
	DisabledReason   string             `json:"disabled_reason,omitempty"`
	DailyRealizedPnL float64            `json:"daily_realized_pnl"`
	PeakBalance      float64            `json:"peak_account_balance"`
	CurrentDrawdown  float64            `json:"current_drawdown"`
	MaxDrawdown      float64            `json:"max_drawdown_observed"`
	Correlations     map[string]float64 `json:"correlations,omitempty"`
	LastReset        time.Time          `json:"last_reset"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// RiskMetrics is the read-only view exposed to the presentation layer.
type RiskMetrics struct {
	OpenPositions   int        `json:"open_positions"`
	TotalExposure   float64    `json:"total_exposure"`
	DailyPnL        float64    `json:"daily_pnl"`
	MaxDrawdown     float64    `json:"max_drawdown"`
	CurrentDrawdown float64    `json:"current_drawdown"`
	PeakBalance     float64    `json:"peak_balance"`
	TradingEnabled  bool       `json:"trading_enabled"`
	DisabledReason  string     `json:"disabled_reason,omitempty"`
	VaR95           float64    `json:"var_95"`
	PositionDetails []Position `json:"position_details"`
}
