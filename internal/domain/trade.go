package domain

import "time"

// OpenTrade es una entrada registrada que todavía no tiene salida.
type OpenTrade struct {
	ID         string            `json:"trade_id"`
	Strategy   string            `json:"strategy"`
	Symbol     string            `json:"symbol"`
	Side       Side              `json:"side"`
	EntryPrice float64           `json:"entry_price"`
	Quantity   float64           `json:"amount"`
	EntryTime  time.Time         `json:"entry_time"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TradeRecord es un round-trip completado. Inmutable una vez escrito.
type TradeRecord struct {
	ID            string            `json:"trade_id"`
	Strategy      string            `json:"strategy"`
	Symbol        string            `json:"symbol"`
	Side          Side              `json:"side"`
	EntryPrice    float64           `json:"entry_price"`
	ExitPrice     float64           `json:"exit_price"`
	EntryTime     time.Time         `json:"entry_time"`
	ExitTime      time.Time         `json:"exit_time"`
	Quantity      float64           `json:"amount"`
	PnLPct        float64           `json:"pnl_pct"`
	PnLUSD        float64           `json:"pnl_usd"`
	ExitReason    string            `json:"exit_reason"`
	HoldTimeHours float64           `json:"hold_time_hours"`
	Success       bool              `json:"success"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CloseTrade computes the completed record for an open trade exited at price.
// Shorts gain when the price falls.
func CloseTrade(t OpenTrade, exitPrice float64, exitTime time.Time, reason string) TradeRecord {
	pnlPct := 0.0
	if t.EntryPrice > 0 {
		pnlPct = (exitPrice - t.EntryPrice) / t.EntryPrice
	}
	pnlUSD := t.Quantity * (exitPrice - t.EntryPrice)
	if t.Side == SideSell {
		pnlPct = -pnlPct
		pnlUSD = -pnlUSD
	}
	return TradeRecord{
		ID:            t.ID,
		Strategy:      t.Strategy,
		Symbol:        t.Symbol,
		Side:          t.Side,
		EntryPrice:    t.EntryPrice,
		ExitPrice:     exitPrice,
		EntryTime:     t.EntryTime,
		ExitTime:      exitTime,
		Quantity:      t.Quantity,
		PnLPct:        pnlPct,
		PnLUSD:        pnlUSD,
		ExitReason:    reason,
		HoldTimeHours: exitTime.Sub(t.EntryTime).Hours(),
		Success:       pnlUSD > 0,
		Metadata:      t.Metadata,
	}
}

// StrategyMetrics son las estadísticas acumuladas de una estrategia.
type StrategyMetrics struct {
	Name            string    `json:"name"`
	TotalTrades     int       `json:"total_trades"`
	WinningTrades   int       `json:"winning_trades"`
	LosingTrades    int       `json:"losing_trades"`
	TotalPnL        float64   `json:"total_pnl"`
	WinRate         float64   `json:"win_rate"`
	AvgReturn       float64   `json:"avg_return"`
	BestTrade       float64   `json:"best_trade"`
	WorstTrade      float64   `json:"worst_trade"`
	ActivePositions int       `json:"active_positions"`
	LastUpdated     time.Time `json:"last_updated"`
}

// PerformanceSnapshot es el documento persistido por el tracker.
type PerformanceSnapshot struct {
	StrategyMetrics map[string]StrategyMetrics `json:"strategy_metrics"`
	CompletedTrades map[string][]TradeRecord   `json:"completed_trades"`
	ActiveTrades    map[string]OpenTrade       `json:"active_trades,omitempty"`
	LastUpdated     time.Time                  `json:"last_updated"`
}

// PeriodPerformance resume los trades cerrados dentro de una ventana.
type PeriodPerformance struct {
	Trades  int     `json:"trades"`
	PnL     float64 `json:"pnl"`
	WinRate float64 `json:"win_rate"`
}

// StrategyPerformance es la vista detallada de una estrategia.
type StrategyPerformance struct {
	Metrics      StrategyMetrics              `json:"metrics"`
	Periods      map[string]PeriodPerformance `json:"periods"`
	ActiveTrades []OpenTrade                  `json:"active_trades"`
}

// OverallPerformance agrega todas las estrategias.
type OverallPerformance struct {
	TotalPnL        float64 `json:"total_pnl"`
	TotalTrades     int     `json:"total_trades"`
	ActivePositions int     `json:"active_positions"`
	WinRate         float64 `json:"win_rate"`
	AvgReturn       float64 `json:"avg_return"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	BestStrategy    string  `json:"best_strategy"`
	WorstStrategy   string  `json:"worst_strategy"`
}

// TrendAnalysis es el análisis de tendencias sobre el histórico.
type TrendAnalysis struct {
	DailyPnL        map[string]float64 `json:"daily_pnl"`  // YYYY-MM-DD → pnl
	HourlyPnL       map[int]float64    `json:"hourly_pnl"` // hora UTC de salida → pnl
	Recommendations []string           `json:"recommendations"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// WinStats son las entradas del sizing Kelly.
type WinStats struct {
	Trades  int
	WinRate float64
	AvgWin  float64
	AvgLoss float64 // valor absoluto
}
