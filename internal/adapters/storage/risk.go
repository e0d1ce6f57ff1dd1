package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// SaveRiskState persiste el estado del risk gate (fila única).
func (s *SQLiteStorage) SaveRiskState(ctx context.Context, st domain.RiskState) error {
	corr, err := json.Marshal(st.Correlations)
	if err != nil {
		return fmt.Errorf("storage.SaveRiskState: encode correlations: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_state
			(id, trading_enabled, disabled_reason, daily_realized_pnl, peak_balance,
			 current_drawdown, max_drawdown, correlations, last_reset, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trading_enabled    = excluded.trading_enabled,
			disabled_reason    = excluded.disabled_reason,
			daily_realized_pnl = excluded.daily_realized_pnl,
			peak_balance       = excluded.peak_balance,
			current_drawdown   = excluded.current_drawdown,
			max_drawdown       = excluded.max_drawdown,
			correlations       = excluded.correlations,
			last_reset         = excluded.last_reset,
			updated_at         = excluded.updated_at`,
		boolToInt(st.TradingEnabled), st.DisabledReason, st.DailyRealizedPnL, st.PeakBalance,
		st.CurrentDrawdown, st.MaxDrawdown, string(corr), nullTime(st.LastReset), nullTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRiskState: %w", err)
	}
	return nil
}

// LoadRiskState devuelve found=false si nunca se guardó estado.
func (s *SQLiteStorage) LoadRiskState(ctx context.Context) (domain.RiskState, bool, error) {
	var (
		st                 domain.RiskState
		enabled            int
		corr               string
		lastReset, updated sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT trading_enabled, disabled_reason, daily_realized_pnl, peak_balance,
		       current_drawdown, max_drawdown, correlations, last_reset, updated_at
		FROM risk_state WHERE id=1`).Scan(
		&enabled, &st.DisabledReason, &st.DailyRealizedPnL, &st.PeakBalance,
		&st.CurrentDrawdown, &st.MaxDrawdown, &corr, &lastReset, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RiskState{}, false, nil
	}
	if err != nil {
		return domain.RiskState{}, false, fmt.Errorf("storage.LoadRiskState: %w", err)
	}

	st.TradingEnabled = enabled != 0
	st.LastReset = parseTime(lastReset)
	st.UpdatedAt = parseTime(updated)
	st.Correlations = make(map[string]float64)
	if corr != "" && corr != "null" {
		if err := json.Unmarshal([]byte(corr), &st.Correlations); err != nil {
			return domain.RiskState{}, false, fmt.Errorf("storage.LoadRiskState: decode correlations: %w", err)
		}
	}
	return st, true, nil
}
