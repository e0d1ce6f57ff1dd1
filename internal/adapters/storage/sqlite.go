package storage

// sqlite.go: persistencia del core en SQLite (pure Go, sin CGo).
//
// Tablas:
//   - `orders`: una fila por orden (UPSERT por id interno). Cada transición
//     reescribe la fila; el histórico terminal queda para reporting.
//   - `risk_state`: siempre 1 fila. Estado del risk gate entre reinicios.
//   - `performance_snapshot`: siempre 1 fila. Documento JSON del tracker.
//   - Prune al arrancar: órdenes terminales de más de 90 días.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id           TEXT PRIMARY KEY,
    exchange_id  TEXT NOT NULL DEFAULT '',
    strategy     TEXT NOT NULL DEFAULT '',
    venue        TEXT NOT NULL,
    symbol       TEXT NOT NULL,
    side         TEXT NOT NULL,
    type         TEXT NOT NULL,
    quantity     REAL NOT NULL DEFAULT 0,
    requested    REAL NOT NULL DEFAULT 0,
    price        REAL NOT NULL DEFAULT 0,
    status       TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    terminal_at  TEXT,
    filled       REAL NOT NULL DEFAULT 0,
    avg_price    REAL NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS risk_state (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),
    trading_enabled    INTEGER NOT NULL DEFAULT 1,
    disabled_reason    TEXT    NOT NULL DEFAULT '',
    daily_realized_pnl REAL    NOT NULL DEFAULT 0,
    peak_balance       REAL    NOT NULL DEFAULT 0,
    current_drawdown   REAL    NOT NULL DEFAULT 0,
    max_drawdown       REAL    NOT NULL DEFAULT 0,
    correlations       TEXT    NOT NULL DEFAULT '{}',
    last_reset         TEXT,
    updated_at         TEXT
);

CREATE TABLE IF NOT EXISTS performance_snapshot (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    document   TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_status  ON orders(status);
`

const retentionOrders = 90 * 24 * time.Hour

// timeLayout es de ancho fijo para que el orden lexicográfico sea el cronológico.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStorage implementa ports.OrderStore, ports.RiskStateStore y
// ports.SnapshotStore sobre una única base de datos.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia órdenes antiguas.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTime(time.Now().Add(-retentionOrders))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM orders WHERE terminal_at IS NOT NULL AND terminal_at < ?`, cutoff)
	if err != nil {
		slog.Warn("storage: prune failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("storage: pruned old orders", "rows", n)
	}
}

// --- helpers ---

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
