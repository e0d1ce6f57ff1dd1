package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// SaveOrder hace upsert de la orden por su id interno.
func (s *SQLiteStorage) SaveOrder(ctx context.Context, o domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
			(id, exchange_id, strategy, venue, symbol, side, type, quantity, requested,
			 price, status, created_at, terminal_at, filled, avg_price, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			exchange_id = excluded.exchange_id,
			quantity    = excluded.quantity,
			price       = excluded.price,
			status      = excluded.status,
			terminal_at = excluded.terminal_at,
			filled      = excluded.filled,
			avg_price   = excluded.avg_price,
			error       = excluded.error`,
		o.ID, o.ExchangeID, o.Strategy, o.Venue, o.Symbol, string(o.Side), string(o.Type),
		o.Quantity, o.Requested, o.Price, string(o.Status), formatTime(o.CreatedAt),
		nullTime(o.TerminalAt), o.Filled, o.AveragePrice, o.Error,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder %s: %w", o.ID, err)
	}
	return nil
}

// GetOrders devuelve las órdenes más recientes primero; limit <= 0 devuelve todas.
func (s *SQLiteStorage) GetOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	query := `
		SELECT id, exchange_id, strategy, venue, symbol, side, type, quantity, requested,
		       price, status, created_at, terminal_at, filled, avg_price, error
		FROM orders
		ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOrders: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			o                 domain.Order
			side, typ, status string
			created, terminal sql.NullString
		)
		if err := rows.Scan(
			&o.ID, &o.ExchangeID, &o.Strategy, &o.Venue, &o.Symbol, &side, &typ,
			&o.Quantity, &o.Requested, &o.Price, &status, &created, &terminal,
			&o.Filled, &o.AveragePrice, &o.Error,
		); err != nil {
			return nil, fmt.Errorf("storage.GetOrders: scan row: %w", err)
		}
		o.Side = domain.Side(side)
		o.Type = domain.OrderType(typ)
		o.Status = domain.OrderStatus(status)
		o.CreatedAt = parseTime(created)
		o.TerminalAt = parseTime(terminal)
		out = append(out, o)
	}
	return out, rows.Err()
}
