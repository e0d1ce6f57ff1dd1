package ports

import (
	"context"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// OrderStore persiste el histórico de órdenes.
type OrderStore interface {
	// SaveOrder hace upsert de la orden por su ID interno.
	SaveOrder(ctx context.Context, o domain.Order) error

	// GetOrders devuelve las órdenes más recientes primero; limit <= 0 devuelve todas.
	GetOrders(ctx context.Context, limit int) ([]domain.Order, error)
}

// RiskStateStore persiste el estado del risk gate entre reinicios.
type RiskStateStore interface {
	SaveRiskState(ctx context.Context, s domain.RiskState) error

	// LoadRiskState devuelve found=false si nunca se guardó estado.
	LoadRiskState(ctx context.Context) (s domain.RiskState, found bool, err error)
}

// SnapshotStore persiste el documento del performance tracker.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap domain.PerformanceSnapshot) error

	// LoadSnapshot devuelve found=false si no hay snapshot previo.
	LoadSnapshot(ctx context.Context) (snap domain.PerformanceSnapshot, found bool, err error)
}
