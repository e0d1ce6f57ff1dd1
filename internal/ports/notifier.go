package ports

import (
	"context"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// OpportunityNotifier presenta o publica las oportunidades de arbitraje detectadas.
type OpportunityNotifier interface {
	NotifyOpportunities(ctx context.Context, opps []domain.ArbitrageOpportunity) error
}

// EventPublisher recibe eventos del core (órdenes, riesgo, arbitraje).
type EventPublisher interface {
	Publish(e domain.Event)
}
