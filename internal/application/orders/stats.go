package orders

import (
	"sort"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Stats summarizes the archived history plus the live counts.
func (m *Manager) Stats() domain.OrderStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := domain.OrderStats{
		TotalOrders:  len(m.history),
		ActiveOrders: len(m.active),
		Unresolved:   len(m.unresolved),
	}
	var execSum float64
	for _, o := range m.history {
		switch o.Status {
		case domain.StatusFilled:
			s.FilledOrders++
			execSum += o.ExecutionTime().Seconds()
		case domain.StatusCancelled:
			s.CancelledOrders++
		case domain.StatusFailed:
			s.FailedOrders++
		}
	}
	if s.TotalOrders > 0 {
		s.FillRate = float64(s.FilledOrders) / float64(s.TotalOrders)
	}
	if s.FilledOrders > 0 {
		s.AvgExecutionTime = execSum / float64(s.FilledOrders)
	}
	return s
}

func sortByCreated(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}
