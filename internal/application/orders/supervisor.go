package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// supervise polls the venue until the order is terminal, the poll budget is
// spent or ctx ends. A spent budget moves the order to the unresolved set.
func (m *Manager) supervise(ctx context.Context, t *tracked) {
	defer m.wg.Done()
	defer close(t.done)

	polls := 0
	for polls < m.cfg.MaxPolls {
		polls++
		report, err := t.venue.GetOrderStatus(ctx, t.order.ExchangeID, t.order.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("orders: status poll failed",
				"id", t.order.ID, "venue", t.order.Venue, "poll", polls, "err", err)
			if !sleep(ctx, m.cfg.ErrorBackoff) {
				return
			}
			continue
		}
		if m.applyReport(t, report) {
			return
		}
		if !sleep(ctx, m.cfg.PollInterval) {
			return
		}
	}
	m.markUnresolved(t, polls)
}

// applyReport folds a venue status report into the tracked order. It returns
// true when the order is no longer tracked.
func (m *Manager) applyReport(t *tracked, r domain.OrderStatusReport) bool {
	m.mu.Lock()
	if m.trackedLocked(t.order.ID) != t {
		m.mu.Unlock()
		return true
	}

	var next domain.OrderStatus
	switch r.State {
	case domain.VenueClosed:
		next = domain.StatusFilled
		t.order.Filled = r.Filled
		if t.order.Filled <= 0 {
			t.order.Filled = t.order.Quantity
		}
	case domain.VenueCanceled:
		next = domain.StatusCancelled
		t.order.Filled = r.Filled
	default:
		if r.Filled <= 0 || r.Filled == t.order.Filled {
			m.mu.Unlock()
			return false
		}
		t.order.Filled = r.Filled
		t.order.AveragePrice = r.AveragePrice
		if t.order.Status == domain.StatusPending {
			t.order.Status = domain.StatusPartiallyFilled
		}
		o := t.order
		m.mu.Unlock()
		m.persist(o)
		m.publish(domain.EventOrderUpdated, o)
		m.record(o)
		return false
	}

	t.order.AveragePrice = r.AveragePrice
	if t.order.AveragePrice <= 0 && t.order.Filled > 0 {
		t.order.AveragePrice = t.order.Price
	}
	if !t.order.Status.CanTransition(next) {
		m.mu.Unlock()
		return false
	}
	o := m.finishLocked(t, next)
	m.mu.Unlock()

	m.settle(t, o)
	slog.Info("orders: terminal",
		"id", o.ID,
		"venue", o.Venue,
		"symbol", o.Symbol,
		"status", o.Status,
		"filled", fmt.Sprintf("%.8f", o.Filled),
		"avg_price", fmt.Sprintf("%.2f", o.AveragePrice),
		"exec_time", o.ExecutionTime().Round(time.Millisecond),
	)
	m.persist(o)
	m.publish(domain.EventOrderUpdated, o)
	m.record(o)
	return true
}

func (m *Manager) markUnresolved(t *tracked, polls int) {
	m.mu.Lock()
	if m.active[t.order.ID] != t {
		m.mu.Unlock()
		return
	}
	delete(m.active, t.order.ID)
	m.unresolved[t.order.ID] = t
	o := t.order
	m.mu.Unlock()

	err := &domain.OrderTimeoutError{OrderID: o.ID, Polls: polls}
	slog.Warn("orders: supervision timed out, order unresolved",
		"id", o.ID, "venue", o.Venue, "symbol", o.Symbol, "err", err)
	if m.recorder != nil {
		m.recorder.OrderTimeout()
	}
	m.publish(domain.EventOrderTimeout, o)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
