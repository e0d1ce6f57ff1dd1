package orders

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Unresolved returns the orders whose supervision timed out before the venue
// reported a terminal status.
func (m *Manager) Unresolved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.unresolved))
	for id := range m.unresolved {
		ids = append(ids, id)
	}
	return ids
}

// Reconcile polls every unresolved order once and returns how many reached a
// terminal state.
func (m *Manager) Reconcile(ctx context.Context) int {
	m.mu.Lock()
	pending := make([]*tracked, 0, len(m.unresolved))
	for _, t := range m.unresolved {
		pending = append(pending, t)
	}
	m.mu.Unlock()

	resolved := 0
	for _, t := range pending {
		if ctx.Err() != nil {
			break
		}
		report, err := t.venue.GetOrderStatus(ctx, t.order.ExchangeID, t.order.Symbol)
		if err != nil {
			slog.Warn("orders: reconcile poll failed", "id", t.order.ID, "venue", t.order.Venue, "err", err)
			continue
		}
		if m.applyReport(t, report) {
			resolved++
		}
	}
	if resolved > 0 {
		slog.Info("orders: reconciled", "resolved", resolved, "remaining", len(pending)-resolved)
	}
	return resolved
}

// RunReconciler calls Reconcile on every tick until ctx is cancelled.
func (m *Manager) RunReconciler(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

// Restore loads the persisted history. Orders that were still open when the
// process stopped go to the unresolved set so the reconciler settles them.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	saved, err := m.store.GetOrders(ctx, m.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("orders.Restore: %w", err)
	}
	slices.Reverse(saved) // oldest first

	m.mu.Lock()
	defer m.mu.Unlock()
	reopened := 0
	for _, o := range saved {
		if o.Status.Terminal() {
			m.archiveLocked(o)
			continue
		}
		venue, ok := m.venues.Get(o.Venue)
		if !ok {
			slog.Warn("orders: restored order on unknown venue", "id", o.ID, "venue", o.Venue)
			continue
		}
		done := make(chan struct{})
		close(done)
		m.unresolved[o.ID] = &tracked{order: o, venue: venue, cancel: func() {}, done: done}
		reopened++
	}
	slog.Info("orders: history restored", "orders", len(saved), "unresolved", reopened)
	return nil
}
