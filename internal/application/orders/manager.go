package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/application/risk"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
	"github.com/google/uuid"
)

const (
	defaultPollInterval = time.Second
	defaultMaxPolls     = 60
	defaultErrorBackoff = 5 * time.Second
	defaultHistoryLimit = 10000
	persistTimeout      = 5 * time.Second
	qtyEpsilon          = 1e-12
)

// Config holds supervision settings.
type Config struct {
	PollInterval time.Duration
	MaxPolls     int
	ErrorBackoff time.Duration
	HistoryLimit int
}

// DefaultConfig returns the production supervision settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: defaultPollInterval,
		MaxPolls:     defaultMaxPolls,
		ErrorBackoff: defaultErrorBackoff,
		HistoryLimit: defaultHistoryLimit,
	}
}

// Venues resolves a venue adapter by name.
type Venues interface {
	Get(name string) (ports.Exchange, bool)
}

// Gate is the subset of the risk gate the manager drives.
type Gate interface {
	Authorize(symbol string, side domain.Side, quantity, price float64, balances map[string]float64) (risk.Approval, error)
	Release(a risk.Approval)
	RecordRealized(pnl float64)
}

// Ledger is the write side of the position ledger.
type Ledger interface {
	Apply(f domain.Fill) domain.Booking
	Rescind(b domain.Booking, unfilled float64) float64
}

// TradeRecorder receives the round trips closed by reducing fills.
type TradeRecorder interface {
	RecordRoundTrip(open domain.OpenTrade, exitPrice float64, reason string) domain.TradeRecord
}

// Recorder receives order telemetry.
type Recorder interface {
	OrderStatus(venue string, status domain.OrderStatus)
	OrderTimeout()
}

// tracked is a non-terminal order and its supervision handle.
type tracked struct {
	order   domain.Order
	venue   ports.Exchange
	booking domain.Booking
	reason  string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager submits orders through the risk gate and supervises them to a
// terminal state. It is the only writer of Order and, through the ledger, of
// Position.
type Manager struct {
	cfg       Config
	venues    Venues
	prices    ports.PriceSource
	gate      Gate
	ledger    Ledger
	store     ports.OrderStore
	publisher ports.EventPublisher
	recorder  Recorder
	trades    TradeRecorder

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	active     map[string]*tracked
	unresolved map[string]*tracked
	history    []domain.Order
}

// Option customizes a Manager.
type Option func(*Manager)

// WithStore persists every order state change.
func WithStore(s ports.OrderStore) Option { return func(m *Manager) { m.store = s } }

// WithPublisher publishes lifecycle events.
func WithPublisher(p ports.EventPublisher) Option { return func(m *Manager) { m.publisher = p } }

// WithRecorder records order telemetry.
func WithRecorder(r Recorder) Option { return func(m *Manager) { m.recorder = r } }

// WithTradeRecorder records a round trip whenever a filled order closes
// part of a position.
func WithTradeRecorder(r TradeRecorder) Option { return func(m *Manager) { m.trades = r } }

// New creates a manager. Call Close to stop all supervisors.
func New(cfg Config, venues Venues, prices ports.PriceSource, gate Gate, ledger Ledger, opts ...Option) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = defaultMaxPolls
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		venues:     venues,
		prices:     prices,
		gate:       gate,
		ledger:     ledger,
		baseCtx:    ctx,
		stop:       stop,
		active:     make(map[string]*tracked),
		unresolved: make(map[string]*tracked),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Submit authorizes, sizes, places and starts supervising an order.
//
// Errors: *domain.RiskRejectedError when the gate declines, *domain.ExchangeError
// when a venue call fails (the ledger is untouched), domain.ErrInvalidIntent and
// domain.ErrUnknownVenue for malformed intents.
func (m *Manager) Submit(ctx context.Context, in domain.OrderIntent) (domain.Order, error) {
	if in.Type == "" {
		in.Type = domain.OrderMarket
	}
	if err := in.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("orders.Submit: %w", err)
	}
	venue, ok := m.venues.Get(in.Venue)
	if !ok {
		return domain.Order{}, fmt.Errorf("orders.Submit: %w: %s", domain.ErrUnknownVenue, in.Venue)
	}

	price := in.Price
	if price <= 0 {
		p, found, err := m.prices.LatestPrice(ctx, in.Symbol)
		if err != nil {
			return domain.Order{}, &domain.ExchangeError{Venue: in.Venue, Op: "latest price", Err: err}
		}
		if !found {
			return domain.Order{}, &domain.ExchangeError{Venue: in.Venue, Op: "latest price", Err: domain.ErrNoPrice}
		}
		price = p
	}

	balances, err := venue.GetBalance(ctx)
	if err != nil {
		return domain.Order{}, &domain.ExchangeError{Venue: in.Venue, Op: "balance", Err: err}
	}

	approval, err := m.gate.Authorize(in.Symbol, in.Side, in.Quantity, price, balances)
	if err != nil {
		m.publish(domain.EventOrderRejected, rejectedIntent{Intent: in, Reason: err.Error()})
		return domain.Order{}, err
	}
	defer m.gate.Release(approval)

	o := domain.Order{
		ID:        uuid.New().String(),
		Strategy:  in.Strategy,
		Venue:     in.Venue,
		Symbol:    in.Symbol,
		Side:      in.Side,
		Type:      in.Type,
		Quantity:  min(in.Quantity, approval.SizedQuantity),
		Requested: in.Quantity,
		Price:     price,
		CreatedAt: time.Now().UTC(),
	}

	var ack domain.OrderAck
	if o.Type == domain.OrderLimit {
		ack, err = venue.PlaceLimitOrder(ctx, o.Symbol, o.Side, o.Quantity, o.Price)
	} else {
		ack, err = venue.PlaceMarketOrder(ctx, o.Symbol, o.Side, o.Quantity)
	}
	if err != nil {
		o.Status = domain.StatusFailed
		o.TerminalAt = time.Now().UTC()
		o.Error = err.Error()
		m.mu.Lock()
		m.archiveLocked(o)
		m.mu.Unlock()
		m.recorded(o)
		slog.Warn("orders: placement failed",
			"venue", o.Venue, "symbol", o.Symbol, "side", o.Side,
			"qty", fmt.Sprintf("%.8f", o.Quantity), "err", err)
		return domain.Order{}, &domain.ExchangeError{Venue: in.Venue, Op: "place order", Err: err}
	}

	o.ExchangeID = ack.ID
	o.Status = domain.StatusPending

	booking := m.ledger.Apply(domain.Fill{
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Quantity: o.Quantity,
		Price:    o.Price,
		At:       o.CreatedAt,
	})
	if booking.Realized != 0 {
		m.gate.RecordRealized(booking.Realized)
	}

	supCtx, cancel := context.WithCancel(m.baseCtx)
	t := &tracked{
		order:   o,
		venue:   venue,
		booking: booking,
		reason:  in.Reason,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.active[o.ID] = t
	m.mu.Unlock()

	m.wg.Add(1)
	go m.supervise(supCtx, t)

	slog.Info("orders: submitted",
		"id", o.ID,
		"exchange_id", o.ExchangeID,
		"strategy", o.Strategy,
		"venue", o.Venue,
		"symbol", o.Symbol,
		"side", o.Side,
		"qty", fmt.Sprintf("%.8f", o.Quantity),
		"price", fmt.Sprintf("%.2f", o.Price),
	)
	m.persist(o)
	m.publish(domain.EventOrderSubmitted, o)
	m.record(o)
	return o, nil
}

// Cancel cancels a non-terminal order. It returns false without side effects
// when the order is unknown or already terminal.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	t := m.trackedLocked(id)
	if t == nil {
		m.mu.Unlock()
		return false, nil
	}
	venue, exchID, symbol := t.venue, t.order.ExchangeID, t.order.Symbol
	m.mu.Unlock()

	ok, err := venue.CancelOrder(ctx, exchID, symbol)
	if err != nil {
		return false, &domain.ExchangeError{Venue: venue.Name(), Op: "cancel order", Err: err}
	}
	if !ok {
		return false, nil
	}

	m.mu.Lock()
	t = m.trackedLocked(id)
	if t == nil || !t.order.Status.CanTransition(domain.StatusCancelled) {
		m.mu.Unlock()
		return false, nil
	}
	o := m.finishLocked(t, domain.StatusCancelled)
	m.mu.Unlock()

	m.settle(t, o)
	t.cancel()
	slog.Info("orders: cancelled", "id", o.ID, "venue", o.Venue, "symbol", o.Symbol)
	m.persist(o)
	m.publish(domain.EventOrderUpdated, o)
	m.record(o)
	return true, nil
}

// Wait blocks until the order is terminal, its supervision stops, or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	t := m.trackedLocked(id)
	m.mu.Unlock()

	if t != nil {
		select {
		case <-t.done:
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		}
	}
	o, ok := m.Get(id)
	if !ok {
		return domain.Order{}, fmt.Errorf("orders.Wait %s: %w", id, domain.ErrOrderNotFound)
	}
	return o, nil
}

// Get returns an order by internal id from the active set or the history.
func (m *Manager) Get(id string) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.trackedLocked(id); t != nil {
		return t.order, true
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == id {
			return m.history[i], true
		}
	}
	return domain.Order{}, false
}

// Active returns all non-terminal orders, including unresolved ones.
func (m *Manager) Active() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.active)+len(m.unresolved))
	for _, t := range m.active {
		out = append(out, t.order)
	}
	for _, t := range m.unresolved {
		out = append(out, t.order)
	}
	sortByCreated(out)
	return out
}

// History returns the archived terminal orders, oldest first.
func (m *Manager) History() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Order(nil), m.history...)
}

// Close stops every supervisor and waits for them to exit.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

// finishLocked moves a tracked order to the history with a terminal status.
func (m *Manager) finishLocked(t *tracked, status domain.OrderStatus) domain.Order {
	t.order.Status = status
	t.order.TerminalAt = time.Now().UTC()
	delete(m.active, t.order.ID)
	delete(m.unresolved, t.order.ID)
	m.archiveLocked(t.order)
	return t.order
}

func (m *Manager) archiveLocked(o domain.Order) {
	m.history = append(m.history, o)
	if over := len(m.history) - m.cfg.HistoryLimit; over > 0 {
		m.history = append([]domain.Order(nil), m.history[over:]...)
	}
}

func (m *Manager) trackedLocked(id string) *tracked {
	if t, ok := m.active[id]; ok {
		return t
	}
	return m.unresolved[id]
}

// settle runs once an order is terminal. It withdraws the part of the
// booking that never filled, handing back any P&L it had realized, and
// records the round trip closed by the filled reduction.
func (m *Manager) settle(t *tracked, o domain.Order) {
	b := t.booking
	if b.Empty() {
		return
	}
	if unfilled := o.Quantity - o.Filled; unfilled > qtyEpsilon {
		if undone := m.ledger.Rescind(b, unfilled); undone != 0 {
			m.gate.RecordRealized(-undone)
			slog.Info("orders: unfilled close withdrawn",
				"id", o.ID, "symbol", o.Symbol,
				"unfilled", fmt.Sprintf("%.8f", unfilled),
				"pnl_reversed", fmt.Sprintf("%.2f", undone))
		}
	}

	closed := min(o.Filled, b.Reduced)
	if closed <= qtyEpsilon || m.trades == nil {
		return
	}
	exit := o.AveragePrice
	if exit <= 0 {
		exit = b.Price
	}
	reason := t.reason
	if reason == "" {
		reason = "position_reduced"
	}
	m.trades.RecordRoundTrip(domain.OpenTrade{
		Strategy:   m.openedBy(b, o.Strategy),
		Symbol:     o.Symbol,
		Side:       b.Side.Opposite(),
		EntryPrice: b.PriorAvgPrice,
		Quantity:   closed,
		EntryTime:  b.PriorEntry,
		Metadata:   map[string]string{"venue": o.Venue, "close_order": o.ID},
	}, exit, reason)
}

// openedBy is the strategy of the first known order behind the reduced
// position, or fallback.
func (m *Manager) openedBy(b domain.Booking, fallback string) string {
	for _, id := range b.PriorOrderIDs {
		if o, ok := m.Get(id); ok && o.Strategy != "" {
			return o.Strategy
		}
	}
	return fallback
}

func (m *Manager) persist(o domain.Order) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.SaveOrder(ctx, o); err != nil {
		slog.Warn("orders: error saving order", "id", o.ID, "err", err)
	}
}

func (m *Manager) publish(t domain.EventType, payload any) {
	if m.publisher != nil {
		m.publisher.Publish(domain.NewEvent(t, payload))
	}
}

func (m *Manager) record(o domain.Order) {
	if m.recorder != nil {
		m.recorder.OrderStatus(o.Venue, o.Status)
	}
}

func (m *Manager) recorded(o domain.Order) {
	m.persist(o)
	m.publish(domain.EventOrderUpdated, o)
	m.record(o)
}

type rejectedIntent struct {
	Intent domain.OrderIntent `json:"intent"`
	Reason string             `json:"reason"`
}
