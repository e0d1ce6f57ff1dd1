package ports

import (
	"context"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Exchange is one trading venue. Implementations must be safe for concurrent use.
type Exchange interface {
	// Name is the venue identifier used in config and order intents.
	Name() string

	// GetBalance returns the free amount per asset.
	GetBalance(ctx context.Context) (map[string]float64, error)

	// GetOrderBook returns up to depth levels per side for symbol.
	GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error)

	// PlaceMarketOrder submits a market order for quantity base units.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderAck, error)

	// PlaceLimitOrder submits a limit order at price.
	PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (domain.OrderAck, error)

	// CancelOrder cancels an order by its venue id. Returns false if the venue
	// reports the order is no longer cancellable.
	CancelOrder(ctx context.Context, id, symbol string) (bool, error)

	// GetOrderStatus reports open | closed | canceled plus fill progress.
	GetOrderStatus(ctx context.Context, id, symbol string) (domain.OrderStatusReport, error)

	// GetAvailablePairs lists the symbols tradable on the venue.
	GetAvailablePairs(ctx context.Context) ([]string, error)
}

// PriceSource resolves the latest traded or mid price for a symbol.
// ok is false when no venue has a price.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (price float64, ok bool, err error)
}
