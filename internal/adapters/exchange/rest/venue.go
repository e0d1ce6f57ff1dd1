package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// GetAvailablePairs implementa ports.Exchange.
func (c *Client) GetAvailablePairs(ctx context.Context) ([]string, error) {
	var resp symbolsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/symbols", false, nil, &resp); err != nil {
		return nil, fmt.Errorf("rest.GetAvailablePairs %s: %w", c.cfg.Name, err)
	}
	return resp.Symbols, nil
}

// GetOrderBook implementa ports.Exchange.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	q := url.Values{"symbol": {symbol}}
	if depth > 0 {
		q.Set("depth", strconv.Itoa(depth))
	}
	var resp bookResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/orderbook?"+q.Encode(), false, nil, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("rest.GetOrderBook %s %s: %w", c.cfg.Name, symbol, err)
	}

	bids, err := toLevels(resp.Bids)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("rest.GetOrderBook %s %s: bids: %w", c.cfg.Name, symbol, err)
	}
	asks, err := toLevels(resp.Asks)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("rest.GetOrderBook %s %s: asks: %w", c.cfg.Name, symbol, err)
	}
	return domain.OrderBook{Venue: c.cfg.Name, Symbol: symbol, Bids: bids, Asks: asks}, nil
}

// GetBalance implementa ports.Exchange.
func (c *Client) GetBalance(ctx context.Context) (map[string]float64, error) {
	var resp balancesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/balances", true, nil, &resp); err != nil {
		return nil, fmt.Errorf("rest.GetBalance %s: %w", c.cfg.Name, err)
	}
	out := make(map[string]float64, len(resp.Balances))
	for _, b := range resp.Balances {
		free, err := parseDecimal(b.Free)
		if err != nil {
			return nil, fmt.Errorf("rest.GetBalance %s: %s: %w", c.cfg.Name, b.Asset, err)
		}
		out[b.Asset] = free
	}
	return out, nil
}

// PlaceMarketOrder implementa ports.Exchange.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderAck, error) {
	return c.place(ctx, placeOrderRequest{
		Symbol:   symbol,
		Side:     string(side),
		Type:     string(domain.OrderMarket),
		Quantity: formatDecimal(quantity),
	})
}

// PlaceLimitOrder implementa ports.Exchange.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price float64) (domain.OrderAck, error) {
	return c.place(ctx, placeOrderRequest{
		Symbol:   symbol,
		Side:     string(side),
		Type:     string(domain.OrderLimit),
		Quantity: formatDecimal(quantity),
		Price:    formatDecimal(price),
	})
}

func (c *Client) place(ctx context.Context, req placeOrderRequest) (domain.OrderAck, error) {
	var resp placeOrderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders", true, req, &resp); err != nil {
		return domain.OrderAck{}, fmt.Errorf("rest.place %s %s: %w", c.cfg.Name, req.Symbol, err)
	}
	if resp.ID == "" {
		return domain.OrderAck{}, fmt.Errorf("rest.place %s %s: empty order id", c.cfg.Name, req.Symbol)
	}
	price, err := parseDecimal(resp.Price)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("rest.place %s %s: %w", c.cfg.Name, req.Symbol, err)
	}
	ts := c.now()
	if resp.Timestamp > 0 {
		ts = time.UnixMilli(resp.Timestamp)
	}
	return domain.OrderAck{ID: resp.ID, Price: price, Timestamp: ts.UTC()}, nil
}

// CancelOrder implementa ports.Exchange. Un 404 significa que la orden ya no
// es cancelable.
func (c *Client) CancelOrder(ctx context.Context, id, symbol string) (bool, error) {
	path := "/api/v1/orders/" + url.PathEscape(id) + "?" + url.Values{"symbol": {symbol}}.Encode()
	var resp cancelResponse
	if err := c.do(ctx, http.MethodDelete, path, true, nil, &resp); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("rest.CancelOrder %s %s: %w", c.cfg.Name, id, err)
	}
	return resp.Cancelled, nil
}

// GetOrderStatus implementa ports.Exchange.
func (c *Client) GetOrderStatus(ctx context.Context, id, symbol string) (domain.OrderStatusReport, error) {
	path := "/api/v1/orders/" + url.PathEscape(id) + "?" + url.Values{"symbol": {symbol}}.Encode()
	var resp orderStatusResponse
	if err := c.do(ctx, http.MethodGet, path, true, nil, &resp); err != nil {
		return domain.OrderStatusReport{}, fmt.Errorf("rest.GetOrderStatus %s %s: %w", c.cfg.Name, id, err)
	}

	state, err := toVenueState(resp.Status)
	if err != nil {
		return domain.OrderStatusReport{}, fmt.Errorf("rest.GetOrderStatus %s %s: %w", c.cfg.Name, id, err)
	}
	filled, err := parseDecimal(resp.Filled)
	if err != nil {
		return domain.OrderStatusReport{}, fmt.Errorf("rest.GetOrderStatus %s %s: filled: %w", c.cfg.Name, id, err)
	}
	avg, err := parseDecimal(resp.Average)
	if err != nil {
		return domain.OrderStatusReport{}, fmt.Errorf("rest.GetOrderStatus %s %s: average: %w", c.cfg.Name, id, err)
	}
	return domain.OrderStatusReport{State: state, Filled: filled, AveragePrice: avg}, nil
}
