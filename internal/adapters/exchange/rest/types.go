package rest

import (
	"fmt"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/shopspring/decimal"
)

// DTOs del venue. Precios y cantidades llegan como strings decimales.

type symbolsResponse struct {
	Symbols []string `json:"symbols"`
}

type balanceEntry struct {
	Asset string `json:"asset"`
	Free  string `json:"free"`
}

type balancesResponse struct {
	Balances []balanceEntry `json:"balances"`
}

// bookResponse trae niveles como ["price","size"].
type bookResponse struct {
	Symbol string      `json:"symbol"`
	Bids   [][2]string `json:"bids"`
	Asks   [][2]string `json:"asks"`
}

type placeOrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Quantity string `json:"quantity"`
	Price    string `json:"price,omitempty"`
}

type placeOrderResponse struct {
	ID        string `json:"id"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

type orderStatusResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"` // open | closed | canceled
	Filled  string `json:"filled"`
	Average string `json:"average"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// parseDecimal convierte un string decimal del venue. "" es 0.
func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// formatDecimal serializa sin notación científica ni ruido binario.
func formatDecimal(f float64) string {
	return decimal.NewFromFloat(f).String()
}

func toLevels(raw [][2]string) ([]domain.BookEntry, error) {
	out := make([]domain.BookEntry, 0, len(raw))
	for _, lvl := range raw {
		price, err := parseDecimal(lvl[0])
		if err != nil {
			return nil, err
		}
		size, err := parseDecimal(lvl[1])
		if err != nil {
			return nil, err
		}
		out = append(out, domain.BookEntry{Price: price, Size: size})
	}
	return out, nil
}

func toVenueState(s string) (domain.VenueOrderState, error) {
	switch domain.VenueOrderState(s) {
	case domain.VenueOpen, domain.VenueClosed, domain.VenueCanceled:
		return domain.VenueOrderState(s), nil
	case "cancelled":
		return domain.VenueCanceled, nil
	case "filled":
		return domain.VenueClosed, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}
