package arbitrage

import (
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// bestOpportunity compares every ordered (buy, sell) venue pair and returns the
// one with the highest net spread, if it exceeds minSpread.
func bestOpportunity(symbol string, quotes []domain.Quote, fee func(string) float64, minSpread float64, now time.Time) (domain.ArbitrageOpportunity, bool) {
	var (
		best  domain.ArbitrageOpportunity
		found bool
	)
	for _, buy := range quotes {
		for _, sell := range quotes {
			if buy.Venue == sell.Venue || buy.Ask <= 0 || sell.Bid <= 0 {
				continue
			}
			buyFee, sellFee := fee(buy.Venue), fee(sell.Venue)
			gross, net := domain.NetSpreadFor(buy.Ask, sell.Bid, buyFee, sellFee)
			if found && net <= best.NetSpread {
				continue
			}
			best = domain.ArbitrageOpportunity{
				Symbol:      symbol,
				BuyVenue:    buy.Venue,
				BuyPrice:    buy.Ask,
				BuyVolume:   buy.AskVolume,
				SellVenue:   sell.Venue,
				SellPrice:   sell.Bid,
				SellVolume:  sell.BidVolume,
				GrossSpread: gross,
				NetSpread:   net,
				BuyFee:      buyFee,
				SellFee:     sellFee,
				DetectedAt:  now,
			}
			found = true
		}
	}
	if !found || best.NetSpread <= minSpread {
		return domain.ArbitrageOpportunity{}, false
	}
	return best, true
}
