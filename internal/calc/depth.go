package calc

import (
	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// TrimAsks keeps the best asks until their cumulative quantity reaches
// window. The level that crosses the window is kept.
func TrimAsks(book domain.Depth, window decimal.Decimal) []domain.DepthLevel {
	out := make([]domain.DepthLevel, 0, len(book.Asks))
	cum := decimal.Zero
	for _, level := range book.Asks {
		if cum.GreaterThanOrEqual(window) {
			break
		}
		out = append(out, level)
		cum = cum.Add(level.Quantity)
	}
	return out
}

// WeightedAveragePrice is sum(qty*price)/sum(qty). No levels, or no
// quantity, yields zero.
func WeightedAveragePrice(levels []domain.DepthLevel) decimal.Decimal {
	notional := decimal.Zero
	qty := decimal.Zero
	for _, l := range levels {
		notional = notional.Add(l.Quantity.Mul(l.Price))
		qty = qty.Add(l.Quantity)
	}
	return div(notional, qty)
}

// OTCQuote holds the terms of an OTC quote price.
type OTCQuote struct {
	AveragePrice decimal.Decimal
	PegPrice     decimal.Decimal
	ExchangeRate decimal.Decimal
	IOFRate      decimal.Decimal
	// LongFee is 1 - long trade taker, or zero while the fees are incomplete.
	LongFee     decimal.Decimal
	QuoteSpread decimal.Decimal
}

// Price converts the average USD price into the BRL quote:
//
//	avg * peg * (exchange + iof) * (longFee + quoteSpread)
func (q OTCQuote) Price() decimal.Decimal {
	pegTotal := q.PegPrice.Mul(q.ExchangeRate.Add(q.IOFRate))
	return q.AveragePrice.Mul(pegTotal).Mul(q.LongFee.Add(q.QuoteSpread))
}
