package calc

import (
	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

var (
	// MinLongOrderValue is the smallest order in USD the long exchange accepts.
	MinLongOrderValue = decimal.NewFromInt(25)

	// CrowdThreshold is the multiple of MaxOrderQuantity above which the
	// visible quantity is damped by the crowd factor.
	CrowdThreshold = decimal.RequireFromString("1.45")
)

// OrderQuantity sizes the next order from the best offers of both legs:
// the smallest visible quantity, damped when crowded, capped by the max order
// size and by what is left to trade on the long leg.
func OrderQuantity(shortQty, longQty decimal.Decimal, in domain.ArbitrageInput, longExecuted decimal.Decimal) decimal.Decimal {
	mktQty := decimal.Min(shortQty, longQty)
	if mktQty.GreaterThan(in.MaxOrderQuantity.Mul(CrowdThreshold)) {
		mktQty = mktQty.Mul(in.CrowdFactor)
	}
	remaining := in.TotalQuantity.Sub(longExecuted)
	return decimal.Min(mktQty, in.MaxOrderQuantity, remaining)
}

// HasMinLongOrderValue reports whether qty at longPrice is accepted by the
// long exchange.
func HasMinLongOrderValue(qty, longPrice decimal.Decimal) bool {
	return !qty.Mul(longPrice).LessThan(MinLongOrderValue)
}

// LegQuantities splits an order quantity into the short and long legs. The
// long leg is zero when it would fall below the exchange minimum, which makes
// the cycle short-only.
func LegQuantities(orderQty, longPrice decimal.Decimal) (short, long decimal.Decimal) {
	if !HasMinLongOrderValue(orderQty, longPrice) {
		return orderQty, decimal.Zero
	}
	return orderQty, orderQty
}
