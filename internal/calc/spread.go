// Package calc holds the pure pricing, sizing and reporting math shared by
// the strategy algos. Nothing here keeps state or performs I/O.
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

var one = decimal.NewFromInt(1)

// FeeFactors are the multiplicative fee terms of the market spread.
type FeeFactors struct {
	// Peg is 1 - iof.
	Peg decimal.Decimal
	// Long is 1 + long trade taker.
	Long decimal.Decimal
	// Short is (1 - short trade taker) * (1 - short withdraw brl).
	Short decimal.Decimal
}

// NewFeeFactors derives the spread factors from a fee set. It reports false
// until every slot is known. The peg exchange fee is already part of the peg
// quote, so it only gates readiness.
func NewFeeFactors(fees domain.ArbitrageFees) (FeeFactors, bool) {
	if !fees.Complete() {
		return FeeFactors{}, false
	}
	return FeeFactors{
		Peg:  one.Sub(fees.PegIOF.Rate),
		Long: one.Add(fees.LongTradeTaker.Rate),
		Short: one.Sub(fees.ShortTradeTaker.Rate).
			Mul(one.Sub(fees.ShortWithdrawBRL.Rate)),
	}, true
}

// MarketSpread is the margin of selling on the short leg and buying on the
// long leg right now, net of fees:
//
//	peg - (long * longPrice * pegPrice) / (short * shortPrice)
func MarketSpread(f FeeFactors, shortPrice, longPrice, pegPrice decimal.Decimal) decimal.Decimal {
	den := f.Short.Mul(shortPrice)
	if den.IsZero() {
		return decimal.Zero
	}
	return f.Peg.Sub(f.Long.Mul(longPrice).Mul(pegPrice).Div(den))
}
