package calc

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// SummaryVersion identifies the layout of Summary.
const SummaryVersion = 2

const longDecimals = 4

func rate(name string, fee *domain.Fee) (decimal.Decimal, error) {
	if fee == nil {
		return decimal.Zero, fmt.Errorf("calc: %s: %w", name, domain.ErrMissingFee)
	}
	return fee.Rate, nil
}

// Summarize computes the post trade report of an execution. The short leg
// is a sale, so its fees reduce the proceeds; the long leg is a purchase, so
// its trade fee adds to the cost. It fails with domain.ErrMissingFee when any
// of the six fee slots is empty.
func Summarize(ctx domain.ExecutionContext) (domain.Summary, error) {
	fees := ctx.Fees
	shortTrade, err := rate("short trade-taker", fees.ShortTradeTaker)
	if err != nil {
		return domain.Summary{}, err
	}
	shortWithdraw, err := rate("short withdraw-brl", fees.ShortWithdrawBRL)
	if err != nil {
		return domain.Summary{}, err
	}
	longTrade, err := rate("long trade-taker", fees.LongTradeTaker)
	if err != nil {
		return domain.Summary{}, err
	}
	longWithdraw, err := rate("long withdraw-btc", fees.LongWithdrawBTC)
	if err != nil {
		return domain.Summary{}, err
	}
	pegExchange, err := rate("peg exchange", fees.PegExchange)
	if err != nil {
		return domain.Summary{}, err
	}
	pegIOF, err := rate("peg iof", fees.PegIOF)
	if err != nil {
		return domain.Summary{}, err
	}

	shortPrice := ctx.ShortBestOffer.Price
	shortGross := ctx.QuantityShort.Mul(shortPrice)
	shortFeeTrade := shortGross.Mul(shortTrade)
	shortFeeWithdraw := shortGross.Mul(shortWithdraw)
	shortNet := shortGross.Sub(shortFeeTrade).Sub(shortFeeWithdraw)

	longPrice := ctx.LongBestOffer.Price
	longGross := ctx.QuantityLong.Mul(longPrice)
	longFeeTrade := longGross.Mul(longTrade)
	longFeeWithdraw := longGross.Mul(longWithdraw)
	longNet := longGross.Add(longFeeTrade)

	peg := ctx.PegPrice
	pegFeeIOF := shortNet.Mul(pegIOF)
	pegShortTotal := shortNet.Sub(pegFeeIOF)
	pegLongTotal := shortGross.Sub(shortFeeWithdraw)

	pegRawPrice := div(peg, one.Add(pegIOF))
	pegUnitFeeExchange := pegRawPrice.Mul(pegExchange)
	pegUnitFeeIOF := peg.Mul(pegIOF)
	pegNetPrice := pegRawPrice.Add(pegUnitFeeExchange).Add(pegUnitFeeIOF)
	pegBuyUSD := div(shortGross, peg)

	pnlUSD := div(pegShortTotal, peg).Sub(longNet)
	pnlBRL := pnlUSD.Mul(peg)
	pnlSpread := div(pnlBRL, shortNet)

	return domain.Summary{
		Version: SummaryVersion,
		ShortLeg: domain.SummaryLeg{
			Quantity:    Fixed(ctx.QuantityShort, 8),
			Price:       Fixed(shortPrice, 2),
			GrossTotal:  Fixed(shortGross, 2),
			FeeTrade:    Fixed(shortFeeTrade, 2),
			FeeWithdraw: Fixed(shortFeeWithdraw, 2),
			NetTotal:    Fixed(shortNet, 2),
		},
		LongLeg: domain.SummaryLeg{
			Quantity:    Fixed(ctx.QuantityLong, 8),
			Price:       Fixed(longPrice, longDecimals),
			GrossTotal:  Fixed(longGross, longDecimals),
			FeeTrade:    Fixed(longFeeTrade, longDecimals),
			FeeWithdraw: Fixed(longFeeWithdraw, longDecimals),
			NetTotal:    Fixed(longNet, longDecimals),
		},
		PegLeg: domain.SummaryPeg{
			Price:           Fixed(pegNetPrice, longDecimals),
			UnitFeeExchange: Fixed(pegUnitFeeExchange, 2),
			UnitFeeIOF:      Fixed(pegUnitFeeIOF, 2),
			LongTotal:       Fixed(pegLongTotal, longDecimals),
			BuyUSD:          Fixed(pegBuyUSD, longDecimals),
		},
		PAndL: domain.ProfitAndLoss{
			USD:           Fixed(pnlUSD, longDecimals),
			BRL:           Fixed(pnlBRL, longDecimals),
			Spread:        Percent(pnlSpread, longDecimals),
			TargetReached: pnlSpread.GreaterThan(ctx.Parameters.TargetSpread),
		},
	}, nil
}

// div divides with a zero guard; a zero divisor yields zero.
func div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, 16)
}
