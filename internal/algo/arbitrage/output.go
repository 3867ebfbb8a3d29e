package arbitrage

import (
	"strings"

	"github.com/jthomazinho/vimana-arbitrage/internal/calc"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// Output returns the display fields of the instance.
func (a *Algo) Output() map[string]string {
	out := map[string]string{
		"state":            string(a.State()),
		"errorMsg":         a.errorMsg,
		"longQtyExecuted":  calc.Fixed(a.longQtyExecuted, 6),
		"shortQtyExecuted": calc.Fixed(a.shortQtyExecuted, 6),
		"shortLeg":         ShortLeg.String(),
		"shortBestOffer":   calc.FormatDepthLevel(a.shortBestOffer),
		"longLeg":          LongLeg.String(),
		"longBestOffer":    calc.FormatDepthLevel(a.longBestOffer),
		"pegLeg":           PegLeg.String(),
		"pegPrice":         calc.FormatPrice(a.pegPrice),
		"marketSpread":     calc.Percent(a.marketSpread, 2),
		"orderToSend":      calc.FormatOrderToSend(a.orderQty),
	}
	if a.usingManualQuote {
		out["usingManualQuote"] = "true"
	}
	for _, fee := range []*domain.Fee{
		a.fees.ShortTradeTaker,
		a.fees.ShortWithdrawBRL,
		a.fees.LongTradeTaker,
		a.fees.LongWithdrawBTC,
		a.fees.PegIOF,
		a.fees.PegExchange,
	} {
		out[calc.FormatFeeService(fee)] = calc.FormatFeeNumbers(fee)
	}
	return out
}

// Data returns the public view of the instance.
func (a *Algo) Data() domain.AlgoData {
	return domain.AlgoData{
		State:  strings.ToUpper(string(a.State())),
		Output: a.Output(),
		Input:  a.Input(),
	}
}
