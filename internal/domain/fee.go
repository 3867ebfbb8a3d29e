package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fee is the cost charged by a service provider for a named service. Rate is
// a fraction of the service value (0.001 = 0.1%); Fixed is an absolute charge
// in the currency native to the service.
type Fee struct {
	ID              int64           `json:"id"`
	Service         string          `json:"service"`
	ServiceProvider string          `json:"serviceProvider"`
	Fixed           decimal.Decimal `json:"fixed"`
	Rate            decimal.Decimal `json:"rate"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Well-known services.
const (
	ServiceTradeTaker  = "trade-taker"
	ServiceWithdrawBRL = "withdraw-brl"
	ServiceWithdrawBTC = "withdraw-btc"
	ServiceExchange    = "exchange"
	ServiceIOF         = "iof"
)

// ArbitrageFees holds the latest known fee for every slot the triangular
// arbitrage needs. A nil slot means the fee has not been received yet.
type ArbitrageFees struct {
	ShortTradeTaker  *Fee `json:"shortTradeTaker"`
	ShortWithdrawBRL *Fee `json:"shortWithdrawBrl"`
	LongTradeTaker   *Fee `json:"longTradeTaker"`
	LongWithdrawBTC  *Fee `json:"longWithdrawBtc"`
	PegExchange      *Fee `json:"pegExchange"`
	PegIOF           *Fee `json:"pegIof"`
}

// Complete reports whether all six slots are filled.
func (f ArbitrageFees) Complete() bool {
	return f.ShortTradeTaker != nil &&
		f.ShortWithdrawBRL != nil &&
		f.LongTradeTaker != nil &&
		f.LongWithdrawBTC != nil &&
		f.PegExchange != nil &&
		f.PegIOF != nil
}

// Clone returns a copy whose slots no longer alias the receiver's.
func (f ArbitrageFees) Clone() ArbitrageFees {
	cp := func(fee *Fee) *Fee {
		if fee == nil {
			return nil
		}
		c := *fee
		return &c
	}
	return ArbitrageFees{
		ShortTradeTaker:  cp(f.ShortTradeTaker),
		ShortWithdrawBRL: cp(f.ShortWithdrawBRL),
		LongTradeTaker:   cp(f.LongTradeTaker),
		LongWithdrawBTC:  cp(f.LongWithdrawBTC),
		PegExchange:      cp(f.PegExchange),
		PegIOF:           cp(f.PegIOF),
	}
}
