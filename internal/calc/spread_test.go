package calc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fee(provider, service, rate string) *domain.Fee {
	return &domain.Fee{ServiceProvider: provider, Service: service, Rate: d(rate), Fixed: decimal.Zero}
}

func TestMarketSpread(t *testing.T) {
	fees := domain.ArbitrageFees{
		ShortTradeTaker:  fee("foxbit", domain.ServiceTradeTaker, "0"),
		ShortWithdrawBRL: fee("foxbit", domain.ServiceWithdrawBRL, "0.001"),
		LongTradeTaker:   fee("bitstamp", domain.ServiceTradeTaker, "0"),
		LongWithdrawBTC:  fee("bitstamp", domain.ServiceWithdrawBTC, "0"),
		PegExchange:      fee("plural", domain.ServiceExchange, "0.002"),
		PegIOF:           fee("plural", domain.ServiceIOF, "0.0038"),
	}
	f, ok := NewFeeFactors(fees)
	require.True(t, ok)

	spread := MarketSpread(f, d("32598.98"), d("6048.34"), d("5.255"))
	assert.Equal(t, "2.02%", Percent(spread, 2))
}

func TestNewFeeFactorsIncomplete(t *testing.T) {
	_, ok := NewFeeFactors(domain.ArbitrageFees{PegIOF: fee("plural", domain.ServiceIOF, "0.0038")})
	assert.False(t, ok)
}
