package calc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func fixtureFees(rate string) domain.ArbitrageFees {
	return domain.ArbitrageFees{
		ShortTradeTaker:  fee("foxbit", domain.ServiceTradeTaker, rate),
		ShortWithdrawBRL: fee("foxbit", domain.ServiceWithdrawBRL, rate),
		LongTradeTaker:   fee("bitstamp", domain.ServiceTradeTaker, rate),
		LongWithdrawBTC:  fee("bitstamp", domain.ServiceWithdrawBTC, rate),
		PegExchange:      fee("plural", domain.ServiceExchange, rate),
		PegIOF:           fee("plural", domain.ServiceIOF, rate),
	}
}

func fixtureContext(qty, shortPrice, longPrice string) domain.ExecutionContext {
	return domain.ExecutionContext{
		QuantityShort:  d(qty),
		QuantityLong:   d(qty),
		ShortBestOffer: domain.DepthLevel{Quantity: d("1"), Price: d(shortPrice)},
		LongBestOffer:  domain.DepthLevel{Quantity: d("1"), Price: d(longPrice)},
		PegPrice:       d("5.7603"),
		Fees:           fixtureFees("0.001"),
		Parameters: domain.ArbitrageInput{
			TotalQuantity:    d("1"),
			MaxOrderQuantity: d("0.1"),
			TargetSpread:     d("-0.19"),
			CrowdFactor:      d("1"),
		},
	}
}

func TestSummarize(t *testing.T) {
	got, err := Summarize(fixtureContext("0.03136437", "49220.01", "9500.38"))
	require.NoError(t, err)

	assert.Equal(t, domain.Summary{
		Version: 2,
		ShortLeg: domain.SummaryLeg{
			Quantity:    "0.03136437",
			Price:       "49220.01",
			GrossTotal:  "1543.75",
			FeeTrade:    "1.54",
			FeeWithdraw: "1.54",
			NetTotal:    "1540.67",
		},
		LongLeg: domain.SummaryLeg{
			Quantity:    "0.03136437",
			Price:       "9500.3800",
			GrossTotal:  "297.9734",
			FeeTrade:    "0.2980",
			FeeWithdraw: "0.2980",
			NetTotal:    "298.2714",
		},
		PegLeg: domain.SummaryPeg{
			Price:           "5.7661",
			UnitFeeExchange: "0.01",
			UnitFeeIOF:      "0.01",
			LongTotal:       "1542.2109",
			BuyUSD:          "267.9990",
		},
		PAndL: domain.ProfitAndLoss{
			USD:           "-31.0759",
			BRL:           "-179.0064",
			Spread:        "-11.6188%",
			TargetReached: true,
		},
	}, got)
}

func TestSummarizeProfitable(t *testing.T) {
	got, err := Summarize(fixtureContext("0.12345678", "63850", "10750"))
	require.NoError(t, err)

	assert.Equal(t, "63850.00", got.ShortLeg.Price)
	assert.Equal(t, "7882.72", got.ShortLeg.GrossTotal)
	assert.Equal(t, "7866.95", got.ShortLeg.NetTotal)
	assert.Equal(t, "10750.0000", got.LongLeg.Price)
	assert.Equal(t, "1328.4875", got.LongLeg.NetTotal)
	assert.Equal(t, "7874.8327", got.PegLeg.LongTotal)
	assert.Equal(t, "1368.4557", got.PegLeg.BuyUSD)
	assert.Equal(t, "35.8655", got.PAndL.USD)
	assert.Equal(t, "206.5962", got.PAndL.BRL)
	assert.Equal(t, "2.6261%", got.PAndL.Spread)
	assert.True(t, got.PAndL.TargetReached)
}

func TestSummarizeTargetIsStrict(t *testing.T) {
	ctx := fixtureContext("0.12345678", "63850", "10750")
	ctx.Parameters.TargetSpread = d("0.5")

	got, err := Summarize(ctx)
	require.NoError(t, err)
	assert.False(t, got.PAndL.TargetReached)
}

func TestSummarizeMissingFee(t *testing.T) {
	slots := []func(*domain.ArbitrageFees){
		func(f *domain.ArbitrageFees) { f.ShortTradeTaker = nil },
		func(f *domain.ArbitrageFees) { f.ShortWithdrawBRL = nil },
		func(f *domain.ArbitrageFees) { f.LongTradeTaker = nil },
		func(f *domain.ArbitrageFees) { f.LongWithdrawBTC = nil },
		func(f *domain.ArbitrageFees) { f.PegExchange = nil },
		func(f *domain.ArbitrageFees) { f.PegIOF = nil },
	}
	for i, unset := range slots {
		ctx := fixtureContext("0.03136437", "49220.01", "9500.38")
		unset(&ctx.Fees)

		_, err := Summarize(ctx)
		assert.Truef(t, errors.Is(err, domain.ErrMissingFee), "slot %d: %v", i, err)
	}
}
