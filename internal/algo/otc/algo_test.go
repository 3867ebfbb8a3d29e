package otc

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

type fakeExecutor struct {
	quotes    []decimal.Decimal
	finalized int
}

func (f *fakeExecutor) SetQuote(_ context.Context, price decimal.Decimal) error {
	f.quotes = append(f.quotes, price)
	return nil
}

func (f *fakeExecutor) OnFinalized() { f.finalized++ }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fee(service, rate string) *domain.Fee {
	return &domain.Fee{Service: service, ServiceProvider: "testProvider", Rate: d(rate), Fixed: decimal.Zero}
}

func longBook() domain.Depth {
	return domain.Depth{
		Instrument: LongLeg,
		Asks: []domain.DepthLevel{
			{Quantity: d("2"), Price: d("10000")},
			{Quantity: d("2"), Price: d("10000")},
			{Quantity: d("2"), Price: d("10300")},
			{Quantity: d("1"), Price: d("99999")},
		},
	}
}

func initialize(t *testing.T, a *Algo) {
	t.Helper()
	a.OnPegFee(domain.ServiceExchange, fee("exchange", "0.002"))
	a.OnPegFee(domain.ServiceIOF, fee("iof", "0.0038"))
	a.OnLongFee(domain.ServiceTradeTaker, fee("trade-taker", "0.005"))
	a.OnLongDepth(longBook())
	a.OnPegQuote(domain.Quote{Instrument: PegLeg, Price: d("5")})
	require.NoError(t, a.SetInput(domain.OTCInput{QuoteSpread: d("0.01")}))
}

func TestAlgo_QuotesOnceInitialized(t *testing.T) {
	exec := &fakeExecutor{}
	a := New(3, exec)
	assert.Equal(t, StateInitializing, a.State())

	initialize(t, a)

	assert.Equal(t, StateQuote, a.State())
	require.NotEmpty(t, exec.quotes)
	// 10100 * 5 * (0.002 + 0.0038) * (0.995 + 0.01)
	assert.True(t, d("294.3645").Equal(exec.quotes[len(exec.quotes)-1]), "got %s", exec.quotes[len(exec.quotes)-1])

	out := a.Output()
	assert.Equal(t, "294.3645", out["quotePrice"])
	assert.Equal(t, "10100.0000", out["averageDepthPrice"])
	assert.Equal(t, "QUOTE", a.Data().State)
}

func TestAlgo_Requote(t *testing.T) {
	exec := &fakeExecutor{}
	a := New(3, exec)
	initialize(t, a)
	n := len(exec.quotes)

	a.Requote()

	assert.Equal(t, StateQuote, a.State())
	assert.Len(t, exec.quotes, n+1)
}

func TestAlgo_RequoteIgnoredWhileInitializing(t *testing.T) {
	exec := &fakeExecutor{}
	a := New(3, exec)
	a.Requote()
	assert.Equal(t, StateInitializing, a.State())
	assert.Empty(t, exec.quotes)
}

func TestAlgo_PauseStopsQuoting(t *testing.T) {
	exec := &fakeExecutor{}
	a := New(3, exec)
	initialize(t, a)

	a.TogglePause()
	require.Equal(t, StatePaused, a.State())
	n := len(exec.quotes)

	a.OnLongDepth(longBook())
	require.NoError(t, a.SetInput(domain.OTCInput{QuoteSpread: d("0.02")}))
	assert.Len(t, exec.quotes, n)

	a.TogglePause()
	assert.Equal(t, StateQuote, a.State())
	assert.Len(t, exec.quotes, n+1)
}

func TestAlgo_EmptyBookQuotesZero(t *testing.T) {
	exec := &fakeExecutor{}
	a := New(3, exec)
	initialize(t, a)
	n := len(exec.quotes)

	a.OnLongDepth(domain.Depth{Instrument: LongLeg, Asks: []domain.DepthLevel{}})

	assert.True(t, a.QuotePrice().IsZero())
	assert.Len(t, exec.quotes, n)
	assert.Equal(t, "<empty>", a.Output()["averageDepthPrice"])
}

func TestAlgo_InputValidation(t *testing.T) {
	tests := []struct {
		name    string
		in      domain.OTCInput
		message string
	}{
		{"zero spread", domain.OTCInput{QuoteSpread: decimal.Zero}, "Invalid input"},
		{"negative manual quote", domain.OTCInput{QuoteSpread: d("0.01"), ManualPegQuote: d("-1")}, "Invalid input"},
		{"manual quote below floor", domain.OTCInput{QuoteSpread: d("0.01"), ManualPegQuote: d("3")}, "Manual Quote must be greater or equal than 4.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(3, &fakeExecutor{})
			err := a.SetInput(tt.in)

			var verr *domain.InputValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.message, verr.Message)
		})
	}
}

func TestAlgo_ManualPegQuote(t *testing.T) {
	exec := &fakeExecutor{}
	a := New(3, exec)
	a.OnPegFee(domain.ServiceExchange, fee("exchange", "0.002"))
	a.OnPegFee(domain.ServiceIOF, fee("iof", "0.0038"))
	a.OnLongDepth(longBook())
	require.NoError(t, a.SetInput(domain.OTCInput{QuoteSpread: d("0.01"), ManualPegQuote: d("5.7")}))

	assert.Equal(t, StateQuote, a.State())
	assert.True(t, a.UsingManualQuote())
	price, ok := a.PegPrice()
	require.True(t, ok)
	assert.True(t, price.Equal(d("5.7")))

	a.OnPegStatus(domain.ServiceStatus{Available: false, Message: "plural down"})
	assert.Equal(t, StateQuote, a.State())
}

func TestAlgo_MarketDataError(t *testing.T) {
	a := New(3, &fakeExecutor{})
	initialize(t, a)

	a.OnStatus(domain.ServiceStatus{Available: false, Message: "bitstamp down"})

	assert.Equal(t, StateError, a.State())
	assert.Equal(t, "bitstamp down", a.Output()["errorMsg"])
}

func TestAlgo_Finalize(t *testing.T) {
	exec := &fakeExecutor{}
	a := New(3, exec)
	initialize(t, a)

	a.Finalize()
	a.Finalize()

	assert.Equal(t, StateFinalized, a.State())
	assert.Equal(t, 1, exec.finalized)
}

func TestAlgo_Input(t *testing.T) {
	a := New(3, &fakeExecutor{})
	require.NoError(t, a.SetInput(domain.OTCInput{QuoteSpread: d("0.015"), ManualPegQuote: d("5")}))
	assert.Equal(t, map[string]string{"quoteSpread": "0.015", "manualPegQuote": "5"}, a.Input())
}
