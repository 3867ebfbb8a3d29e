package calc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func sizingInput() domain.ArbitrageInput {
	return domain.ArbitrageInput{
		TotalQuantity:    d("1"),
		MaxOrderQuantity: d("0.1"),
		TargetSpread:     d("0.01"),
		CrowdFactor:      d("0.4"),
	}
}

func TestOrderQuantityCrowdFactor(t *testing.T) {
	in := sizingInput()

	cases := []struct {
		name   string
		market string
		want   string
	}{
		{"at max order", "0.1", "0.1"},
		{"below threshold", "0.144", "0.1"},
		{"at threshold", "0.145", "0.1"},
		{"twice max order", "0.2", "0.08"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := OrderQuantity(d(tc.market), d("5"), in, decimal.Zero)
			assert.True(t, d(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestOrderQuantityRemaining(t *testing.T) {
	in := sizingInput()
	got := OrderQuantity(d("3"), d("3"), in, d("0.95"))
	assert.True(t, d("0.05").Equal(got), "got %s", got)
}

func TestOrderQuantityNeverAboveCaps(t *testing.T) {
	in := sizingInput()
	for _, qty := range []string{"0.01", "0.09", "0.1", "0.5", "10", "1000"} {
		got := OrderQuantity(d(qty), d(qty), in, d("0.3"))
		assert.True(t, got.LessThanOrEqual(in.MaxOrderQuantity))
		assert.True(t, got.LessThanOrEqual(in.TotalQuantity.Sub(d("0.3"))))
	}
}

func TestLegQuantities(t *testing.T) {
	short, long := LegQuantities(d("0.002"), d("10000"))
	assert.True(t, d("0.002").Equal(short))
	assert.True(t, long.IsZero())

	short, long = LegQuantities(d("0.0025"), d("10000"))
	assert.True(t, d("0.0025").Equal(short))
	assert.True(t, d("0.0025").Equal(long))
}
