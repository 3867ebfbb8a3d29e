package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "0", true},
		{"  ", "0", true},
		{"1.5", "1.5", true},
		{"0.5 BTC", "0.5", true},
		{".25", "0.25", true},
		{"-3", "-3", true},
		{"1e-3", "0.001", true},
		{"12abc", "12", true},
		{"abc", "", false},
		{"-", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseNumber(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, got.Equal(d(tt.want)), "got %s", got)
			}
		})
	}
}

func TestParseArbitrageInput(t *testing.T) {
	in, err := ParseArbitrageInput(map[string]string{
		"totalQuantity":    "1",
		"maxOrderQuantity": "0.1",
		"targetSpread":     "0.01",
		"crowdFactor":      "1",
	})
	require.NoError(t, err)
	assert.True(t, in.TotalQuantity.Equal(d("1")))
	assert.True(t, in.MaxOrderQuantity.Equal(d("0.1")))
	assert.True(t, in.TargetSpread.Equal(d("0.01")))
	assert.True(t, in.CrowdFactor.Equal(d("1")))
	assert.True(t, in.ManualPegQuote.IsZero(), "missing keys read as zero")
}

func TestParseArbitrageInputRejectsText(t *testing.T) {
	_, err := ParseArbitrageInput(map[string]string{"totalQuantity": "lots"})

	var ve *domain.InputValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "Invalid input", ve.Message)
}

func TestParseOTCInput(t *testing.T) {
	in, err := ParseOTCInput(map[string]string{"quoteSpread": "0.02", "manualPegQuote": "5.1"})
	require.NoError(t, err)
	assert.True(t, in.QuoteSpread.Equal(d("0.02")))
	assert.True(t, in.ManualPegQuote.Equal(d("5.1")))

	in, err = ParseOTCInput(map[string]string{"targetSpread": "0.03"})
	require.NoError(t, err)
	assert.True(t, in.QuoteSpread.Equal(d("0.03")), "targetSpread is accepted as the spread")
}
