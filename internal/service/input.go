package service

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// leadingNumber matches the numeric prefix an operator value is read from,
// so "0.5 BTC" reads as 0.5.
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseNumber reads the leading number of s. A missing or empty value reads
// as zero; a value without a numeric prefix is rejected.
func parseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, true
	}
	m := leadingNumber.FindString(s)
	if m == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func parseFields(params map[string]string, keys ...string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(keys))
	for _, k := range keys {
		d, ok := parseNumber(params[k])
		if !ok {
			return nil, domain.NewInputValidationError("Invalid input")
		}
		out[k] = d
	}
	return out, nil
}

// ParseArbitrageInput builds the parameters of an arbitrage instance from
// operator strings.
func ParseArbitrageInput(params map[string]string) (domain.ArbitrageInput, error) {
	v, err := parseFields(params, "totalQuantity", "maxOrderQuantity", "targetSpread", "crowdFactor", "manualPegQuote")
	if err != nil {
		return domain.ArbitrageInput{}, err
	}
	return domain.ArbitrageInput{
		TotalQuantity:    v["totalQuantity"],
		MaxOrderQuantity: v["maxOrderQuantity"],
		TargetSpread:     v["targetSpread"],
		CrowdFactor:      v["crowdFactor"],
		ManualPegQuote:   v["manualPegQuote"],
	}, nil
}

// ParseOTCInput builds the parameters of an OTC instance. The spread is read
// from quoteSpread, falling back to targetSpread for older clients.
func ParseOTCInput(params map[string]string) (domain.OTCInput, error) {
	key := "quoteSpread"
	if strings.TrimSpace(params[key]) == "" {
		key = "targetSpread"
	}
	v, err := parseFields(params, key, "manualPegQuote")
	if err != nil {
		return domain.OTCInput{}, err
	}
	return domain.OTCInput{
		QuoteSpread:    v[key],
		ManualPegQuote: v["manualPegQuote"],
	}, nil
}
