package calc

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// Empty is displayed for values that are not known yet.
const Empty = "<empty>"

var hundred = decimal.NewFromInt(100)

// Fixed formats d with n decimal places, rounding half away from zero.
func Fixed(d decimal.Decimal, n int32) string {
	return d.StringFixed(n)
}

// Percent formats a fraction as a percentage with n decimal places.
func Percent(d decimal.Decimal, n int32) string {
	return d.Mul(hundred).StringFixed(n) + "%"
}

// Precision formats d with p significant digits. Like a JavaScript
// Number.toPrecision it switches to exponential notation when the exponent
// is >= p or < -6.
func Precision(d decimal.Decimal, p int) string {
	if p < 1 {
		p = 1
	}
	if d.IsZero() {
		if p == 1 {
			return "0"
		}
		return "0." + strings.Repeat("0", p-1)
	}

	e := magnitude(d)
	r := d.Round(int32(p - 1 - e))
	if m := magnitude(r); m != e {
		e = m
		r = d.Round(int32(p - 1 - e))
	}

	if e < -6 || e >= p {
		mantissa := r.Shift(int32(-e)).StringFixed(int32(p - 1))
		sign := "+"
		if e < 0 {
			sign = "-"
			e = -e
		}
		return mantissa + "e" + sign + strconv.Itoa(e)
	}
	return r.StringFixed(int32(p - 1 - e))
}

// magnitude returns the base 10 exponent of the most significant digit.
func magnitude(d decimal.Decimal) int {
	digits := len(strings.TrimPrefix(d.Coefficient().String(), "-"))
	return digits - 1 + int(d.Exponent())
}

// FormatPrice renders a price with four decimals, or Empty when the price is
// unknown or zero.
func FormatPrice(price decimal.NullDecimal) string {
	if !price.Valid || price.Decimal.IsZero() {
		return Empty
	}
	return price.Decimal.StringFixed(4)
}

// FormatDepthLevel renders a level as "quantity@price".
func FormatDepthLevel(level *domain.DepthLevel) string {
	if level == nil {
		return Empty
	}
	return level.String()
}

// FormatFeeService renders the display key of a fee.
func FormatFeeService(fee *domain.Fee) string {
	if fee == nil {
		return Empty
	}
	return fee.Service + " by " + fee.ServiceProvider
}

// FormatFeeNumbers renders a fee as "<rate%> + <fixed>", both with two
// significant digits.
func FormatFeeNumbers(fee *domain.Fee) string {
	if fee == nil {
		return Empty
	}
	return Precision(fee.Rate.Mul(hundred), 2) + "% + " + Precision(fee.Fixed, 2)
}

// FormatOrderToSend renders the order quantity the algo is about to send.
func FormatOrderToSend(qty decimal.NullDecimal) string {
	if !qty.Valid || qty.Decimal.IsZero() {
		return "Out of market"
	}
	return qty.Decimal.StringFixed(6) + " @ market"
}
