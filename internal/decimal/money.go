// Package decimal holds money helpers for ERP amounts. Every stored or
// displayed amount carries two decimal places.
package decimal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the precision of every stored or displayed amount
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// ParseMoney parses a caller-supplied amount such as "57.50" or "1,150.00"
func ParseMoney(s string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// FromFloat converts an XML-RPC double to money precision
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(MoneyPlaces)
}

// RoundMoney rounds half away from zero to 2 places
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// GrossUp returns 1 + rate, the divisor that strips tax from an inclusive amount
func GrossUp(rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(rate)
}

// StringFixed formats with exactly 2 decimals ("7.50")
func StringFixed(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// Percent renders a rate as a percentage ("15%")
func Percent(rate decimal.Decimal) string {
	return rate.Mul(hundred).Round(2).String() + "%"
}
