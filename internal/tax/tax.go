// Package tax splits tax-inclusive amounts for the domestic VAT rule.
package tax

import (
	"strings"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/erp-invoicer/internal/decimal"
	"github.com/rezonia/erp-invoicer/internal/model"
)

// DomesticRate is the VAT rate charged to domestic customers
var DomesticRate = decimal.RequireFromString("0.15")

// DomesticPrefixes are the phone prefixes that denote a domestic customer
var DomesticPrefixes = []string{"+966", "00966"}

var phoneNoise = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// IsDomestic reports whether a phone number belongs to a domestic customer.
// An absent phone is non-domestic.
func IsDomestic(phone string) bool {
	normalized := phoneNoise.Replace(strings.TrimSpace(phone))
	if normalized == "" {
		return false
	}
	for _, prefix := range DomesticPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

// Compute splits gross into excl and vat. Both are rounded independently and
// incl is re-derived from them so the three figures reconcile exactly.
func Compute(gross decimal.Decimal, domestic bool) model.TaxBreakdown {
	if !domestic {
		excl := money.RoundMoney(gross)
		return model.TaxBreakdown{
			IsDomestic:    false,
			VATRate:       decimal.Zero,
			AmountExclVAT: excl,
			VATAmount:     decimal.Zero,
			AmountInclVAT: excl,
		}
	}

	unrounded := gross.DivRound(money.GrossUp(DomesticRate), 16)
	excl := money.RoundMoney(unrounded)
	vat := money.RoundMoney(gross.Sub(unrounded))

	return model.TaxBreakdown{
		IsDomestic:    true,
		VATRate:       DomesticRate,
		AmountExclVAT: excl,
		VATAmount:     vat,
		AmountInclVAT: excl.Add(vat),
	}
}

// ForPhone is Compute with domesticity taken from the phone number
func ForPhone(gross decimal.Decimal, phone string) model.TaxBreakdown {
	return Compute(gross, IsDomestic(phone))
}
