package tax_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rezonia/erp-invoicer/internal/tax"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		gross    string
		domestic bool
		excl     string
		vat      string
		incl     string
		rate     string
	}{
		{"domestic 115", "115.00", true, "100.00", "15.00", "115.00", "0.15"},
		{"non-domestic 100", "100.00", false, "100.00", "0.00", "100.00", "0"},
		{"domestic 1.00", "1.00", true, "0.87", "0.13", "1.00", "0.15"},
		{"domestic credits pack", "57.50", true, "50.00", "7.50", "57.50", "0.15"},
		{"domestic annual", "399.99", true, "347.82", "52.17", "399.99", "0.15"},
		{"non-domestic rounds gross", "10.005", false, "10.01", "0", "10.01", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tax.Compute(decimal.RequireFromString(tt.gross), tt.domestic)

			assert.Equal(t, tt.domestic, got.IsDomestic)
			assert.True(t, got.VATRate.Equal(decimal.RequireFromString(tt.rate)), "rate %s", got.VATRate)
			assert.True(t, got.AmountExclVAT.Equal(decimal.RequireFromString(tt.excl)), "excl %s", got.AmountExclVAT)
			assert.True(t, got.VATAmount.Equal(decimal.RequireFromString(tt.vat)), "vat %s", got.VATAmount)
			assert.True(t, got.AmountInclVAT.Equal(decimal.RequireFromString(tt.incl)), "incl %s", got.AmountInclVAT)
		})
	}
}

func TestCompute_AlwaysReconciles(t *testing.T) {
	for cents := int64(1); cents <= 20000; cents += 7 {
		gross := decimal.New(cents, -2)
		got := tax.Compute(gross, true)

		assert.True(t, got.AmountExclVAT.Add(got.VATAmount).Equal(got.AmountInclVAT), "gross %s", gross)
		assert.True(t, got.AmountExclVAT.Equal(got.AmountExclVAT.Round(2)), "excl precision at %s", gross)
		assert.True(t, got.VATAmount.Equal(got.VATAmount.Round(2)), "vat precision at %s", gross)
		// incl never drifts more than a cent from the charged amount
		assert.True(t, got.AmountInclVAT.Sub(gross).Abs().LessThanOrEqual(decimal.New(1, -2)), "drift at %s", gross)
	}
}

func TestIsDomestic(t *testing.T) {
	tests := []struct {
		phone    string
		expected bool
	}{
		{"+966501234567", true},
		{"00966501234567", true},
		{"+966 50 123 4567", true},
		{"(+966) 50-123-4567", true},
		{"+971501234567", false},
		{"0501234567", false},
		{"966501234567", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			assert.Equal(t, tt.expected, tax.IsDomestic(tt.phone))
		})
	}
}

func TestForPhone(t *testing.T) {
	got := tax.ForPhone(decimal.RequireFromString("115"), "+966500000000")
	assert.True(t, got.IsDomestic)
	assert.True(t, got.VATAmount.Equal(decimal.NewFromInt(15)))

	got = tax.ForPhone(decimal.RequireFromString("115"), "")
	assert.False(t, got.IsDomestic)
	assert.True(t, got.VATAmount.IsZero())
}
