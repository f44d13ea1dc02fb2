package decimal_test

import (
	"testing"

	dec "github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/erp-invoicer/internal/decimal"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"57.50", "57.5"},
		{" 399.99 ", "399.99"},
		{"1,150.00", "1150"},
		{"10.005", "10.005"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := decimal.ParseMoney(tt.input)
			require.NoError(t, err)
			assert.True(t, d.Equal(dec.RequireFromString(tt.expected)), "got %s", d)
		})
	}

	_, err := decimal.ParseMoney("")
	assert.Error(t, err)

	_, err = decimal.ParseMoney("12abc")
	assert.ErrorContains(t, err, "12abc")
}

func TestFromFloat(t *testing.T) {
	assert.True(t, decimal.FromFloat(100.555).Equal(dec.RequireFromString("100.56")))
	assert.True(t, decimal.FromFloat(57.5).Equal(dec.RequireFromString("57.50")))
	assert.True(t, decimal.FromFloat(0).IsZero())
}

func TestRoundMoney(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0.869565", "0.87"},
		{"0.125", "0.13"},
		{"-0.125", "-0.13"},
		{"100", "100"},
		{"7.4999", "7.5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := decimal.RoundMoney(dec.RequireFromString(tt.input))
			assert.True(t, result.Equal(dec.RequireFromString(tt.expected)),
				"expected %s, got %s", tt.expected, result)
		})
	}
}

func TestGrossUp(t *testing.T) {
	assert.True(t, decimal.GrossUp(dec.RequireFromString("0.15")).Equal(dec.RequireFromString("1.15")))
	assert.True(t, decimal.GrossUp(dec.Zero).Equal(dec.NewFromInt(1)))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "7.50", decimal.StringFixed(dec.RequireFromString("7.5")))
	assert.Equal(t, "100.00", decimal.StringFixed(dec.NewFromInt(100)))
	assert.Equal(t, "15%", decimal.Percent(dec.RequireFromString("0.15")))
	assert.Equal(t, "0%", decimal.Percent(dec.Zero))
}
