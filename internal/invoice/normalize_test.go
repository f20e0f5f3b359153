package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"german thousands and decimal", "1.234,56", 1234.56},
		{"german decimal only", "1234,56", 1234.56},
		{"english thousands and decimal", "1,234.56", 1234.56},
		{"german repeated thousands", "1.234.567,89", 1234567.89},
		{"english repeated thousands", "1,234,567.89", 1234567.89},
		{"plain decimal", "1234.56", 1234.56},
		{"currency suffix", "100,00 EUR", 100.00},
		{"currency symbol", "1.234,56 €", 1234.56},
		{"integer", "250", 250},
		{"empty", "", 0},
		{"sentinel", "Nicht gefunden", 0},
		{"not found sentinel", "Not found", 0},
		{"garbage", "abc", 0},
		{"whitespace", "   ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizeAmount(tt.raw), 0.001)
		})
	}
}

func TestNormalizeAmountAgreesAcrossLocales(t *testing.T) {
	// The same value written in either locale must normalize identically.
	variants := []string{"1.234,56", "1234,56", "1,234.56", "1234.56"}
	for _, v := range variants {
		assert.InDelta(t, 1234.56, NormalizeAmount(v), 0.001, "variant %q", v)
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"iso passthrough", "2023-12-31", "2023-12-31"},
		{"german", "31.12.2023", "2023-12-31"},
		{"slash", "31/12/2023", "2023-12-31"},
		{"dash", "31-12-2023", "2023-12-31"},
		{"short year", "31.12.23", "2023-12-31"},
		{"single digit german", "1.2.2023", "2023-02-01"},
		{"iso slash", "2023/12/31", "2023-12-31"},
		{"empty", "", ""},
		{"null sentinel", "Nicht gefunden", ""},
		{"garbage", "tomorrow", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDate(tt.raw))
		})
	}
}
