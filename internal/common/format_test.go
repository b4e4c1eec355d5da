package common

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0", "R$ 0,00"},
		{"5", "R$ 5,00"},
		{"0.5", "R$ 0,50"},
		{"999.999", "R$ 1.000,00"},
		{"1234.56", "R$ 1.234,56"},
		{"1234567.8", "R$ 1.234.567,80"},
		{"-42.1", "-R$ 42,10"},
	}

	for _, tt := range tests {
		got := FormatBRL(decimal.RequireFromString(tt.amount))
		if got != tt.want {
			t.Errorf("FormatBRL(%s) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(decimal.RequireFromString("2.5")); got != "2.5%" {
		t.Errorf("Expected 2.5%%, got %q", got)
	}
}
