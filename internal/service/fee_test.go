package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateFee(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0", "0.00"},
		{"1", "8.03"},
		{"1000", "38.00"},
		{"1000.01", "31.00"},
		{"5000", "131.00"},
		{"5000.01", "104.00"},
		{"10000", "204.00"},
		{"10000.01", "103.00"},
		{"12000", "123.00"},
		{"-1000", "38.00"},
		{"333.33", "18.00"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			fee := CalculateFee(decimal.RequireFromString(tt.amount))
			assert.Equal(t, tt.want, fee.StringFixed(2))
		})
	}
}

func TestCalculateFee_RoundsOnlyResult(t *testing.T) {
	// 6 + 1234.57 * 0.025 = 36.86425
	fee := CalculateFee(decimal.RequireFromString("1234.57"))
	assert.True(t, fee.Equal(decimal.RequireFromString("36.86")), fee.String())
}
