package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   int64
		exponent int32
		want     string
	}{
		{1234, 2, "12.34"},
		{5, 2, "0.05"},
		{12000, 0, "12000"},
		{-150, 2, "-1.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAmount(tt.amount, tt.exponent), "FormatAmount(%d, %d)", tt.amount, tt.exponent)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("12,000", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), got)

	got, err = ParseAmount(" 4.50 ", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(450), got)

	_, err = ParseAmount("4.505", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decimal places")

	_, err = ParseAmount("abc", 0)
	require.Error(t, err)
}
