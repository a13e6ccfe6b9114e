package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount in minor units with the given currency
// exponent, e.g. FormatAmount(1234, 2) == "12.34".
func FormatAmount(amount int64, exponent int32) string {
	return decimal.New(amount, -exponent).StringFixed(exponent)
}

// ParseAmount parses a decimal string ("12,000", "4.50") into minor units.
// Values with more precision than the exponent allows are rejected.
func ParseAmount(s string, exponent int32) (int64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	minor := d.Shift(exponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, exponent)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return minor.IntPart(), nil
}
