// Package units converts between human-readable token amounts and
// smallest-unit integers.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a human amount such as "1.5" into smallest units for a
// token with the given decimals.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if decimals < 0 {
		return nil, fmt.Errorf("invalid decimals: %d", decimals)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}

	return shifted.BigInt(), nil
}

// FormatUnits renders a smallest-unit integer as a human amount with no
// trailing zeros, e.g. ("3000000000", 6) -> "3000".
func FormatUnits(raw string, decimals int32) (string, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return "", fmt.Errorf("invalid integer amount: %q", raw)
	}
	return FormatBig(v, decimals), nil
}

// FormatBig is FormatUnits for a *big.Int
func FormatBig(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// FormatFixed renders raw with a fixed number of decimal places
func FormatFixed(raw string, decimals, places int32) (string, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return "", fmt.Errorf("invalid integer amount: %q", raw)
	}
	return decimal.NewFromBigInt(v, -decimals).StringFixed(places), nil
}

// FormatTaxBps renders basis points as a percentage with two places ("500" -> "5.00")
func FormatTaxBps(bps string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(bps))
	if err != nil {
		return "0.00"
	}
	return d.Div(decimal.NewFromInt(100)).StringFixed(2)
}

// IsZeroBps reports whether a bps string is empty or zero
func IsZeroBps(bps string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(bps))
	return err != nil || d.IsZero()
}
