package balance

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"intentLedger/internal/model"
)

// FormatUnits renders a minor-unit amount as a decimal string with the
// trailing zeros of the fraction trimmed.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ParseUnits parses a decimal string into minor units. More fractional
// digits than decimals is an error rather than a silent rounding.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty amount", model.ErrInvalidAmount)
	}
	if strings.ContainsAny(value, "eE") || strings.HasSuffix(value, ".") {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAmount, value)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAmount, value)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", model.ErrInvalidAmount, value, decimals)
	}
	return shifted.BigInt(), nil
}
