package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	billing_errors "billing-lifecycle/pkg/errors"
)

// RatePrecision is the number of decimal places kept on effective rates.
const RatePrecision = 6

var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// MinorUnits returns the conventional number of decimals for an ISO 4217 code.
func MinorUnits(code string) int32 {
	if n, ok := minorUnits[strings.ToUpper(code)]; ok {
		return n
	}
	return 2
}

// RoundAmount rounds half away from zero to the currency's minor units.
func RoundAmount(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(MinorUnits(code))
}

// NormalizeCode validates and upper-cases a three letter currency code.
func NormalizeCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", fmt.Errorf("currency code %q: %w", code, billing_errors.ErrInvalidInput)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("currency code %q: %w", code, billing_errors.ErrInvalidInput)
		}
	}
	return c, nil
}
