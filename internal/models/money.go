package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a claim or payment is created without one.
const DefaultCurrency = "EUR"

// MoneyPlaces is the number of fractional digits amounts are kept at.
const MoneyPlaces = 2

// IsMoney reports whether d has no more than MoneyPlaces fractional digits.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// FormatMoney renders an amount with exactly MoneyPlaces fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// NormalizeCurrency upper-cases a currency code and substitutes the default
// for an empty one. It fails for anything that is not three ASCII letters.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if len(code) != 3 {
		return "", fmt.Errorf("currency %q must be a three-letter code", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("currency %q must be a three-letter code", code)
		}
	}
	return code, nil
}
