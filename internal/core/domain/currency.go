package domain

import "strings"

// SmallestUnitsPerWhole is the number of satoshi in one bitcoin.
const SmallestUnitsPerWhole int64 = 100_000_000

// Currency is an ISO-4217 fiat code.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencySGD Currency = "SGD"
	CurrencyIDR Currency = "IDR"
)

// DefaultCurrency is the preferred currency of a freshly created ledger account.
const DefaultCurrency = CurrencyUSD

// ParseCurrency normalizes user input. It does not check support;
// that is the conversion oracle's call.
func ParseCurrency(s string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(s)))
}

func (c Currency) String() string {
	return string(c)
}
