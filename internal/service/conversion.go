package service

import (
	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/shopspring/decimal"
)

// DefaultRates is the whole-currency value of one whole coin.
var DefaultRates = map[domain.Currency]decimal.Decimal{
	domain.CurrencyUSD: decimal.NewFromInt(95_000),
	domain.CurrencyGBP: decimal.NewFromInt(75_000),
	domain.CurrencySGD: decimal.NewFromInt(128_000),
	domain.CurrencyIDR: decimal.NewFromInt(1_500_000_000),
}

var unitsPerWhole = decimal.NewFromInt(domain.SmallestUnitsPerWhole)

// StaticRateOracle implements ports.ConversionOracle over a fixed rate table.
type StaticRateOracle struct {
	rates map[domain.Currency]decimal.Decimal
}

// NewStaticRateOracle creates an oracle over DefaultRates.
func NewStaticRateOracle() *StaticRateOracle {
	return NewRateOracle(DefaultRates)
}

// NewRateOracle creates an oracle over a copy of rates.
func NewRateOracle(rates map[domain.Currency]decimal.Decimal) *StaticRateOracle {
	cp := make(map[domain.Currency]decimal.Decimal, len(rates))
	for c, r := range rates {
		cp[c] = r
	}
	return &StaticRateOracle{rates: cp}
}

// ToSmallestUnit returns floor(fiat / rate * 1e8). Fractions of a satoshi
// are truncated, never rounded.
func (o *StaticRateOracle) ToSmallestUnit(fiat decimal.Decimal, currency domain.Currency) (int64, error) {
	rate, err := o.Rate(currency)
	if err != nil {
		return 0, err
	}
	q, _ := fiat.Mul(unitsPerWhole).QuoRem(rate, 0)
	return q.IntPart(), nil
}

// ToFiat returns units / 1e8 * rate.
func (o *StaticRateOracle) ToFiat(units int64, currency domain.Currency) (decimal.Decimal, error) {
	rate, err := o.Rate(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(units, -8).Mul(rate), nil
}

// Rate returns the value of one whole coin in currency.
func (o *StaticRateOracle) Rate(currency domain.Currency) (decimal.Decimal, error) {
	rate, ok := o.rates[currency]
	if !ok {
		return decimal.Zero, apperror.ErrUnsupportedCurrency(string(currency))
	}
	return rate, nil
}

// Rates returns a copy of the rate table.
func (o *StaticRateOracle) Rates() map[domain.Currency]decimal.Decimal {
	cp := make(map[domain.Currency]decimal.Decimal, len(o.rates))
	for c, r := range o.rates {
		cp[c] = r
	}
	return cp
}
