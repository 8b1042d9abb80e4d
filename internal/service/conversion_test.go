package service

import (
	"errors"
	"testing"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRateOracle_ToSmallestUnit(t *testing.T) {
	oracle := NewStaticRateOracle()

	tests := []struct {
		fiat     string
		currency domain.Currency
		want     int64
	}{
		{"100.00", domain.CurrencyUSD, 105263},
		{"95000", domain.CurrencyUSD, 100_000_000},
		{"75", domain.CurrencyGBP, 100_000},
		{"1", domain.CurrencySGD, 781},
		{"15000", domain.CurrencyIDR, 1000},
		{"0.0001", domain.CurrencyUSD, 0},
	}

	for _, tt := range tests {
		t.Run(tt.fiat+" "+string(tt.currency), func(t *testing.T) {
			got, err := oracle.ToSmallestUnit(decimal.RequireFromString(tt.fiat), tt.currency)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticRateOracle_TruncatesNeverRounds(t *testing.T) {
	oracle := NewStaticRateOracle()

	// 100/95000*1e8 = 105263.157..., 199.99/95000*1e8 = 210515.789...
	got, err := oracle.ToSmallestUnit(decimal.RequireFromString("199.99"), domain.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(210515), got)
}

func TestStaticRateOracle_ToFiat(t *testing.T) {
	oracle := NewStaticRateOracle()

	got, err := oracle.ToFiat(100_000, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(95).Equal(got), got.String())

	got, err = oracle.ToFiat(5263, domain.CurrencyGBP)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.94725").Equal(got), got.String())
}

func TestStaticRateOracle_RoundTripWithinOneUnit(t *testing.T) {
	oracle := NewStaticRateOracle()
	amounts := []string{"0.01", "1", "12.34", "100", "999.99", "250000", "1000000"}

	for currency, rate := range DefaultRates {
		oneUnit := rate.Div(unitsPerWhole)
		for _, a := range amounts {
			x := decimal.RequireFromString(a)
			units, err := oracle.ToSmallestUnit(x, currency)
			require.NoError(t, err)
			back, err := oracle.ToFiat(units, currency)
			require.NoError(t, err)

			diff := x.Sub(back)
			assert.False(t, diff.IsNegative(), "%s %s: truncation must not overshoot", a, currency)
			assert.True(t, diff.LessThan(oneUnit), "%s %s: diff %s exceeds one unit %s", a, currency, diff, oneUnit)
		}
	}
}

func TestStaticRateOracle_UnsupportedCurrency(t *testing.T) {
	oracle := NewStaticRateOracle()

	_, err := oracle.ToSmallestUnit(decimal.NewFromInt(1), "EUR")
	assert.True(t, errors.Is(err, apperror.ErrUnsupportedCurrency("EUR")))

	_, err = oracle.ToFiat(1, "XYZ")
	assert.Equal(t, apperror.CodeUnsupportedCurrency, apperror.CodeOf(err))

	_, err = oracle.Rate("")
	assert.Error(t, err)
}

func TestStaticRateOracle_RatesIsACopy(t *testing.T) {
	oracle := NewStaticRateOracle()

	rates := oracle.Rates()
	assert.Len(t, rates, 4)
	rates[domain.CurrencyUSD] = decimal.NewFromInt(1)

	rate, err := oracle.Rate(domain.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(95_000).Equal(rate))
}
