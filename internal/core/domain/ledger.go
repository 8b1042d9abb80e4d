package domain

import (
	"errors"
	"time"
)

// ErrNegativeBalance is returned when an adjustment would drive any balance below zero.
var ErrNegativeBalance = errors.New("ledger balance would become negative")

// LedgerAccount holds a merchant's satoshi balances.
//
// Pending counts amounts of Confirmed-but-not-Completed invoices. Confirmed is
// settled and spendable. Total is the lifetime credited amount net of cashouts.
type LedgerAccount struct {
	MerchantID        string    `json:"merchant_id"`
	PendingBalance    int64     `json:"pending_balance"`
	ConfirmedBalance  int64     `json:"confirmed_balance"`
	TotalBalance      int64     `json:"total_balance"`
	PreferredCurrency Currency  `json:"preferred_currency"`
	LastUpdated       time.Time `json:"last_updated"`
}

// NewLedgerAccount returns a zeroed account.
func NewLedgerAccount(merchantID string, now time.Time) *LedgerAccount {
	return &LedgerAccount{
		MerchantID:        merchantID,
		PreferredCurrency: DefaultCurrency,
		LastUpdated:       now,
	}
}

// LedgerDelta is a signed change applied to all three balances at once.
type LedgerDelta struct {
	Pending   int64 `json:"pending"`
	Confirmed int64 `json:"confirmed"`
	Total     int64 `json:"total"`
}

func (d LedgerDelta) IsZero() bool {
	return d == LedgerDelta{}
}

// Apply adds d to the account, all or nothing.
func (a *LedgerAccount) Apply(d LedgerDelta, at time.Time) error {
	pending := a.PendingBalance + d.Pending
	confirmed := a.ConfirmedBalance + d.Confirmed
	total := a.TotalBalance + d.Total
	if pending < 0 || confirmed < 0 || total < 0 {
		return ErrNegativeBalance
	}

	a.PendingBalance = pending
	a.ConfirmedBalance = confirmed
	a.TotalBalance = total
	a.LastUpdated = at
	return nil
}
