package domain

import (
	"time"

	"github.com/google/uuid"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyNGN Currency = "NGN"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyNGN:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

// Account is a single-currency wallet. Balance and Reserved are minor units.
// Reserved earmarks funds for pending transfers; Available is what a new
// transfer may draw on. Only the ledger poster mutates Balance, and only
// while holding the account's row lock.
type Account struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Currency   Currency
	Balance    int64
	Reserved   int64
	Version    int64
	Status     AccountStatus
	CreatedAt  time.Time
}

func (a *Account) Available() int64 {
	return a.Balance - a.Reserved
}
