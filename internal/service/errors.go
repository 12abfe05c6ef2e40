package service

import (
	"errors"

	"github.com/Fi44er/casino_ledger/internal/currency"
)

var (
	ErrUnknownAccount    = errors.New("user not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	// ErrDuplicateAction means the same round/action was settled under
	// another tid while this request waited for the account lock.
	ErrDuplicateAction = errors.New("action already settled under another tid")
)

// IsFinal reports whether err is a business outcome the caller should not
// retry, as opposed to an internal fault.
func IsFinal(err error) bool {
	return errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, currency.ErrUnknownCurrency)
}
