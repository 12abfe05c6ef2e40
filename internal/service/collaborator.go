package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Operations used by the payment, registration and admin parts of the
// platform. They share the locked mutation path but carry no protocol envelope.

func (s *Service) CreateAccount(ctx context.Context, userID int64, code string) (*models.Account, error) {
	if code == "" {
		code = s.defaultCurrency
	}
	account := &models.Account{
		UserID:   userID,
		Currency: currency.Normalize(code),
		Active:   true,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account %d: %w", userID, err)
	}
	return account, nil
}

// CreditDeposit adds a confirmed deposit to the main balance and returns the
// new total in the deposit currency.
func (s *Service) CreditDeposit(ctx context.Context, userID int64, amount decimal.Decimal, code string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	op := Operation{UserID: userID, Amount: amount, Currency: code}
	out, err := s.settle(ctx, op, nil, nil, func(tx *gorm.DB, account *models.Account) (*models.LedgerEntry, error) {
		converted, err := s.toLedger(ctx, op, account)
		if err != nil {
			return nil, err
		}
		account.MainBalance = account.MainBalance.Add(converted)

		entry := s.newEntry(op, account, models.EntryDeposit, converted)
		entry.MainDelta = converted
		return entry, s.repo.AppendEntry(ctx, tx, entry)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

// DebitOrRefundWithdrawal reserves a withdrawal (positive amount) from the
// main balance, or returns a rejected one (negative amount). Amounts are in
// the account currency.
func (s *Service) DebitOrRefundWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}

	op := Operation{UserID: userID, Amount: amount.Abs()}
	out, err := s.settle(ctx, op, nil, nil, func(tx *gorm.DB, account *models.Account) (*models.LedgerEntry, error) {
		if amount.IsPositive() && account.MainBalance.LessThan(amount) {
			return nil, ErrInsufficientFunds
		}
		account.MainBalance = account.MainBalance.Sub(amount)

		entry := s.newEntry(op, account, models.EntryWithdrawal, amount.Abs())
		entry.MainDelta = amount.Neg()
		return entry, s.repo.AppendEntry(ctx, tx, entry)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

// GetBalance returns main + bonus in the requested currency.
func (s *Service) GetBalance(ctx context.Context, userID int64, code string) (decimal.Decimal, error) {
	balance, _, err := s.Balance(ctx, userID, code)
	return balance, err
}
