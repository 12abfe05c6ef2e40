package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExpireBonuses closes every open bonus past its expiry. The unpaid winnings
// of an expired bonus are forfeited from the bonus balance.
func (s *Service) ExpireBonuses(ctx context.Context) (int, error) {
	now := s.now()
	users, err := s.repo.UsersWithExpiredBonuses(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, userID := range users {
		n, err := s.expireForUser(ctx, userID)
		if err != nil {
			s.logger.Errorf("Failed to expire bonuses of user %d: %v", userID, err)
			s.notifier.Notify(fmt.Sprintf("Bonus expiry failed for user %d: %v", userID, err))
			continue
		}
		expired += n
	}
	return expired, nil
}

func (s *Service) expireForUser(ctx context.Context, userID int64) (int, error) {
	now := s.now()
	count := 0
	err := s.repo.InTransaction(ctx, func(tx *gorm.DB) error {
		count = 0
		account, err := s.repo.LockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrUnknownAccount
		}

		bonuses, err := s.repo.ExpiredWagerBonuses(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		for _, b := range bonuses {
			if err := s.forfeit(ctx, tx, account, b.ID, b.WinAmount); err != nil {
				return err
			}
			b.Status = models.BonusExpired
			if err := s.repo.SaveWagerBonus(ctx, tx, b); err != nil {
				return err
			}
			count++
		}

		freerounds, err := s.repo.ExpiredFreerounds(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		for _, f := range freerounds {
			if err := s.forfeit(ctx, tx, account, f.ID, f.WinAmount); err != nil {
				return err
			}
			f.Status = models.BonusExpired
			if err := s.repo.SaveFreeroundBonus(ctx, tx, f); err != nil {
				return err
			}
			count++
		}

		return s.repo.SaveAccount(ctx, tx, account)
	})
	if err != nil {
		return 0, fmt.Errorf("expire bonuses: %w", err)
	}
	return count, nil
}

func (s *Service) forfeit(ctx context.Context, tx *gorm.DB, account *models.Account, bonusID uint, win decimal.Decimal) error {
	amount := decimal.Max(decimal.Min(win, account.BonusBalance), decimal.Zero)
	if amount.IsZero() {
		return nil
	}
	account.BonusBalance = account.BonusBalance.Sub(amount)

	id := bonusID
	return s.repo.AppendEntry(ctx, tx, &models.LedgerEntry{
		UserID:     account.UserID,
		Kind:       models.EntryBonusForfeit,
		Amount:     amount,
		BonusDelta: amount.Neg(),
		Currency:   account.Currency,
		BonusID:    &id,
	})
}
