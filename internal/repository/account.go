package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *Repository) GetAccount(ctx context.Context, userID int64, tx *gorm.DB) (*models.Account, error) {
	var account models.Account
	err := r.conn(ctx, tx).First(&account, "user_id = ? AND active = ?", userID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", userID, err)
	}
	return &account, nil
}

// LockAccount reads the account row with SELECT ... FOR UPDATE. The lock is
// held until tx ends.
func (r *Repository) LockAccount(ctx context.Context, tx *gorm.DB, userID int64) (*models.Account, error) {
	var account models.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND active = ?", userID, true).
		First(&account).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %d: %w", userID, err)
	}
	return &account, nil
}

func (r *Repository) SaveAccount(ctx context.Context, tx *gorm.DB, account *models.Account) error {
	err := tx.WithContext(ctx).
		Model(&models.Account{}).
		Where("user_id = ?", account.UserID).
		Updates(map[string]interface{}{
			"main_balance":  account.MainBalance,
			"bonus_balance": account.BonusBalance,
			"total_wagered": account.TotalWagered,
			"points":        account.Points,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to save account %d: %w", account.UserID, err)
	}
	return nil
}

func (r *Repository) DeactivateAccount(ctx context.Context, userID int64) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("user_id = ?", userID).
		Update("active", false)
	if tx.Error != nil {
		return fmt.Errorf("failed to deactivate account %d: %w", userID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("account %d not found", userID)
	}
	return nil
}
