package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/casino_ledger/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreateWagerBonus(ctx context.Context, bonus *models.WagerBonus) error {
	return r.db.WithContext(ctx).Create(bonus).Error
}

func (r *Repository) CreateFreeroundBonus(ctx context.Context, bonus *models.FreeroundBonus) error {
	return r.db.WithContext(ctx).Create(bonus).Error
}

func (r *Repository) GetFreeroundBonus(ctx context.Context, tx *gorm.DB, id uint) (*models.FreeroundBonus, error) {
	var bonus models.FreeroundBonus
	err := r.conn(ctx, tx).First(&bonus, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get freeround bonus %d: %w", id, err)
	}
	return &bonus, nil
}

// notExpired keeps bonuses the sweeper has not reached yet out of play.
const notExpired = "(expires_at IS NULL OR expires_at > ?)"

// ActiveWagerBonuses returns the user's active, unexpired promotional bonuses
// in creation order.
func (r *Repository) ActiveWagerBonuses(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*models.WagerBonus, error) {
	var bonuses []*models.WagerBonus
	err := r.conn(ctx, tx).
		Where("user_id = ? AND status = ?", userID, models.BonusActive).
		Where(notExpired, now).
		Order("created_at ASC, id ASC").
		Find(&bonuses).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to get active wager bonuses: %w", err)
	}
	return bonuses, nil
}

// WageringFreerounds returns free-round bonuses whose winnings are being wagered.
func (r *Repository) WageringFreerounds(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*models.FreeroundBonus, error) {
	var bonuses []*models.FreeroundBonus
	err := r.conn(ctx, tx).
		Where("user_id = ? AND status = ?", userID, models.BonusWagering).
		Where(notExpired, now).
		Order("created_at ASC, id ASC").
		Find(&bonuses).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to get wagering freerounds: %w", err)
	}
	return bonuses, nil
}

// OpenFreeroundsForGame returns the user's free-round bonuses on gameID that
// can still receive winnings.
func (r *Repository) OpenFreeroundsForGame(ctx context.Context, tx *gorm.DB, userID int64, gameID string, now time.Time) ([]*models.FreeroundBonus, error) {
	var bonuses []*models.FreeroundBonus
	err := r.conn(ctx, tx).
		Where("user_id = ? AND game_id = ? AND status IN ?", userID, gameID,
			[]models.BonusStatus{models.BonusActive, models.BonusWagering}).
		Where(notExpired, now).
		Order("created_at ASC, id ASC").
		Find(&bonuses).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to get freerounds for game %s: %w", gameID, err)
	}
	return bonuses, nil
}

func (r *Repository) GetFreeroundByToken(ctx context.Context, tx *gorm.DB, userID int64, token string, now time.Time) (*models.FreeroundBonus, error) {
	var bonus models.FreeroundBonus
	err := r.conn(ctx, tx).
		Where("user_id = ? AND token = ? AND status IN ?", userID, token,
			[]models.BonusStatus{models.BonusActive, models.BonusWagering}).
		Where(notExpired, now).
		First(&bonus).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get freeround by token: %w", err)
	}
	return &bonus, nil
}

func (r *Repository) SaveWagerBonus(ctx context.Context, tx *gorm.DB, bonus *models.WagerBonus) error {
	return r.conn(ctx, tx).Save(bonus).Error
}

func (r *Repository) SaveFreeroundBonus(ctx context.Context, tx *gorm.DB, bonus *models.FreeroundBonus) error {
	return r.conn(ctx, tx).Save(bonus).Error
}

// UsersWithExpiredBonuses lists users owning open bonuses past their expiry.
func (r *Repository) UsersWithExpiredBonuses(ctx context.Context, now time.Time) ([]int64, error) {
	var wagerUsers, freeroundUsers []int64
	err := r.db.WithContext(ctx).
		Model(&models.WagerBonus{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.BonusActive, now).
		Distinct().
		Pluck("user_id", &wagerUsers).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired wager bonuses: %w", err)
	}

	err = r.db.WithContext(ctx).
		Model(&models.FreeroundBonus{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]models.BonusStatus{models.BonusActive, models.BonusWagering}, now).
		Distinct().
		Pluck("user_id", &freeroundUsers).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired freerounds: %w", err)
	}

	seen := make(map[int64]bool)
	var users []int64
	for _, id := range append(wagerUsers, freeroundUsers...) {
		if !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	return users, nil
}

func (r *Repository) ExpiredWagerBonuses(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*models.WagerBonus, error) {
	var bonuses []*models.WagerBonus
	err := r.conn(ctx, tx).
		Where("user_id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			userID, models.BonusActive, now).
		Order("created_at ASC, id ASC").
		Find(&bonuses).
		Error
	return bonuses, err
}

func (r *Repository) ExpiredFreerounds(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*models.FreeroundBonus, error) {
	var bonuses []*models.FreeroundBonus
	err := r.conn(ctx, tx).
		Where("user_id = ? AND status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			userID, []models.BonusStatus{models.BonusActive, models.BonusWagering}, now).
		Order("created_at ASC, id ASC").
		Find(&bonuses).
		Error
	return bonuses, err
}
