package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) GetRound(ctx context.Context, tx *gorm.DB, userID int64, roundID string) (*models.GameRound, error) {
	var round models.GameRound
	err := r.conn(ctx, tx).Where("user_id = ? AND round_id = ?", userID, roundID).First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round %s: %w", roundID, err)
	}
	return &round, nil
}

// GetOrCreateRound is called with the account locked, so two requests never
// race to create the same round.
func (r *Repository) GetOrCreateRound(ctx context.Context, tx *gorm.DB, userID int64, roundID, gameID string) (*models.GameRound, error) {
	round, err := r.GetRound(ctx, tx, userID, roundID)
	if err != nil || round != nil {
		return round, err
	}

	round = &models.GameRound{UserID: userID, RoundID: roundID, GameID: gameID}
	if err := r.conn(ctx, tx).Create(round).Error; err != nil {
		return nil, fmt.Errorf("failed to create round %s: %w", roundID, err)
	}
	return round, nil
}

func (r *Repository) SaveRound(ctx context.Context, tx *gorm.DB, round *models.GameRound) error {
	return r.conn(ctx, tx).Save(round).Error
}
