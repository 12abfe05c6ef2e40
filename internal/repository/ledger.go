package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) AppendEntry(ctx context.Context, tx *gorm.DB, entry *models.LedgerEntry) error {
	if err := r.conn(ctx, tx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append %s entry: %w", entry.Kind, err)
	}
	return nil
}

// FindEntryByTID returns the bet or win settled under tid.
func (r *Repository) FindEntryByTID(ctx context.Context, tx *gorm.DB, userID int64, tid string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.conn(ctx, tx).
		Where("user_id = ? AND tid = ? AND kind IN ?", userID, tid,
			[]models.EntryKind{models.EntryBet, models.EntryWin}).
		Order("created_at DESC").
		First(&entry).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry by tid %s: %w", tid, err)
	}
	return &entry, nil
}

// FindLatestEntryByAction returns the newest entry of kind for (round, action).
func (r *Repository) FindLatestEntryByAction(ctx context.Context, tx *gorm.DB, userID int64, roundID, actionID string, kind models.EntryKind) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.conn(ctx, tx).
		Where("user_id = ? AND round_id = ? AND action_id = ? AND kind = ?", userID, roundID, actionID, kind).
		Order("created_at DESC").
		First(&entry).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry for action %s/%s: %w", roundID, actionID, err)
	}
	return &entry, nil
}

func (r *Repository) IsReversed(ctx context.Context, tx *gorm.DB, entryID string) (bool, error) {
	var count int64
	err := r.conn(ctx, tx).
		Model(&models.LedgerEntry{}).
		Where("reverses_id = ?", entryID).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("failed to check reversal of %s: %w", entryID, err)
	}
	return count > 0, nil
}

func (r *Repository) ListEntries(ctx context.Context, userID int64) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&entries).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for %d: %w", userID, err)
	}
	return entries, nil
}
