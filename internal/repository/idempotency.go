package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrDuplicateTID is returned when another request already reserved the tid.
var ErrDuplicateTID = errors.New("transaction id already recorded")

func (r *Repository) GetRecordByTID(ctx context.Context, tid string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	err := r.db.WithContext(ctx).Where("tid = ?", tid).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record %s: %w", tid, err)
	}
	return &record, nil
}

// GetRecordByAction finds the newest record for the same logical action,
// whatever tid it arrived under.
func (r *Repository) GetRecordByAction(ctx context.Context, userID int64, roundID, actionID, reqType, subtype string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND round_id = ? AND action_id = ? AND type = ? AND subtype = ?",
			userID, roundID, actionID, reqType, subtype).
		Order("id DESC").
		First(&record).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record by action %s/%s: %w", roundID, actionID, err)
	}
	return &record, nil
}

// SettledRecordForAction returns another committed record of the same
// logical action. Called under the account lock, it sees every settlement
// that finished before the lock was taken.
func (r *Repository) SettledRecordForAction(ctx context.Context, tx *gorm.DB, record *models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	var settled models.IdempotencyRecord
	err := r.conn(ctx, tx).
		Where("user_id = ? AND round_id = ? AND action_id = ? AND type = ? AND subtype = ?",
			record.UserID, record.RoundID, record.ActionID, record.Type, record.Subtype).
		Where("id <> ? AND state = ?", record.ID, models.StateCommitted).
		Order("id ASC").
		First(&settled).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check settled records for action %s/%s: %w", record.RoundID, record.ActionID, err)
	}
	return &settled, nil
}

// CreateRecord reserves the tid. The unique index decides between
// concurrent first sightings.
func (r *Repository) CreateRecord(ctx context.Context, record *models.IdempotencyRecord) error {
	record.State = models.StatePending
	err := r.db.WithContext(ctx).Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateTID
	}
	if err != nil {
		return fmt.Errorf("failed to create idempotency record %s: %w", record.TID, err)
	}
	return nil
}

// CompleteRecord stores the response. It only succeeds once per record.
func (r *Repository) CompleteRecord(ctx context.Context, tx *gorm.DB, id uint, response datatypes.JSON) error {
	res := r.conn(ctx, tx).
		Model(&models.IdempotencyRecord{}).
		Where("id = ? AND state = ?", id, models.StatePending).
		Updates(map[string]interface{}{
			"state":    models.StateCommitted,
			"response": response,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete idempotency record %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("idempotency record %d is not pending", id)
	}
	return nil
}

// ReleaseRecord drops a pending reservation whose transaction rolled back.
func (r *Repository) ReleaseRecord(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, models.StatePending).
		Delete(&models.IdempotencyRecord{}).
		Error
	if err != nil {
		return fmt.Errorf("failed to release idempotency record %d: %w", id, err)
	}
	return nil
}
