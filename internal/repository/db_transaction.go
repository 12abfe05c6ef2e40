package repository

import (
	"context"

	"gorm.io/gorm"
)

// InTransaction runs fn in one database transaction. Any error or panic
// rolls everything back.
func (r *Repository) InTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(fn)
	if err != nil {
		r.logger.Debugf("Transaction rolled back: %v", err)
	}
	return err
}
