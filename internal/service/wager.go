package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// wagerTarget is a bonus that accumulates wagering progress, either a
// promotional bonus or a free-round bonus in its wagering phase.
type wagerTarget struct {
	id        uint
	kind      string
	createdAt time.Time
	required  *decimal.Decimal
	completed *decimal.Decimal
	win       decimal.Decimal
	status    *models.BonusStatus
	save      func() error
}

func (s *Service) wagerTargets(ctx context.Context, tx *gorm.DB, userID int64) ([]*wagerTarget, error) {
	bonuses, err := s.repo.ActiveWagerBonuses(ctx, tx, userID, s.now())
	if err != nil {
		return nil, err
	}
	freerounds, err := s.repo.WageringFreerounds(ctx, tx, userID, s.now())
	if err != nil {
		return nil, err
	}

	targets := make([]*wagerTarget, 0, len(bonuses)+len(freerounds))
	for _, b := range bonuses {
		b := b
		targets = append(targets, &wagerTarget{
			id: b.ID, kind: "wager", createdAt: b.CreatedAt,
			required: &b.RequiredWager, completed: &b.CompletedWager,
			win: b.WinAmount, status: &b.Status,
			save: func() error { return s.repo.SaveWagerBonus(ctx, tx, b) },
		})
	}
	for _, f := range freerounds {
		f := f
		targets = append(targets, &wagerTarget{
			id: f.ID, kind: "freeround", createdAt: f.CreatedAt,
			required: &f.RequiredWager, completed: &f.CompletedWager,
			win: f.WinAmount, status: &f.Status,
			save: func() error { return s.repo.SaveFreeroundBonus(ctx, tx, f) },
		})
	}

	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].createdAt.Before(targets[j].createdAt)
	})
	return targets, nil
}

// applyWager spreads a debit over the user's wager-bearing bonuses in
// creation order. A bonus that reaches its requirement pays its winnings
// from bonus to main balance, capped at the bonus balance.
func (s *Service) applyWager(ctx context.Context, tx *gorm.DB, account *models.Account, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}

	targets, err := s.wagerTargets(ctx, tx, account.UserID)
	if err != nil {
		return err
	}

	remaining := amount
	for _, t := range targets {
		if !remaining.IsPositive() {
			break
		}

		need := decimal.Max(t.required.Sub(*t.completed), decimal.Zero)
		absorbed := decimal.Min(need, remaining)
		*t.completed = t.completed.Add(absorbed)
		remaining = remaining.Sub(absorbed)

		if t.completed.GreaterThanOrEqual(*t.required) {
			if err := s.completeBonus(ctx, tx, account, t); err != nil {
				return err
			}
		}

		if err := t.save(); err != nil {
			return fmt.Errorf("failed to save %s bonus %d: %w", t.kind, t.id, err)
		}
	}
	return nil
}

func (s *Service) completeBonus(ctx context.Context, tx *gorm.DB, account *models.Account, t *wagerTarget) error {
	payout := decimal.Max(decimal.Min(t.win, account.BonusBalance), decimal.Zero)
	account.BonusBalance = account.BonusBalance.Sub(payout)
	account.MainBalance = account.MainBalance.Add(payout)
	*t.status = models.BonusCompleted

	id := t.id
	entry := &models.LedgerEntry{
		UserID:     account.UserID,
		Kind:       models.EntryBonusTransfer,
		Amount:     payout,
		MainDelta:  payout,
		BonusDelta: payout.Neg(),
		Currency:   account.Currency,
		BonusID:    &id,
	}
	if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
		return err
	}

	s.logger.Infof("Bonus %s#%d completed for user %d, %s %s moved to main balance",
		t.kind, t.id, account.UserID, payout, account.Currency)
	return nil
}
