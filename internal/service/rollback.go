package service

import (
	"context"

	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RollbackOp reverses an earlier bet or win. With ReferenceTID set the
// original is the action settled under that tid; otherwise it is the newest
// action of kind Target with the same round and action ids.
type RollbackOp struct {
	Operation
	ReferenceTID string
	Target       models.EntryKind
}

// Rollback books a compensating entry for the original action. A missing or
// already reversed original is a successful no-op reporting the balance.
func (s *Service) Rollback(ctx context.Context, op RollbackOp, record *models.IdempotencyRecord, respond Responder) (*Outcome, error) {
	return s.settle(ctx, op.Operation, record, respond, func(tx *gorm.DB, account *models.Account) (*models.LedgerEntry, error) {
		original, err := s.findOriginal(ctx, tx, op)
		if err != nil {
			return nil, err
		}
		if original == nil {
			s.logger.Infof("Rollback %s for user %d: original action not found, nothing to reverse", op.TID, op.UserID)
			return nil, nil
		}

		reversed, err := s.repo.IsReversed(ctx, tx, original.ID)
		if err != nil {
			return nil, err
		}
		if reversed {
			s.logger.Infof("Rollback %s for user %d: entry %s already reversed", op.TID, op.UserID, original.ID)
			return nil, nil
		}

		entry := &models.LedgerEntry{
			UserID:          account.UserID,
			Kind:            models.EntryRollback,
			Amount:          original.Amount,
			Currency:        account.Currency,
			RequestAmount:   original.RequestAmount,
			RequestCurrency: original.RequestCurrency,
			TID:             op.TID,
			RoundID:         original.RoundID,
			ActionID:        original.ActionID,
			GameID:          original.GameID,
			BonusID:         original.BonusID,
			ReversesID:      &original.ID,
		}

		switch original.Kind {
		case models.EntryBet:
			err = s.reverseBet(ctx, tx, account, original, entry)
		case models.EntryWin:
			err = s.reverseWin(ctx, tx, account, original, entry)
		}
		if err != nil {
			return nil, err
		}

		if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
		s.logger.Infof("Rollback %s for user %d reversed %s entry %s (%s %s)",
			op.TID, op.UserID, original.Kind, original.ID, original.Amount, account.Currency)
		return entry, nil
	})
}

func (s *Service) findOriginal(ctx context.Context, tx *gorm.DB, op RollbackOp) (*models.LedgerEntry, error) {
	if op.ReferenceTID != "" {
		return s.repo.FindEntryByTID(ctx, tx, op.UserID, op.ReferenceTID)
	}
	if op.RoundID == "" || op.ActionID == "" || op.Target == "" {
		return nil, nil
	}
	return s.repo.FindLatestEntryByAction(ctx, tx, op.UserID, op.RoundID, op.ActionID, op.Target)
}

// reverseBet puts the stake back where it was taken from and undoes the
// wagered total and points.
func (s *Service) reverseBet(ctx context.Context, tx *gorm.DB, account *models.Account, bet, entry *models.LedgerEntry) error {
	mainBack := bet.MainDelta.Neg()
	bonusBack := bet.BonusDelta.Neg()
	account.MainBalance = account.MainBalance.Add(mainBack)
	account.BonusBalance = account.BonusBalance.Add(bonusBack)
	account.TotalWagered = decimal.Max(account.TotalWagered.Sub(bet.Amount), decimal.Zero)
	account.Points = decimal.Max(account.Points.Sub(bet.PointsDelta), decimal.Zero)

	entry.MainDelta = mainBack
	entry.BonusDelta = bonusBack
	entry.PointsDelta = bet.PointsDelta.Neg()

	if bet.RoundID == "" {
		return nil
	}
	round, err := s.repo.GetRound(ctx, tx, account.UserID, bet.RoundID)
	if err != nil || round == nil {
		return err
	}
	round.BetTotal = decimal.Max(round.BetTotal.Sub(bet.Amount), decimal.Zero)
	return s.repo.SaveRound(ctx, tx, round)
}

// reverseWin takes the winnings back, first from the balance they were paid
// into, then from the other one. Balances never go below zero.
func (s *Service) reverseWin(ctx context.Context, tx *gorm.DB, account *models.Account, win, entry *models.LedgerEntry) error {
	want := win.Amount
	var fromMain, fromBonus decimal.Decimal
	if win.BonusDelta.IsPositive() {
		fromBonus = decimal.Min(want, account.BonusBalance)
		fromMain = decimal.Min(want.Sub(fromBonus), account.MainBalance)
	} else {
		fromMain = decimal.Min(want, account.MainBalance)
		fromBonus = decimal.Min(want.Sub(fromMain), account.BonusBalance)
	}
	account.MainBalance = account.MainBalance.Sub(fromMain)
	account.BonusBalance = account.BonusBalance.Sub(fromBonus)
	entry.MainDelta = fromMain.Neg()
	entry.BonusDelta = fromBonus.Neg()

	if short := want.Sub(fromMain).Sub(fromBonus); short.IsPositive() {
		s.logger.Warnf("Rollback of win %s for user %d short by %s %s", win.ID, account.UserID, short, account.Currency)
	}

	if win.BonusID != nil && win.BonusDelta.IsPositive() {
		bonus, err := s.repo.GetFreeroundBonus(ctx, tx, *win.BonusID)
		if err != nil {
			return err
		}
		if bonus != nil && (bonus.Status == models.BonusActive || bonus.Status == models.BonusWagering) {
			bonus.WinAmount = decimal.Max(bonus.WinAmount.Sub(win.Amount), decimal.Zero)
			bonus.RequiredWager = decimal.Max(bonus.RequiredWager.Sub(win.Amount.Mul(bonus.Multiplier)), decimal.Zero)
			if err := s.repo.SaveFreeroundBonus(ctx, tx, bonus); err != nil {
				return err
			}
		}
	}

	if win.RoundID == "" {
		return nil
	}
	round, err := s.repo.GetRound(ctx, tx, account.UserID, win.RoundID)
	if err != nil || round == nil {
		return err
	}
	round.WinTotal = decimal.Max(round.WinTotal.Sub(win.Amount), decimal.Zero)
	return s.repo.SaveRound(ctx, tx, round)
}
