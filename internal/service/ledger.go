package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Operation is one bet, win or rollback as reported by the aggregator.
// Amount is in Currency; an empty Currency means the account currency.
type Operation struct {
	UserID         int64
	Amount         decimal.Decimal
	Currency       string
	TID            string
	RoundID        string
	ActionID       string
	GameID         string
	FreeroundToken string
}

// Outcome is what the caller reports back: the account total in the request currency.
type Outcome struct {
	Balance  decimal.Decimal
	Currency string
	Entry    *models.LedgerEntry
}

// Responder renders the response persisted with the idempotency record. It
// runs inside the ledger transaction so the response commits with the mutation.
type Responder func(out *Outcome) (datatypes.JSON, error)

type mutation func(tx *gorm.DB, account *models.Account) (*models.LedgerEntry, error)

// settle is the single mutation path: lock the account row, apply fn, save,
// and complete the idempotency record, all in one transaction.
func (s *Service) settle(ctx context.Context, op Operation, record *models.IdempotencyRecord, respond Responder, fn mutation) (*Outcome, error) {
	var out *Outcome
	err := s.repo.InTransaction(ctx, func(tx *gorm.DB) error {
		account, err := s.repo.LockAccount(ctx, tx, op.UserID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrUnknownAccount
		}
		if err := s.checkAction(ctx, tx, record); err != nil {
			return err
		}

		entry, err := fn(tx, account)
		if err != nil {
			return err
		}

		if err := s.repo.SaveAccount(ctx, tx, account); err != nil {
			return err
		}

		reportCurrency := s.reportCurrency(op.Currency, account)
		balance, err := s.converter.Convert(ctx, account.Total(), account.Currency, reportCurrency)
		if err != nil {
			return err
		}
		out = &Outcome{Balance: balance, Currency: reportCurrency, Entry: entry}

		if record == nil || respond == nil {
			return nil
		}
		body, err := respond(out)
		if err != nil {
			return fmt.Errorf("failed to render response: %w", err)
		}
		return s.repo.CompleteRecord(ctx, tx, record.ID, body)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// checkAction refuses to settle a record when another tid of the same
// round/action already settled. Both requests can miss the lookup in Reserve;
// the account lock orders their settlements.
func (s *Service) checkAction(ctx context.Context, tx *gorm.DB, record *models.IdempotencyRecord) error {
	if record == nil || record.RoundID == "" || record.ActionID == "" {
		return nil
	}
	settled, err := s.repo.SettledRecordForAction(ctx, tx, record)
	if err != nil {
		return err
	}
	if settled != nil {
		return fmt.Errorf("%w: tid %s settled %s/%s before tid %s",
			ErrDuplicateAction, settled.TID, record.RoundID, record.ActionID, record.TID)
	}
	return nil
}

func (s *Service) reportCurrency(requested string, account *models.Account) string {
	if requested == "" {
		return account.Currency
	}
	return currency.Normalize(requested)
}

func (s *Service) toLedger(ctx context.Context, op Operation, account *models.Account) (decimal.Decimal, error) {
	if op.Amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return s.converter.Convert(ctx, op.Amount, s.reportCurrency(op.Currency, account), account.Currency)
}

// Debit settles a bet: main balance first, then bonus balance.
func (s *Service) Debit(ctx context.Context, op Operation, record *models.IdempotencyRecord, respond Responder) (*Outcome, error) {
	if op.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	return s.settle(ctx, op, record, respond, func(tx *gorm.DB, account *models.Account) (*models.LedgerEntry, error) {
		amount, err := s.toLedger(ctx, op, account)
		if err != nil {
			return nil, err
		}
		if account.Total().LessThan(amount) {
			return nil, ErrInsufficientFunds
		}

		fromMain := decimal.Min(account.MainBalance, amount)
		fromBonus := amount.Sub(fromMain)
		account.MainBalance = account.MainBalance.Sub(fromMain)
		account.BonusBalance = decimal.Max(account.BonusBalance.Sub(fromBonus), decimal.Zero)
		account.TotalWagered = account.TotalWagered.Add(amount)

		points := amount.Mul(s.pointsRate)
		account.Points = account.Points.Add(points)

		if op.RoundID != "" {
			round, err := s.repo.GetOrCreateRound(ctx, tx, op.UserID, op.RoundID, op.GameID)
			if err != nil {
				return nil, err
			}
			round.BetTotal = round.BetTotal.Add(amount)
			round.Debits++
			if err := s.repo.SaveRound(ctx, tx, round); err != nil {
				return nil, err
			}
		}

		entry := s.newEntry(op, account, models.EntryBet, amount)
		entry.MainDelta = fromMain.Neg()
		entry.BonusDelta = fromBonus.Neg()
		entry.PointsDelta = points
		if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
			return nil, err
		}

		if err := s.applyWager(ctx, tx, account, amount); err != nil {
			return nil, err
		}
		return entry, nil
	})
}

// Credit settles a win. Free-round winnings land on the bonus balance and
// extend that bonus's wager requirement; anything else goes to main.
func (s *Service) Credit(ctx context.Context, op Operation, record *models.IdempotencyRecord, respond Responder) (*Outcome, error) {
	if op.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	return s.settle(ctx, op, record, respond, func(tx *gorm.DB, account *models.Account) (*models.LedgerEntry, error) {
		amount, err := s.toLedger(ctx, op, account)
		if err != nil {
			return nil, err
		}

		entry := s.newEntry(op, account, models.EntryWin, amount)

		var freeround *models.FreeroundBonus
		if amount.IsPositive() {
			freeround, err = s.freeroundFor(ctx, tx, op)
			if err != nil {
				return nil, err
			}
		}

		if freeround != nil {
			account.BonusBalance = account.BonusBalance.Add(amount)
			freeround.WinAmount = freeround.WinAmount.Add(amount)
			freeround.RequiredWager = freeround.RequiredWager.Add(amount.Mul(freeround.Multiplier))
			if freeround.Status == models.BonusActive {
				freeround.Status = models.BonusWagering
			}
			if err := s.repo.SaveFreeroundBonus(ctx, tx, freeround); err != nil {
				return nil, err
			}
			entry.BonusDelta = amount
			entry.BonusID = &freeround.ID
			s.logger.Infof("Freeround win %s for user %d credited to bonus %d, wager requirement %s",
				amount, op.UserID, freeround.ID, freeround.RequiredWager)
		} else {
			account.MainBalance = account.MainBalance.Add(amount)
			entry.MainDelta = amount
		}

		if op.RoundID != "" {
			round, err := s.repo.GetOrCreateRound(ctx, tx, op.UserID, op.RoundID, op.GameID)
			if err != nil {
				return nil, err
			}
			round.WinTotal = round.WinTotal.Add(amount)
			if err := s.repo.SaveRound(ctx, tx, round); err != nil {
				return nil, err
			}
		}

		if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
		return entry, nil
	})
}

// freeroundFor finds the free-round bonus a win belongs to, if any.
func (s *Service) freeroundFor(ctx context.Context, tx *gorm.DB, op Operation) (*models.FreeroundBonus, error) {
	if op.FreeroundToken != "" {
		bonus, err := s.repo.GetFreeroundByToken(ctx, tx, op.UserID, op.FreeroundToken, s.now())
		if err != nil {
			return nil, err
		}
		if bonus == nil {
			s.logger.Warnf("Unknown freeround token %q for user %d, crediting as regular win", op.FreeroundToken, op.UserID)
		}
		return bonus, nil
	}

	if op.GameID == "" {
		return nil, nil
	}

	debits := 0
	if op.RoundID != "" {
		round, err := s.repo.GetRound(ctx, tx, op.UserID, op.RoundID)
		if err != nil {
			return nil, err
		}
		if round != nil {
			debits = round.Debits
		}
	}

	open, err := s.repo.OpenFreeroundsForGame(ctx, tx, op.UserID, op.GameID, s.now())
	if err != nil {
		return nil, err
	}
	return DetectFreeround(debits, open), nil
}

// DetectFreeround treats a win as a free-round win when the round saw no
// debit and the game has an open free-round bonus. The oldest bonus wins.
//
// A legitimate zero-bet win from some other game feature is indistinguishable
// here and will be booked against the free-round bonus.
func DetectFreeround(debitsInRound int, open []*models.FreeroundBonus) *models.FreeroundBonus {
	if debitsInRound > 0 || len(open) == 0 {
		return nil
	}
	return open[0]
}

// Balance reads main + bonus converted to currency, without locking.
func (s *Service) Balance(ctx context.Context, userID int64, requested string) (decimal.Decimal, string, error) {
	account, err := s.repo.GetAccount(ctx, userID, nil)
	if err != nil {
		return decimal.Zero, "", err
	}
	if account == nil {
		return decimal.Zero, "", ErrUnknownAccount
	}

	reportCurrency := s.reportCurrency(requested, account)
	balance, err := s.converter.Convert(ctx, account.Total(), account.Currency, reportCurrency)
	if err != nil {
		return decimal.Zero, "", err
	}
	return balance, reportCurrency, nil
}

func (s *Service) newEntry(op Operation, account *models.Account, kind models.EntryKind, amount decimal.Decimal) *models.LedgerEntry {
	return &models.LedgerEntry{
		UserID:          account.UserID,
		Kind:            kind,
		Amount:          amount,
		Currency:        account.Currency,
		RequestAmount:   op.Amount,
		RequestCurrency: s.reportCurrency(op.Currency, account),
		TID:             op.TID,
		RoundID:         op.RoundID,
		ActionID:        op.ActionID,
		GameID:          op.GameID,
	}
}
