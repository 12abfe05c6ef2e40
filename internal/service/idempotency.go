package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/internal/repository"
	"gorm.io/datatypes"
)

type Resolution int

const (
	// Fresh: the request was never seen and is now reserved.
	Fresh Resolution = iota
	// Committed: an identical request already completed.
	Committed
	// Pending: an identical request is in flight or crashed.
	Pending
	// ConflictDetected: the tid or action was seen with different essential fields.
	ConflictDetected
)

func (r Resolution) String() string {
	switch r {
	case Fresh:
		return "fresh"
	case Committed:
		return "committed"
	case Pending:
		return "pending"
	case ConflictDetected:
		return "conflict"
	}
	return fmt.Sprintf("resolution(%d)", int(r))
}

type Lookup struct {
	Resolution Resolution
	Record     *models.IdempotencyRecord
}

// Reserve decides whether an inbound debit, credit or rollback has already
// happened. On a miss it persists the request before anything is mutated.
func (s *Service) Reserve(ctx context.Context, incoming *models.IdempotencyRecord) (*Lookup, error) {
	lookup, err := s.lookup(ctx, incoming)
	if err != nil || lookup != nil {
		return lookup, err
	}

	err = s.repo.CreateRecord(ctx, incoming)
	if errors.Is(err, repository.ErrDuplicateTID) {
		// Lost the race for this tid to a concurrent request.
		existing, err := s.repo.GetRecordByTID(ctx, incoming.TID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("idempotency record %s vanished", incoming.TID)
		}
		return classify(existing, incoming, true), nil
	}
	if err != nil {
		return nil, err
	}

	return &Lookup{Resolution: Fresh, Record: incoming}, nil
}

func (s *Service) lookup(ctx context.Context, incoming *models.IdempotencyRecord) (*Lookup, error) {
	existing, err := s.repo.GetRecordByTID(ctx, incoming.TID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return classify(existing, incoming, true), nil
	}

	if incoming.RoundID == "" || incoming.ActionID == "" {
		return nil, nil
	}

	existing, err = s.repo.GetRecordByAction(ctx, incoming.UserID, incoming.RoundID, incoming.ActionID,
		incoming.Type, incoming.Subtype)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Infof("Action %s/%s resent under new tid %s (original %s)",
			incoming.RoundID, incoming.ActionID, incoming.TID, existing.TID)
		return classify(existing, incoming, false), nil
	}
	return nil, nil
}

func classify(existing, incoming *models.IdempotencyRecord, sameTID bool) *Lookup {
	if !essentialsMatch(existing, incoming, sameTID) {
		return &Lookup{Resolution: ConflictDetected, Record: existing}
	}
	if existing.State == models.StateCommitted {
		return &Lookup{Resolution: Committed, Record: existing}
	}
	return &Lookup{Resolution: Pending, Record: existing}
}

// essentialsMatch compares type, tid, user, currency and amount. The tid is
// skipped when the record was found through its round/action pair.
func essentialsMatch(a, b *models.IdempotencyRecord, compareTID bool) bool {
	if compareTID && a.TID != b.TID {
		return false
	}
	return a.Type == b.Type &&
		a.UserID == b.UserID &&
		currency.Normalize(a.Currency) == currency.Normalize(b.Currency) &&
		a.Amount.Equal(b.Amount)
}

// Complete stores the response of a request that ended without a ledger
// mutation, so replays report the same outcome.
func (s *Service) Complete(ctx context.Context, record *models.IdempotencyRecord, response datatypes.JSON) error {
	return s.repo.CompleteRecord(ctx, nil, record.ID, response)
}

// Release drops the reservation of a request whose transaction rolled back
// on an internal fault, letting the aggregator's retry run it again.
func (s *Service) Release(ctx context.Context, record *models.IdempotencyRecord) {
	if err := s.repo.ReleaseRecord(ctx, record.ID); err != nil {
		s.logger.Errorf("Failed to release idempotency record %s: %v", record.TID, err)
	}
}
