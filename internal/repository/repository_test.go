package repository_test

import (
	"context"
	"testing"

	"github.com/Fi44er/casino_ledger/internal/ledgertest"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestCreateRecordRejectsDuplicateTID(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	first := &models.IdempotencyRecord{TID: "t1", Type: "debit", UserID: 1, Amount: decimal.NewFromInt(5)}
	require.NoError(t, fx.Repo.CreateRecord(ctx, first))
	assert.Equal(t, models.StatePending, first.State)

	err := fx.Repo.CreateRecord(ctx, &models.IdempotencyRecord{TID: "t1", Type: "credit", UserID: 2})
	assert.ErrorIs(t, err, repository.ErrDuplicateTID)
}

func TestCompleteRecordOnlyOnce(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	record := &models.IdempotencyRecord{TID: "t1", Type: "debit", UserID: 1}
	require.NoError(t, fx.Repo.CreateRecord(ctx, record))

	require.NoError(t, fx.Repo.CompleteRecord(ctx, nil, record.ID, datatypes.JSON(`{"status":"OK"}`)))
	assert.Error(t, fx.Repo.CompleteRecord(ctx, nil, record.ID, datatypes.JSON(`{}`)))

	// A committed record is never released.
	require.NoError(t, fx.Repo.ReleaseRecord(ctx, record.ID))
	stored, err := fx.Repo.GetRecordByTID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.StateCommitted, stored.State)
}

func TestGetRecordByActionReturnsNewest(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	for _, tid := range []string{"t1", "t2"} {
		require.NoError(t, fx.Repo.CreateRecord(ctx, &models.IdempotencyRecord{
			TID: tid, Type: "debit", UserID: 1, RoundID: "r1", ActionID: "a1",
		}))
	}

	record, err := fx.Repo.GetRecordByAction(ctx, 1, "r1", "a1", "debit", "")
	require.NoError(t, err)
	assert.Equal(t, "t2", record.TID)

	record, err = fx.Repo.GetRecordByAction(ctx, 1, "r1", "a1", "credit", "")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestDeactivatedAccountIsInvisible(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()
	fx.Account(t, 1, "RUB", "10", "0")

	require.NoError(t, fx.Repo.DeactivateAccount(ctx, 1))
	assert.Error(t, fx.Repo.DeactivateAccount(ctx, 99))

	account, err := fx.Repo.GetAccount(ctx, 1, nil)
	require.NoError(t, err)
	assert.Nil(t, account)

	require.NoError(t, fx.Repo.InTransaction(ctx, func(tx *gorm.DB) error {
		locked, err := fx.Repo.LockAccount(ctx, tx, 1)
		assert.Nil(t, locked)
		return err
	}))
}

func TestEntriesAndReversal(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	bet := &models.LedgerEntry{UserID: 1, Kind: models.EntryBet, Amount: decimal.NewFromInt(3), Currency: "RUB", TID: "b1", RoundID: "r1", ActionID: "a1"}
	require.NoError(t, fx.Repo.AppendEntry(ctx, nil, bet))
	assert.Len(t, bet.ID, 36)

	found, err := fx.Repo.FindEntryByTID(ctx, nil, 1, "b1")
	require.NoError(t, err)
	assert.Equal(t, bet.ID, found.ID)

	found, err = fx.Repo.FindLatestEntryByAction(ctx, nil, 1, "r1", "a1", models.EntryBet)
	require.NoError(t, err)
	assert.Equal(t, bet.ID, found.ID)

	reversed, err := fx.Repo.IsReversed(ctx, nil, bet.ID)
	require.NoError(t, err)
	assert.False(t, reversed)

	require.NoError(t, fx.Repo.AppendEntry(ctx, nil, &models.LedgerEntry{
		UserID: 1, Kind: models.EntryRollback, Amount: decimal.NewFromInt(3), Currency: "RUB", TID: "rb1", ReversesID: &bet.ID,
	}))
	reversed, err = fx.Repo.IsReversed(ctx, nil, bet.ID)
	require.NoError(t, err)
	assert.True(t, reversed)

	entries, err := fx.Repo.ListEntries(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
