package service_test

import (
	"context"
	"testing"

	"github.com/Fi44er/casino_ledger/internal/ledgertest"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func debitRecord(tid, amt string) *models.IdempotencyRecord {
	return &models.IdempotencyRecord{
		TID:      tid,
		Type:     "debit",
		UserID:   1,
		Currency: "RUB",
		Amount:   amount(amt),
		RoundID:  "r1",
		ActionID: "a1",
	}
}

func TestReserveLifecycle(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	lookup, err := fx.Service.Reserve(ctx, debitRecord("t1", "10"))
	require.NoError(t, err)
	assert.Equal(t, service.Fresh, lookup.Resolution)
	reserved := lookup.Record

	lookup, err = fx.Service.Reserve(ctx, debitRecord("t1", "10"))
	require.NoError(t, err)
	assert.Equal(t, service.Pending, lookup.Resolution)

	require.NoError(t, fx.Service.Complete(ctx, reserved, datatypes.JSON(`{"status":"OK"}`)))
	require.Error(t, fx.Service.Complete(ctx, reserved, datatypes.JSON(`{"status":"OK"}`)))

	lookup, err = fx.Service.Reserve(ctx, debitRecord("t1", "10"))
	require.NoError(t, err)
	assert.Equal(t, service.Committed, lookup.Resolution)
	assert.JSONEq(t, `{"status":"OK"}`, string(lookup.Record.Response))
}

func TestReserveDetectsConflicts(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	_, err := fx.Service.Reserve(ctx, debitRecord("t1", "10"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		record *models.IdempotencyRecord
		want   service.Resolution
	}{
		{name: "same tid other amount", record: debitRecord("t1", "11"), want: service.ConflictDetected},
		{name: "same action other amount", record: debitRecord("t2", "11"), want: service.ConflictDetected},
		{name: "same action new tid", record: debitRecord("t3", "10"), want: service.Pending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup, err := fx.Service.Reserve(ctx, tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, lookup.Resolution, lookup.Resolution.String())
			assert.Equal(t, "t1", lookup.Record.TID)
		})
	}
}

func TestReserveOtherTypeSameActionIsFresh(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	_, err := fx.Service.Reserve(ctx, debitRecord("t1", "10"))
	require.NoError(t, err)

	credit := debitRecord("t2", "10")
	credit.Type = "credit"
	lookup, err := fx.Service.Reserve(ctx, credit)
	require.NoError(t, err)
	assert.Equal(t, service.Fresh, lookup.Resolution)
}

func TestReleaseAllowsRetry(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	lookup, err := fx.Service.Reserve(ctx, debitRecord("t1", "10"))
	require.NoError(t, err)
	fx.Service.Release(ctx, lookup.Record)

	lookup, err = fx.Service.Reserve(ctx, debitRecord("t1", "10"))
	require.NoError(t, err)
	assert.Equal(t, service.Fresh, lookup.Resolution)
}

func TestSettleCompletesRecordWithMutation(t *testing.T) {
	fx := ledgertest.New(t)
	fx.Account(t, 1, "RUB", "100", "0")
	ctx := context.Background()

	lookup, err := fx.Service.Reserve(ctx, debitRecord("t1", "10"))
	require.NoError(t, err)

	respond := func(out *service.Outcome) (datatypes.JSON, error) {
		return datatypes.JSON(`{"balance":"` + out.Balance.StringFixed(2) + `"}`), nil
	}
	_, err = fx.Service.Debit(ctx, service.Operation{UserID: 1, Amount: amount("10"), TID: "t1", RoundID: "r1", ActionID: "a1"}, lookup.Record, respond)
	require.NoError(t, err)

	stored, err := fx.Repo.GetRecordByTID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCommitted, stored.State)
	assert.JSONEq(t, `{"balance":"90.00"}`, string(stored.Response))
}

func TestSettleRefusesActionSettledUnderOtherTID(t *testing.T) {
	fx := ledgertest.New(t)
	fx.Account(t, 1, "RUB", "100", "0")
	ctx := context.Background()

	// Both resends missed the lookup and reserved their own tid.
	first, second := debitRecord("t1", "10"), debitRecord("t2", "10")
	require.NoError(t, fx.Repo.CreateRecord(ctx, first))
	require.NoError(t, fx.Repo.CreateRecord(ctx, second))

	respond := func(out *service.Outcome) (datatypes.JSON, error) {
		return datatypes.JSON(`{"status":"OK"}`), nil
	}
	op := service.Operation{UserID: 1, Amount: amount("10"), RoundID: "r1", ActionID: "a1"}

	op.TID = "t2"
	_, err := fx.Service.Debit(ctx, op, second, respond)
	require.NoError(t, err)

	op.TID = "t1"
	_, err = fx.Service.Debit(ctx, op, first, respond)
	require.ErrorIs(t, err, service.ErrDuplicateAction)
	assert.False(t, service.IsFinal(err))

	ledgertest.RequireDecimal(t, "90", fx.Reload(t, 1).MainBalance)
	stored, err := fx.Repo.GetRecordByTID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, stored.State)
}
