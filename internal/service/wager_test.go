package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/Fi44er/casino_ledger/internal/ledgertest"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWagerSpreadsAcrossBonusesInOrder(t *testing.T) {
	fx := ledgertest.New(t)
	fx.Account(t, 1, "RUB", "1000", "60")
	ctx := context.Background()

	created := time.Now().Add(-time.Hour)
	a := &models.WagerBonus{UserID: 1, RequiredWager: amount("50"), WinAmount: amount("20"), Status: models.BonusActive, CreatedAt: created}
	b := &models.WagerBonus{UserID: 1, RequiredWager: amount("100"), WinAmount: amount("40"), Status: models.BonusActive, CreatedAt: created.Add(time.Minute)}
	require.NoError(t, fx.Repo.CreateWagerBonus(ctx, a))
	require.NoError(t, fx.Repo.CreateWagerBonus(ctx, b))

	out, err := fx.Service.Debit(ctx, service.Operation{UserID: 1, Amount: amount("80"), TID: "t1"}, nil, nil)
	require.NoError(t, err)
	ledgertest.RequireDecimal(t, "980", out.Balance)

	storedA := fx.WagerBonus(t, a.ID)
	assert.Equal(t, models.BonusCompleted, storedA.Status)
	ledgertest.RequireDecimal(t, "50", storedA.CompletedWager)

	storedB := fx.WagerBonus(t, b.ID)
	assert.Equal(t, models.BonusActive, storedB.Status)
	ledgertest.RequireDecimal(t, "30", storedB.CompletedWager)

	// A's winnings moved from bonus to main.
	account := fx.Reload(t, 1)
	ledgertest.RequireDecimal(t, "940", account.MainBalance)
	ledgertest.RequireDecimal(t, "40", account.BonusBalance)

	entries, err := fx.Repo.ListEntries(ctx, 1)
	require.NoError(t, err)
	var transfers int
	for _, e := range entries {
		if e.Kind == models.EntryBonusTransfer {
			transfers++
			ledgertest.RequireDecimal(t, "20", e.Amount)
			require.NotNil(t, e.BonusID)
			assert.Equal(t, a.ID, *e.BonusID)
		}
	}
	assert.Equal(t, 1, transfers)
}

func TestWagerPayoutCappedAtBonusBalance(t *testing.T) {
	fx := ledgertest.New(t)
	fx.Account(t, 1, "RUB", "100", "5")
	ctx := context.Background()

	bonus := &models.WagerBonus{UserID: 1, RequiredWager: amount("10"), WinAmount: amount("20"), Status: models.BonusActive}
	require.NoError(t, fx.Repo.CreateWagerBonus(ctx, bonus))

	_, err := fx.Service.Debit(ctx, service.Operation{UserID: 1, Amount: amount("10"), TID: "t1"}, nil, nil)
	require.NoError(t, err)

	account := fx.Reload(t, 1)
	ledgertest.RequireDecimal(t, "95", account.MainBalance)
	ledgertest.RequireDecimal(t, "0", account.BonusBalance)
}

func TestFreeroundWinningsAreWageredOff(t *testing.T) {
	fx := ledgertest.New(t)
	fx.Account(t, 1, "RUB", "100", "0")
	ctx := context.Background()

	bonus := &models.FreeroundBonus{UserID: 1, GameID: "slot-7", Multiplier: amount("2"), Status: models.BonusActive}
	require.NoError(t, fx.Repo.CreateFreeroundBonus(ctx, bonus))

	_, err := fx.Service.Credit(ctx, service.Operation{UserID: 1, Amount: amount("25"), TID: "w1", RoundID: "fr", GameID: "slot-7"}, nil, nil)
	require.NoError(t, err)

	// 50 required; two bets of 30 finish it.
	for _, tid := range []string{"b1", "b2"} {
		_, err = fx.Service.Debit(ctx, service.Operation{UserID: 1, Amount: amount("30"), TID: tid}, nil, nil)
		require.NoError(t, err)
	}

	stored, err := fx.Repo.GetFreeroundBonus(ctx, nil, bonus.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BonusCompleted, stored.Status)
	ledgertest.RequireDecimal(t, "50", stored.CompletedWager)

	account := fx.Reload(t, 1)
	ledgertest.RequireDecimal(t, "65", account.MainBalance)
	ledgertest.RequireDecimal(t, "0", account.BonusBalance)
}

func TestExpiredBonusesAreOutOfPlayBeforeSweep(t *testing.T) {
	fx := ledgertest.New(t)
	fx.Account(t, 1, "RUB", "1000", "20")
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	stale := &models.WagerBonus{UserID: 1, RequiredWager: amount("50"), WinAmount: amount("20"), Status: models.BonusActive, ExpiresAt: &past}
	freeround := &models.FreeroundBonus{UserID: 1, GameID: "slot-7", Token: "fr-1", Multiplier: amount("2"), Status: models.BonusActive, ExpiresAt: &past}
	require.NoError(t, fx.Repo.CreateWagerBonus(ctx, stale))
	require.NoError(t, fx.Repo.CreateFreeroundBonus(ctx, freeround))

	_, err := fx.Service.Debit(ctx, service.Operation{UserID: 1, Amount: amount("100"), TID: "b1"}, nil, nil)
	require.NoError(t, err)

	stored := fx.WagerBonus(t, stale.ID)
	assert.Equal(t, models.BonusActive, stored.Status)
	assert.True(t, stored.CompletedWager.IsZero())

	// Neither the game heuristic nor the token reach an expired free-round bonus.
	for _, op := range []service.Operation{
		{UserID: 1, Amount: amount("15"), TID: "w1", RoundID: "r9", GameID: "slot-7"},
		{UserID: 1, Amount: amount("5"), TID: "w2", FreeroundToken: "fr-1"},
	} {
		_, err = fx.Service.Credit(ctx, op, nil, nil)
		require.NoError(t, err)
	}

	fr, err := fx.Repo.GetFreeroundBonus(ctx, nil, freeround.ID)
	require.NoError(t, err)
	assert.True(t, fr.WinAmount.IsZero())

	account := fx.Reload(t, 1)
	ledgertest.RequireDecimal(t, "920", account.MainBalance)
	ledgertest.RequireDecimal(t, "20", account.BonusBalance)
}
