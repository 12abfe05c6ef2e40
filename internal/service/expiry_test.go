package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/Fi44er/casino_ledger/internal/ledgertest"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireBonusesForfeitsWinnings(t *testing.T) {
	fx := ledgertest.New(t)
	fx.Account(t, 1, "RUB", "100", "30")
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	expired := &models.FreeroundBonus{UserID: 1, GameID: "slot-7", WinAmount: amount("25"), Multiplier: amount("2"), Status: models.BonusWagering, ExpiresAt: &past}
	alive := &models.WagerBonus{UserID: 1, RequiredWager: amount("10"), WinAmount: amount("5"), Status: models.BonusActive, ExpiresAt: &future}
	require.NoError(t, fx.Repo.CreateFreeroundBonus(ctx, expired))
	require.NoError(t, fx.Repo.CreateWagerBonus(ctx, alive))

	n, err := fx.Service.ExpireBonuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	account := fx.Reload(t, 1)
	ledgertest.RequireDecimal(t, "100", account.MainBalance)
	ledgertest.RequireDecimal(t, "5", account.BonusBalance)

	stored, err := fx.Repo.GetFreeroundBonus(ctx, nil, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BonusExpired, stored.Status)

	assert.Equal(t, models.BonusActive, fx.WagerBonus(t, alive.ID).Status)

	n, err = fx.Service.ExpireBonuses(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
