// Package ledgertest builds an in-memory ledger for tests.
package ledgertest

import (
	"context"
	"testing"

	"github.com/Fi44er/casino_ledger/db"
	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/internal/repository"
	"github.com/Fi44er/casino_ledger/internal/service"
	"github.com/Fi44er/casino_ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Rates used by every fixture: 1 USD = 90 RUB = 0.92 EUR.
var Rates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"RUB": decimal.NewFromInt(90),
	"EUR": decimal.RequireFromString("0.92"),
	"BTC": decimal.RequireFromString("0.00002"),
}

type Fixture struct {
	DB      *gorm.DB
	Repo    *repository.Repository
	Service *service.Service
	Logger  *utils.Logger
}

func New(t *testing.T) *Fixture {
	t.Helper()
	return NewWithOptions(t, service.Options{
		PointsRate:      decimal.RequireFromString("0.01"),
		DefaultCurrency: "RUB",
	})
}

func NewWithOptions(t *testing.T, opts service.Options) *Fixture {
	t.Helper()
	logger := utils.NewDiscardLogger()

	database, err := db.ConnectSQLite(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database, true, logger))
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})

	repo := repository.NewRepository(database, logger)
	converter := currency.NewConverter(currency.StaticRates(Rates))
	return &Fixture{
		DB:      database,
		Repo:    repo,
		Service: service.NewLedgerService(repo, converter, opts, logger),
		Logger:  logger,
	}
}

// Account creates an active account holding main and bonus.
func (f *Fixture) Account(t *testing.T, userID int64, code, main, bonus string) *models.Account {
	t.Helper()
	account := &models.Account{
		UserID:       userID,
		Currency:     code,
		MainBalance:  decimal.RequireFromString(main),
		BonusBalance: decimal.RequireFromString(bonus),
		Active:       true,
	}
	require.NoError(t, f.Repo.CreateAccount(context.Background(), account))
	return account
}

// Reload reads the account back from the database.
func (f *Fixture) Reload(t *testing.T, userID int64) *models.Account {
	t.Helper()
	account, err := f.Repo.GetAccount(context.Background(), userID, nil)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account
}

// WagerBonus reads a promotional bonus back from the database.
func (f *Fixture) WagerBonus(t *testing.T, id uint) *models.WagerBonus {
	t.Helper()
	var bonus models.WagerBonus
	require.NoError(t, f.DB.First(&bonus, id).Error)
	return &bonus
}

// RequireDecimal compares decimals by value.
func RequireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got),
		append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}
