package service_test

import (
	"context"
	"testing"

	"github.com/Fi44er/casino_ledger/internal/ledgertest"
	"github.com/Fi44er/casino_ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccountUsesDefaultCurrency(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()

	account, err := fx.Service.CreateAccount(ctx, 7, "")
	require.NoError(t, err)
	assert.Equal(t, "RUB", account.Currency)

	account, err = fx.Service.CreateAccount(ctx, 8, "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", account.Currency)

	_, err = fx.Service.CreateAccount(ctx, 8, "USD")
	require.Error(t, err)
}

func TestDepositAndWithdrawal(t *testing.T) {
	fx := ledgertest.New(t)
	ctx := context.Background()
	_, err := fx.Service.CreateAccount(ctx, 7, "RUB")
	require.NoError(t, err)

	balance, err := fx.Service.CreditDeposit(ctx, 7, amount("10"), "USD")
	require.NoError(t, err)
	ledgertest.RequireDecimal(t, "10", balance)
	ledgertest.RequireDecimal(t, "900", fx.Reload(t, 7).MainBalance)

	_, err = fx.Service.CreditDeposit(ctx, 7, amount("0"), "")
	require.ErrorIs(t, err, service.ErrInvalidAmount)

	balance, err = fx.Service.DebitOrRefundWithdrawal(ctx, 7, amount("400"))
	require.NoError(t, err)
	ledgertest.RequireDecimal(t, "500", balance)

	_, err = fx.Service.DebitOrRefundWithdrawal(ctx, 7, amount("501"))
	require.ErrorIs(t, err, service.ErrInsufficientFunds)

	balance, err = fx.Service.DebitOrRefundWithdrawal(ctx, 7, amount("-400"))
	require.NoError(t, err)
	ledgertest.RequireDecimal(t, "900", balance)

	balance, err = fx.Service.GetBalance(ctx, 7, "EUR")
	require.NoError(t, err)
	ledgertest.RequireDecimal(t, "9.2", balance)
}

func TestWithdrawalIgnoresBonusBalance(t *testing.T) {
	fx := ledgertest.New(t)
	fx.Account(t, 1, "RUB", "10", "100")

	_, err := fx.Service.DebitOrRefundWithdrawal(context.Background(), 1, amount("50"))
	require.ErrorIs(t, err, service.ErrInsufficientFunds)
}
