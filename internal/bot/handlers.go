package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

const helpText = "*Команды*\n" +
	"/balance <user> [CCY]\n" +
	"/open <user> [CCY]\n" +
	"/deposit <user> <amount> [CCY]\n" +
	"/withdraw <user> <amount>\n" +
	"/refund <user> <amount>\n" +
	"/expire"

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if !update.Message.IsCommand() {
		return
	}
	b.logger.Infof("Processing command from chat %d: %s", update.Message.Chat.ID, update.Message.Text)

	var handler func(context.Context, int64, []string)
	switch update.Message.Command() {
	case "balance":
		handler = b.handleBalance
	case "open":
		handler = b.handleOpen
	case "deposit":
		handler = b.handleDeposit
	case "withdraw":
		handler = b.handleWithdraw(false)
	case "refund":
		handler = b.handleWithdraw(true)
	case "expire":
		handler = b.handleExpire
	default:
		handler = func(_ context.Context, chatID int64, _ []string) {
			b.sendMessage(chatID, helpText)
		}
	}
	b.withAdminCheck(handler)(ctx, update)
}

func (b *Bot) handleBalance(ctx context.Context, chatID int64, args []string) {
	userID, ok := b.userArg(chatID, args, 1)
	if !ok {
		return
	}
	code := optional(args, 1)

	balance, err := b.accounts.GetBalance(ctx, userID, code)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("Баланс пользователя `%d`: *%s* %s", userID, currency.Format(balance, code), code))
}

func (b *Bot) handleOpen(ctx context.Context, chatID int64, args []string) {
	userID, ok := b.userArg(chatID, args, 1)
	if !ok {
		return
	}

	account, err := b.accounts.CreateAccount(ctx, userID, optional(args, 1))
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("✅ Счёт `%d` открыт в %s", account.UserID, account.Currency))
}

func (b *Bot) handleDeposit(ctx context.Context, chatID int64, args []string) {
	userID, ok := b.userArg(chatID, args, 2)
	if !ok {
		return
	}
	amount, ok := b.amountArg(chatID, args[1])
	if !ok {
		return
	}
	code := optional(args, 2)

	balance, err := b.accounts.CreditDeposit(ctx, userID, amount, code)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("✅ Зачислено %s. Баланс `%d`: *%s*", amount, userID, currency.Format(balance, code)))
}

// handleWithdraw reserves a withdrawal, or returns a rejected one when refund is set.
func (b *Bot) handleWithdraw(refund bool) func(context.Context, int64, []string) {
	return func(ctx context.Context, chatID int64, args []string) {
		userID, ok := b.userArg(chatID, args, 2)
		if !ok {
			return
		}
		amount, ok := b.amountArg(chatID, args[1])
		if !ok {
			return
		}
		if refund {
			amount = amount.Neg()
		}

		balance, err := b.accounts.DebitOrRefundWithdrawal(ctx, userID, amount)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.sendMessage(chatID, fmt.Sprintf("✅ Готово. Основной баланс `%d`: *%s*", userID, balance.StringFixed(2)))
	}
}

func (b *Bot) handleExpire(ctx context.Context, chatID int64, _ []string) {
	n, err := b.accounts.ExpireBonuses(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("Истекло бонусов: %d", n))
}

func (b *Bot) userArg(chatID int64, args []string, need int) (int64, bool) {
	if len(args) < need {
		b.sendMessage(chatID, helpText)
		return 0, false
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		b.sendMessage(chatID, "❌ Неверный ID пользователя")
		return 0, false
	}
	return userID, true
}

func (b *Bot) amountArg(chatID int64, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		b.sendMessage(chatID, "❌ Неверная сумма")
		return decimal.Zero, false
	}
	return amount, true
}

func (b *Bot) replyError(chatID int64, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownAccount):
		b.sendMessage(chatID, "❌ Пользователь не найден")
	case errors.Is(err, service.ErrInsufficientFunds):
		b.sendMessage(chatID, "❌ Недостаточно средств")
	case errors.Is(err, service.ErrInvalidAmount):
		b.sendMessage(chatID, "❌ Неверная сумма")
	case errors.Is(err, currency.ErrUnknownCurrency):
		b.sendMessage(chatID, "❌ Неизвестная валюта")
	default:
		b.logger.Errorf("Admin command failed: %v", err)
		b.sendMessage(chatID, "Произошла ошибка. Попробуйте позже.")
	}
}

func optional(args []string, i int) string {
	if len(args) > i {
		return currency.Normalize(args[i])
	}
	return ""
}
