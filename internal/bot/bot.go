package bot

import (
	"context"
	"sync"

	"github.com/Fi44er/casino_ledger/internal/models"
	"github.com/Fi44er/casino_ledger/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

const alertQueueSize = 64

// Sender is the part of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Accounts are the ledger operations available to the admin chat.
type Accounts interface {
	CreateAccount(ctx context.Context, userID int64, code string) (*models.Account, error)
	CreditDeposit(ctx context.Context, userID int64, amount decimal.Decimal, code string) (decimal.Decimal, error)
	DebitOrRefundWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	GetBalance(ctx context.Context, userID int64, code string) (decimal.Decimal, error)
	ExpireBonuses(ctx context.Context) (int, error)
}

// Bot posts ledger alerts to the admin chat and answers admin commands.
type Bot struct {
	API         Sender
	accounts    Accounts
	logger      *utils.Logger
	adminChatID int64
	alerts      chan string
	stopOnce    sync.Once
	stopped     chan struct{}
}

func NewBot(api Sender, accounts Accounts, adminChatID int64, logger *utils.Logger) *Bot {
	return &Bot{
		API:         api,
		accounts:    accounts,
		logger:      logger,
		adminChatID: adminChatID,
		alerts:      make(chan string, alertQueueSize),
		stopped:     make(chan struct{}),
	}
}

// Notify queues an alert for the admin chat. It never blocks the caller; when
// the queue is full the alert is only logged.
func (b *Bot) Notify(message string) {
	select {
	case b.alerts <- message:
	default:
		b.logger.Warnf("Alert queue full, dropping: %s", message)
	}
}

// Start sends queued alerts and handles updates until ctx is done or updates
// is closed. A nil updates channel runs the bot as a pure notifier.
func (b *Bot) Start(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	b.logger.Info("Starting admin bot...")
	defer b.stopOnce.Do(func() { close(b.stopped) })

	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case msg := <-b.alerts:
			b.sendMessage(b.adminChatID, "⚠️ "+msg)
		case update, ok := <-updates:
			if !ok {
				b.drain()
				return
			}
			b.logger.Debugf("Received update: %+v", update)
			if update.Message != nil {
				b.HandleUpdate(ctx, update)
			}
		}
	}
}

// Done is closed once Start has returned.
func (b *Bot) Done() <-chan struct{} {
	return b.stopped
}

func (b *Bot) drain() {
	for {
		select {
		case msg := <-b.alerts:
			b.sendMessage(b.adminChatID, "⚠️ "+msg)
		default:
			return
		}
	}
}
