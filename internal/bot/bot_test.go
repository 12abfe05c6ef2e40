package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Fi44er/casino_ledger/internal/ledgertest"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminChat = int64(777)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func command(chatID int64, text string) tgbotapi.Update {
	name, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func run(t *testing.T, b *Bot, updates ...tgbotapi.Update) {
	t.Helper()
	ch := make(chan tgbotapi.Update, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	b.Start(context.Background(), ch)
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
}

func TestAdminCommands(t *testing.T) {
	fx := ledgertest.New(t)
	sender := &fakeSender{}
	b := NewBot(sender, fx.Service, adminChat, fx.Logger)

	run(t, b,
		command(adminChat, "/open 5 RUB"),
		command(adminChat, "/deposit 5 100"),
		command(adminChat, "/withdraw 5 30"),
		command(adminChat, "/refund 5 10"),
		command(adminChat, "/balance 5"),
		command(adminChat, "/withdraw 5 1000"),
		command(adminChat, "/balance x"),
	)

	texts := sender.texts(adminChat)
	require.Len(t, texts, 7)
	assert.Contains(t, texts[0], "RUB")
	assert.Contains(t, texts[3], "80.00")
	assert.Contains(t, texts[4], "*80.00*")
	assert.Contains(t, texts[5], "Недостаточно средств")
	assert.Contains(t, texts[6], "Неверный ID")
	ledgertest.RequireDecimal(t, "80", fx.Reload(t, 5).MainBalance)
}

func TestCommandsFromOtherChatsAreIgnored(t *testing.T) {
	fx := ledgertest.New(t)
	sender := &fakeSender{}
	b := NewBot(sender, fx.Service, adminChat, fx.Logger)

	run(t, b, command(12345, "/open 5"), tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: adminChat}, Text: "hello"}})

	assert.Empty(t, sender.texts(12345))
	assert.Empty(t, sender.texts(adminChat))
	account, err := fx.Repo.GetAccount(context.Background(), 5, nil)
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestNotifyReachesAdminChat(t *testing.T) {
	fx := ledgertest.New(t)
	sender := &fakeSender{}
	b := NewBot(sender, fx.Service, adminChat, fx.Logger)

	b.Notify("Parameters mismatch on tid t1")
	run(t, b)

	texts := sender.texts(adminChat)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "tid t1")
}

func TestNotifyNeverBlocks(t *testing.T) {
	fx := ledgertest.New(t)
	b := NewBot(&fakeSender{}, fx.Service, adminChat, fx.Logger)

	for i := 0; i < alertQueueSize*2; i++ {
		b.Notify("overflow")
	}
	assert.Len(t, b.alerts, alertQueueSize)
}
