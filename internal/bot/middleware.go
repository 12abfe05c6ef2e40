package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) withAdminCheck(handler func(context.Context, int64, []string)) func(context.Context, tgbotapi.Update) {
	return func(ctx context.Context, update tgbotapi.Update) {
		chatID := update.Message.Chat.ID
		if !b.isAdmin(chatID) {
			b.logger.Warnf("Ignoring command from non-admin chat %d", chatID)
			return
		}
		handler(ctx, chatID, strings.Fields(update.Message.CommandArguments()))
	}
}
