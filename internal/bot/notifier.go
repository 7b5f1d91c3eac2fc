package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lottery_bot/internal/model"
)

// SendStart announces an opened activity in chatID with a button linking to the bot.
func (b *Bot) SendStart(ctx context.Context, a *model.Activity, chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, FormatStart(a))
	msg.DisableWebPagePreview = true
	if username := b.tg.Username(); username != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Join", startLink(username, a.ID)),
		))
	}
	if _, err := b.tg.Send(ctx, msg); err != nil {
		return fmt.Errorf("send start notification: %w", err)
	}
	return nil
}

// SendEnd announces the recorded winners of a finished activity in chatID.
func (b *Bot) SendEnd(ctx context.Context, a *model.Activity, chatID int64) error {
	winners, err := b.store.ListWinners(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("list winners: %w", err)
	}
	msg := tgbotapi.NewMessage(chatID, FormatEnd(a, winners))
	msg.DisableWebPagePreview = true
	if _, err := b.tg.Send(ctx, msg); err != nil {
		return fmt.Errorf("send end notification: %w", err)
	}
	return nil
}
