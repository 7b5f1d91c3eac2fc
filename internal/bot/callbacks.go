package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lottery_bot/internal/model"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	action, id, err := ParseCallbackData(cb.Data)
	if err != nil {
		b.answer(ctx, cb.ID, "", false)
		return
	}

	b.log.Info().
		Str("action", action).
		Int64("activity_id", id).
		Int64("user_id", cb.From.ID).
		Str("username", cb.From.UserName).
		Msg("callback")

	if action == actionSpeech {
		b.handleSpeechCounts(ctx, cb, id)
		return
	}

	b.answer(ctx, cb.ID, "", false)
	chatID := cb.From.ID
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}

	switch action {
	case actionJoin:
		b.join(ctx, chatID, cb.From, id)
	case actionCheck:
		b.recheck(ctx, chatID, cb.From, id)
	}
}

func (b *Bot) handleSpeechCounts(ctx context.Context, cb *tgbotapi.CallbackQuery, activityID int64) {
	a, err := b.store.GetActivity(ctx, activityID)
	if err != nil {
		b.log.Error().Err(err).Int64("activity_id", activityID).Msg("get activity")
		b.answer(ctx, cb.ID, "Lottery not found.", true)
		return
	}

	var text string
	for _, c := range a.Conditions {
		if c.Kind != model.ConditionSpeechCount {
			continue
		}
		counts, threshold, err := b.speech.Counts(ctx, cb.From.ID, a, c)
		if err != nil {
			b.log.Warn().Err(err).Int64("activity_id", a.ID).Msg("speech counts")
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += FormatSpeechCounts(counts, threshold)
	}
	if text == "" {
		text = "No message requirements for this lottery."
	}
	b.answer(ctx, cb.ID, text, true)
}

func (b *Bot) answer(ctx context.Context, callbackID, text string, alert bool) {
	actx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.tg.Answer(actx, callbackID, text, alert); err != nil {
		b.log.Error().Err(err).Msg("answer callback")
	}
}
