package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lottery_bot/internal/model"
	"lottery_bot/internal/storage"
)

const helpText = `Lottery bot

/start - show open lotteries
/help - show this message

Admin:
/activities - list pending and active lotteries
/kill <id> - cancel a lottery`

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	if err := b.store.AddBotFollower(ctx, b.tg.BotID(), msg.From.ID); err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("record follower")
	}

	// Deep link from an announcement: /start <activity id>.
	if id, err := ParseIDArg(args); err == nil {
		b.join(ctx, chatID, msg.From, id)
		return
	}

	activities, err := b.store.ListActiveActivities(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("list active activities")
		b.reply(ctx, chatID, "Failed to load lotteries.")
		return
	}
	if len(activities) == 0 {
		b.reply(ctx, chatID, "There are no open lotteries right now.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range activities {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(a.Name, callbackData(actionJoin, a.ID)),
		))
	}
	b.SendMessage(ctx, chatID, "Open lotteries. Tap one to join:", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	b.reply(ctx, msg.Chat.ID, helpText)
}

func (b *Bot) handleActivities(ctx context.Context, chatID int64) {
	activities, err := b.store.ListNonTerminalActivities(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("list activities")
		b.reply(ctx, chatID, "Failed to load lotteries.")
		return
	}
	b.reply(ctx, chatID, FormatActivityList(activities))
}

func (b *Bot) handleKill(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /kill <id>")
		return
	}
	err = b.store.SetStatus(ctx, id, model.StatusKilled)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(ctx, chatID, fmt.Sprintf("Lottery #%d not found.", id))
	case errors.Is(err, storage.ErrTerminal):
		b.reply(ctx, chatID, fmt.Sprintf("Lottery #%d has already finished.", id))
	case err != nil:
		b.log.Error().Err(err).Int64("activity_id", id).Msg("kill activity")
		b.reply(ctx, chatID, "Failed to cancel the lottery.")
	default:
		b.log.Info().Int64("activity_id", id).Msg("activity killed")
		b.reply(ctx, chatID, fmt.Sprintf("Lottery #%d cancelled.", id))
	}
}

// join records participation in an open activity and reports the user's condition status.
func (b *Bot) join(ctx context.Context, chatID int64, from *tgbotapi.User, activityID int64) {
	a, ok := b.openActivity(ctx, chatID, activityID)
	if !ok {
		return
	}

	u := model.ActivityUser{
		ActivityID: a.ID,
		UserID:     from.ID,
		UserName:   from.UserName,
		FullName:   fullName(from),
	}
	if err := b.store.AddParticipant(ctx, &u); err != nil {
		b.log.Error().Err(err).Int64("activity_id", a.ID).Int64("user_id", from.ID).Msg("add participant")
		b.reply(ctx, chatID, "Failed to join. Please try again.")
		return
	}
	b.log.Info().Int64("activity_id", a.ID).Int64("user_id", from.ID).Msg("participant joined")
	b.evaluate(ctx, chatID, from.ID, a)
}

func (b *Bot) recheck(ctx context.Context, chatID int64, from *tgbotapi.User, activityID int64) {
	a, ok := b.openActivity(ctx, chatID, activityID)
	if !ok {
		return
	}
	if _, err := b.store.GetParticipant(ctx, a.ID, from.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(ctx, chatID, "You have not joined this lottery yet. Use /start to join.")
			return
		}
		b.log.Error().Err(err).Int64("activity_id", a.ID).Int64("user_id", from.ID).Msg("get participant")
		return
	}
	b.evaluate(ctx, chatID, from.ID, a)
}

func (b *Bot) evaluate(ctx context.Context, chatID, userID int64, a *model.Activity) {
	res, err := b.eval.Evaluate(ctx, userID, a)
	if err != nil {
		b.log.Error().Err(err).Int64("activity_id", a.ID).Int64("user_id", userID).Msg("evaluate participant")
	}
	text, kb := FormatEvaluation(a, res)
	if kb != nil {
		b.SendMessage(ctx, chatID, text, *kb)
		return
	}
	b.reply(ctx, chatID, text)
}

func (b *Bot) openActivity(ctx context.Context, chatID, activityID int64) (*model.Activity, bool) {
	a, err := b.store.GetActivity(ctx, activityID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(ctx, chatID, fmt.Sprintf("Lottery #%d not found.", activityID))
		return nil, false
	}
	if err != nil {
		b.log.Error().Err(err).Int64("activity_id", activityID).Msg("get activity")
		b.reply(ctx, chatID, "Failed to load the lottery.")
		return nil, false
	}
	if a.Status != model.StatusActive {
		b.reply(ctx, chatID, fmt.Sprintf("\"%s\" is not open for entries.", a.Name))
		return nil, false
	}
	return a, true
}

func fullName(u *tgbotapi.User) string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
