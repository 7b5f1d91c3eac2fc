// Package bot is the Telegram surface: participant and admin commands,
// callback buttons, group message logging and activity announcements.
package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"lottery_bot/internal/config"
	"lottery_bot/internal/model"
	"lottery_bot/internal/storage"
	"lottery_bot/internal/validator"
)

type messenger interface {
	Send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error)
	Answer(ctx context.Context, callbackID, text string, alert bool) error
	Updates(timeout int) tgbotapi.UpdatesChannel
	StopUpdates()
	BotID() int64
	Username() string
}

type evaluator interface {
	Evaluate(ctx context.Context, userID int64, a *model.Activity) (validator.Result, error)
}

type speechCounter interface {
	Counts(ctx context.Context, userID int64, a *model.Activity, c model.Condition) ([]validator.ChatCount, int, error)
}

// Bot handles updates from Telegram and sends activity announcements.
type Bot struct {
	tg      messenger
	store   storage.Storage
	cfg     *config.Config
	eval    evaluator
	speech  speechCounter
	log     zerolog.Logger
	timeout time.Duration
}

// New creates a Bot.
func New(tg messenger, store storage.Storage, cfg *config.Config, eval evaluator, speech speechCounter, log zerolog.Logger) *Bot {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bot{
		tg:      tg,
		store:   store,
		cfg:     cfg,
		eval:    eval,
		speech:  speech,
		log:     log.With().Str("component", "bot").Logger(),
		timeout: timeout,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	updates := b.tg.Updates(60)

	for {
		select {
		case <-ctx.Done():
			b.tg.StopUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
		if !msg.IsCommand() {
			b.recordMessage(ctx, msg)
		}
		return
	}
	if msg.Chat.IsPrivate() && msg.IsCommand() {
		b.handleCommand(ctx, msg)
	}
}

func (b *Bot) recordMessage(ctx context.Context, msg *tgbotapi.Message) {
	m := model.ChatMessage{ChatID: msg.Chat.ID, UserID: msg.From.ID, CreatedAt: msg.Time()}
	if err := b.store.RecordMessage(ctx, m); err != nil {
		b.log.Error().Err(err).Int64("chat_id", m.ChatID).Int64("user_id", m.UserID).Msg("record message")
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if _, err := b.tg.Send(sctx, msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.SendMessage(ctx, chatID, text, nil)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug().Str("cmd", cmd).Str("args", args).Int64("chat_id", chatID).Msg("command")

	switch cmd {
	case "start":
		b.handleStart(ctx, msg, args)
	case "help":
		b.handleHelp(ctx, msg)
	case "activities":
		if b.requireAdmin(ctx, msg) {
			b.handleActivities(ctx, chatID)
		}
	case "kill":
		if b.requireAdmin(ctx, msg) {
			b.handleKill(ctx, chatID, args)
		}
	default:
		b.reply(ctx, chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func (b *Bot) requireAdmin(ctx context.Context, msg *tgbotapi.Message) bool {
	if b.cfg.IsAdmin(msg.From.ID) {
		return true
	}
	b.reply(ctx, msg.Chat.ID, "Access denied.")
	return false
}
