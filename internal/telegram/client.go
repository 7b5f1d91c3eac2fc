// Package telegram is the Bot API transport: rate-limited sends, callback
// answers, membership lookups and the update stream.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client wraps the Bot API with context-aware, rate-limited calls.
type Client struct {
	api     botAPI
	self    tgbotapi.User
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New connects to the Bot API with token. sendRate caps outgoing messages per second.
func New(token string, sendRate float64, log zerolog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return NewWithAPI(api, api.Self, sendRate, log), nil
}

// NewWithAPI creates a Client over an existing API implementation (for testing).
func NewWithAPI(api botAPI, self tgbotapi.User, sendRate float64, log zerolog.Logger) *Client {
	burst := max(1, int(sendRate))
	return &Client{
		api:     api,
		self:    self,
		limiter: rate.NewLimiter(rate.Limit(sendRate), burst),
		log:     log.With().Str("component", "telegram").Logger(),
	}
}

// BotID returns the bot's own user id.
func (c *Client) BotID() int64 {
	return c.self.ID
}

// Username returns the bot's username without the leading @.
func (c *Client) Username() string {
	return c.self.UserName
}

// Send delivers a message once the rate limiter allows it.
func (c *Client) Send(ctx context.Context, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return tgbotapi.Message{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return call(ctx, func() (tgbotapi.Message, error) { return c.api.Send(msg) })
}

// Answer acknowledges a callback query, optionally as an alert popup.
func (c *Client) Answer(ctx context.Context, callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	_, err := call(ctx, func() (*tgbotapi.APIResponse, error) { return c.api.Request(cfg) })
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// IsMember reports whether userID belongs to the chat identified by chatID or username.
func (c *Client) IsMember(ctx context.Context, chatID int64, username string, userID int64) (bool, error) {
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID:             chatID,
			SuperGroupUsername: username,
			UserID:             userID,
		},
	}
	member, err := call(ctx, func() (tgbotapi.ChatMember, error) { return c.api.GetChatMember(cfg) })
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return memberPasses(member), nil
}

// Updates starts long polling and returns the update stream.
func (c *Client) Updates(timeout int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	return c.api.GetUpdatesChan(u)
}

// StopUpdates stops long polling.
func (c *Client) StopUpdates() {
	c.api.StopReceivingUpdates()
}

func memberPasses(m tgbotapi.ChatMember) bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return m.IsMember
	default:
		return false
	}
}

// call runs a blocking Bot API request and abandons it when ctx ends first.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
