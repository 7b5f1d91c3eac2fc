package validator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lottery_bot/internal/model"
)

// FollowerChecker reports whether a user has started a bot.
type FollowerChecker interface {
	IsBotFollower(ctx context.Context, botID, userID int64) (bool, error)
}

// FollowBot validates follow-bot conditions from recorded /start events.
type FollowBot struct {
	store        FollowerChecker
	defaultBotID int64
}

// NewFollowBot creates a FollowBot validator. An empty condition target
// refers to defaultBotID.
func NewFollowBot(store FollowerChecker, defaultBotID int64) *FollowBot {
	return &FollowBot{store: store, defaultBotID: defaultBotID}
}

// Validate checks that the user has started the target bot.
func (f *FollowBot) Validate(ctx context.Context, userID int64, c model.Condition) (bool, error) {
	botID := f.defaultBotID
	if t := strings.TrimSpace(c.Target); t != "" {
		id, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return false, fmt.Errorf("%w: bot target %q", model.ErrInvalidCondition, c.Target)
		}
		botID = id
	}
	return f.store.IsBotFollower(ctx, botID, userID)
}
