package validator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"lottery_bot/internal/model"
)

// MemberChecker reports whether a user belongs to a chat.
// Either chatID or username identifies the chat.
type MemberChecker interface {
	IsMember(ctx context.Context, chatID int64, username string, userID int64) (bool, error)
}

// Membership validates join-group and join-channel conditions.
type Membership struct {
	checker MemberChecker
}

// NewMembership creates a Membership validator.
func NewMembership(checker MemberChecker) *Membership {
	return &Membership{checker: checker}
}

// Validate checks that the user is a member of the condition's target chat.
func (m *Membership) Validate(ctx context.Context, userID int64, c model.Condition) (bool, error) {
	chatID, username, err := parseChatTarget(c.Target)
	if err != nil {
		return false, err
	}
	return m.checker.IsMember(ctx, chatID, username, userID)
}

func parseChatTarget(target string) (int64, string, error) {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "@") && len(target) > 1 {
		return 0, target, nil
	}
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: chat target %q", model.ErrInvalidCondition, target)
	}
	return id, "", nil
}
