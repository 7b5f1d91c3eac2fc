// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"lottery_bot/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrTerminal is returned when a status change targets an ended or killed activity.
var ErrTerminal = errors.New("activity is in a terminal status")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateActivity(ctx context.Context, a *model.Activity) error
	GetActivity(ctx context.Context, id int64) (*model.Activity, error)
	ListNonTerminalActivities(ctx context.Context) ([]model.Activity, error)
	ListActiveActivities(ctx context.Context) ([]model.Activity, error)
	SetStatus(ctx context.Context, id int64, status model.Status) error
	MarkChecked(ctx context.Context, id int64) error

	AddParticipant(ctx context.Context, u *model.ActivityUser) error
	GetParticipant(ctx context.Context, activityID, userID int64) (*model.ActivityUser, error)
	SetUserConditionFlag(ctx context.Context, activityID, userID int64, passed bool) error
	SetUserPrize(ctx context.Context, rowID int64, content string, level int) error
	ListWinners(ctx context.Context, activityID int64) ([]model.ActivityUser, error)

	CreateGroup(ctx context.Context, g *model.Group) error
	ResolveScopeTargets(ctx context.Context, tag string, ownerID int64) ([]int64, error)

	RecordMessage(ctx context.Context, m model.ChatMessage) error
	CountUserMessages(ctx context.Context, userID, chatID int64, from, to time.Time) (int, error)

	AddBotFollower(ctx context.Context, botID, userID int64) error
	IsBotFollower(ctx context.Context, botID, userID int64) (bool, error)

	Close() error
}
