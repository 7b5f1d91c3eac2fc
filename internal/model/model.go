// Package model defines the domain types used across the application.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCondition is returned when a condition's target or threshold cannot be parsed.
var ErrInvalidCondition = errors.New("invalid condition")

// Status is the lifecycle state of an activity.
type Status int

// Activity statuses. The numeric values match the persisted column.
const (
	StatusPending Status = 1
	StatusActive  Status = 2
	StatusKilled  Status = 3
	StatusEnded   Status = 4
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusKilled:
		return "killed"
	case StatusEnded:
		return "ended"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusKilled
}

// Scope selects where activity notifications go: a single chat id or a group tag.
type Scope string

// ChatID returns the chat id if the scope addresses a single chat directly.
// Supergroup and channel ids carry the -100 prefix; anything else is a tag.
func (s Scope) ChatID() (int64, bool) {
	str := strings.TrimSpace(string(s))
	if !strings.HasPrefix(str, "-100") {
		return 0, false
	}
	id, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Tag returns the scope as a group tag.
func (s Scope) Tag() string {
	return strings.TrimSpace(string(s))
}

// Activity is a time-boxed lottery campaign.
type Activity struct {
	ID         int64
	OwnerID    int64
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	Scope      Scope
	Status     Status
	Checked    bool
	Prizes     []PrizeTier
	Conditions []Condition
	Users      []ActivityUser
	CreatedAt  time.Time
}

// Duration returns the total length of the activity window.
func (a *Activity) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// Eligible returns the participants whose latest evaluation passed.
func (a *Activity) Eligible() []ActivityUser {
	var out []ActivityUser
	for _, u := range a.Users {
		if u.ConditionState == ConditionPassed {
			out = append(out, u)
		}
	}
	return out
}

// Validate checks the invariants an activity must hold before it is stored.
func (a *Activity) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("activity name is required")
	}
	if !a.StartTime.Before(a.EndTime) {
		return errors.New("start time must be before end time")
	}
	if a.Scope.Tag() == "" {
		return errors.New("activity scope is required")
	}
	for i, p := range a.Prizes {
		if p.Count < 0 {
			return fmt.Errorf("prize tier %d: negative count", i+1)
		}
	}
	for i, c := range a.Conditions {
		if !c.Kind.Valid() {
			return fmt.Errorf("condition %d: unknown kind %q", i+1, c.Kind)
		}
	}
	return nil
}

// PrizeTier is a prize bracket awarding Count winners.
type PrizeTier struct {
	Name    string `json:"prize_name"`
	Content string `json:"prize_content"`
	Count   int    `json:"prize_count"`
}

// WinningContent is the string recorded for a participant who wins this tier.
func (p PrizeTier) WinningContent() string {
	return p.Name + " " + p.Content
}

// ConditionKind identifies an eligibility rule.
type ConditionKind string

// Supported condition kinds.
const (
	ConditionJoinGroup   ConditionKind = "join_group"
	ConditionJoinChannel ConditionKind = "join_channel"
	ConditionFollowBot   ConditionKind = "follow_bot"
	ConditionSpeechCount ConditionKind = "speech_count"
)

// Valid reports whether k is one of the supported kinds.
func (k ConditionKind) Valid() bool {
	switch k {
	case ConditionJoinGroup, ConditionJoinChannel, ConditionFollowBot, ConditionSpeechCount:
		return true
	}
	return false
}

// Condition is a single eligibility rule attached to an activity.
//
// Target holds a chat/channel id or @username, a bot id, or comma-joined chat ids
// for speech count. Link holds an invite link, or the message threshold for speech count.
type Condition struct {
	Kind       ConditionKind `json:"type"`
	Target     string        `json:"target_id"`
	Link       string        `json:"target_id_link"`
	ButtonName string        `json:"button_name"`
	Name       string        `json:"name"`
}

// TargetChats parses Target as a comma-joined list of chat ids.
func (c Condition) TargetChats() ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(c.Target, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: chat id %q", ErrInvalidCondition, s)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no target chats", ErrInvalidCondition)
	}
	return ids, nil
}

// Threshold parses Link as the required message count.
func (c Condition) Threshold() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(c.Link))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: threshold %q", ErrInvalidCondition, c.Link)
	}
	return n, nil
}

// ConditionState is the persisted aggregate condition result of a participant.
type ConditionState int

// Condition states. Pending means the participant has never been evaluated.
const (
	ConditionPending ConditionState = iota
	ConditionFailed
	ConditionPassed
)

// ActivityUser is a participation record.
type ActivityUser struct {
	ID             int64
	ActivityID     int64
	UserID         int64
	UserName       string
	FullName       string
	ConditionState ConditionState
	Winner         bool
	WinningContent string
	PrizeLevel     int
	CreatedAt      time.Time
}

// DisplayName returns @username when known, the full name otherwise.
func (u ActivityUser) DisplayName() string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	if u.FullName != "" {
		return u.FullName
	}
	return strconv.FormatInt(u.UserID, 10)
}

// Group is a chat registered by an owner, addressable by tag.
type Group struct {
	ID       int64
	OwnerID  int64
	ChatID   int64
	Title    string
	Tags     []string
	IsActive bool
}

// ChatMessage records that a user spoke in a chat.
type ChatMessage struct {
	ChatID    int64
	UserID    int64
	CreatedAt time.Time
}
