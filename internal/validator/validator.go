// Package validator decides whether participants satisfy an activity's conditions.
package validator

import (
	"context"
	"fmt"

	"lottery_bot/internal/model"
)

// ConditionValidator checks a single user against a single condition.
type ConditionValidator interface {
	Validate(ctx context.Context, userID int64, c model.Condition) (bool, error)
}

// WindowValidator checks a condition that depends on the activity's time window.
type WindowValidator interface {
	Validate(ctx context.Context, userID int64, a *model.Activity, c model.Condition) (bool, error)
}

// Validators maps each condition kind to its implementation.
// A nil entry makes conditions of that kind fail.
type Validators struct {
	JoinGroup   ConditionValidator
	JoinChannel ConditionValidator
	FollowBot   ConditionValidator
	SpeechCount WindowValidator
}

func (v Validators) validate(ctx context.Context, userID int64, a *model.Activity, c model.Condition) (bool, error) {
	var cv ConditionValidator
	switch c.Kind {
	case model.ConditionJoinGroup:
		cv = v.JoinGroup
	case model.ConditionJoinChannel:
		cv = v.JoinChannel
	case model.ConditionFollowBot:
		cv = v.FollowBot
	case model.ConditionSpeechCount:
		if v.SpeechCount == nil {
			return false, fmt.Errorf("no validator for %s", c.Kind)
		}
		return v.SpeechCount.Validate(ctx, userID, a, c)
	default:
		return false, fmt.Errorf("%w: unknown kind %q", model.ErrInvalidCondition, c.Kind)
	}
	if cv == nil {
		return false, fmt.Errorf("no validator for %s", c.Kind)
	}
	return cv.Validate(ctx, userID, c)
}
