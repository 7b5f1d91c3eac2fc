// Package lifecycle decides which transition an activity is due for.
package lifecycle

import (
	"time"

	"lottery_bot/internal/model"
)

// CheckWindow is both the minimum activity length for a final recheck and the
// distance from the end time at which the recheck window opens.
const CheckWindow = 30 * time.Minute

// Transition is the action a scheduler tick should take for an activity.
type Transition int

// Transitions, at most one per activity per tick.
const (
	NoOp Transition = iota
	Start
	Check
	End
)

func (t Transition) String() string {
	switch t {
	case Start:
		return "start"
	case Check:
		return "check"
	case End:
		return "end"
	default:
		return "noop"
	}
}

// Decide returns the transition that applies to a at now.
// Rules are evaluated in order start, end, check; only one fires.
func Decide(now time.Time, a *model.Activity) Transition {
	switch a.Status {
	case model.StatusPending:
		if !now.Before(a.StartTime) {
			return Start
		}
	case model.StatusActive:
		if !now.Before(a.EndTime) {
			return End
		}
		if a.Duration() >= CheckWindow && a.EndTime.Sub(now) <= CheckWindow {
			return Check
		}
	}
	return NoOp
}
