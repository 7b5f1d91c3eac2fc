package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"lottery_bot/internal/model"
)

// activityFile is the on-disk JSON form accepted by "activity create".
type activityFile struct {
	OwnerID    int64             `json:"owner_id"`
	Name       string            `json:"name"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Scope      string            `json:"scope"`
	Prizes     []model.PrizeTier `json:"prizes"`
	Conditions []model.Condition `json:"conditions"`
}

func decodeActivity(r io.Reader) (*model.Activity, error) {
	var f activityFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode activity file: %w", err)
	}

	a := &model.Activity{
		OwnerID:    f.OwnerID,
		Name:       strings.TrimSpace(f.Name),
		StartTime:  f.StartTime.UTC(),
		EndTime:    f.EndTime.UTC(),
		Scope:      model.Scope(f.Scope),
		Status:     model.StatusPending,
		Prizes:     f.Prizes,
		Conditions: f.Conditions,
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid activity: %w", err)
	}
	return a, nil
}

func describeActivity(a *model.Activity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s [%s]\n", a.ID, a.Name, a.Status)
	fmt.Fprintf(&sb, "owner:   %d\n", a.OwnerID)
	fmt.Fprintf(&sb, "scope:   %s\n", a.Scope)
	fmt.Fprintf(&sb, "window:  %s .. %s\n", a.StartTime.Format(time.RFC3339), a.EndTime.Format(time.RFC3339))
	fmt.Fprintf(&sb, "checked: %t\n", a.Checked)

	for i, p := range a.Prizes {
		fmt.Fprintf(&sb, "prize %d: %s x%d\n", i+1, p.WinningContent(), p.Count)
	}
	for _, c := range a.Conditions {
		fmt.Fprintf(&sb, "condition: %s %s\n", c.Kind, c.Target)
	}

	var passed, winners int
	for _, u := range a.Users {
		if u.ConditionState == model.ConditionPassed {
			passed++
		}
		if u.Winner {
			winners++
		}
	}
	fmt.Fprintf(&sb, "participants: %d (eligible %d)\n", len(a.Users), passed)
	if winners > 0 {
		sb.WriteString("winners:\n")
		for _, u := range a.Users {
			if u.Winner {
				fmt.Fprintf(&sb, "  %d. %s - %s\n", u.PrizeLevel, u.DisplayName(), u.WinningContent)
			}
		}
	}
	return sb.String()
}
