package main

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lottery_bot/internal/model"
)

func TestDecodeActivity(t *testing.T) {
	input := `{
		"owner_id": 7,
		"name": " Spring draw ",
		"start_time": "2026-03-01T12:00:00+02:00",
		"end_time": "2026-03-02T12:00:00Z",
		"scope": "crypto",
		"prizes": [{"prize_name": "Gold", "prize_content": "100 USDT", "prize_count": 1}],
		"conditions": [{"type": "follow_bot"}]
	}`

	got, err := decodeActivity(strings.NewReader(input))
	if err != nil {
		t.Fatalf("decodeActivity: %v", err)
	}

	want := &model.Activity{
		OwnerID:    7,
		Name:       "Spring draw",
		StartTime:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		Scope:      "crypto",
		Status:     model.StatusPending,
		Prizes:     []model.PrizeTier{{Name: "Gold", Content: "100 USDT", Count: 1}},
		Conditions: []model.Condition{{Kind: model.ConditionFollowBot}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decodeActivity() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeActivityRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "malformed", input: `{"name":`},
		{name: "unknown field", input: `{"name": "x", "colour": "red"}`},
		{name: "end before start", input: `{"name": "x", "scope": "t", "start_time": "2026-03-02T00:00:00Z", "end_time": "2026-03-01T00:00:00Z"}`},
		{name: "unknown condition", input: `{"name": "x", "scope": "t", "start_time": "2026-03-01T00:00:00Z", "end_time": "2026-03-02T00:00:00Z", "conditions": [{"type": "dance"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeActivity(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDescribeActivity(t *testing.T) {
	a := &model.Activity{
		ID:        3,
		OwnerID:   7,
		Name:      "Draw",
		StartTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Scope:     "-1001234",
		Status:    model.StatusEnded,
		Checked:   true,
		Prizes:    []model.PrizeTier{{Name: "Gold", Content: "100", Count: 1}},
		Users: []model.ActivityUser{
			{UserID: 1, UserName: "alice", ConditionState: model.ConditionPassed, Winner: true, WinningContent: "Gold 100", PrizeLevel: 1},
			{UserID: 2, ConditionState: model.ConditionFailed},
		},
	}

	want := `#3 Draw [ended]
owner:   7
scope:   -1001234
window:  2026-03-01T00:00:00Z .. 2026-03-02T00:00:00Z
checked: true
prize 1: Gold 100 x1
participants: 2 (eligible 1)
winners:
  1. @alice - Gold 100
`
	if diff := cmp.Diff(want, describeActivity(a)); diff != "" {
		t.Errorf("describeActivity() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID(" 12 "); err != nil || id != 12 {
		t.Errorf("parseID(12) = %d, %v", id, err)
	}
	for _, s := range []string{"", "0", "-3", "abc"} {
		if _, err := parseID(s); err == nil {
			t.Errorf("parseID(%q) expected error", s)
		}
	}
}
