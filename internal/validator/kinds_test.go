package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lottery_bot/internal/model"
)

type memberCall struct {
	chatID   int64
	username string
	userID   int64
}

type mockMembers struct {
	calls []memberCall
	ok    bool
	err   error
}

func (m *mockMembers) IsMember(_ context.Context, chatID int64, username string, userID int64) (bool, error) {
	m.calls = append(m.calls, memberCall{chatID, username, userID})
	return m.ok, m.err
}

func TestMembershipTargets(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		want    memberCall
		wantErr bool
	}{
		{name: "numeric chat", target: "-1001234", want: memberCall{chatID: -1001234, userID: 5}},
		{name: "username", target: " @channel ", want: memberCall{username: "@channel", userID: 5}},
		{name: "garbage", target: "https://t.me/x", wantErr: true},
		{name: "bare at", target: "@", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockMembers{ok: true}
			ok, err := NewMembership(m).Validate(context.Background(), 5, model.Condition{Target: tt.target})
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrInvalidCondition)
				assert.False(t, ok)
				assert.Empty(t, m.calls)
				return
			}
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []memberCall{tt.want}, m.calls)
		})
	}
}

type mockFollowers map[[2]int64]bool

func (m mockFollowers) IsBotFollower(_ context.Context, botID, userID int64) (bool, error) {
	return m[[2]int64{botID, userID}], nil
}

func TestFollowBot(t *testing.T) {
	store := mockFollowers{{42, 5}: true, {99, 6}: true}
	v := NewFollowBot(store, 42)

	tests := []struct {
		name    string
		user    int64
		target  string
		want    bool
		wantErr bool
	}{
		{name: "default bot followed", user: 5, want: true},
		{name: "explicit bot followed", user: 6, target: "99", want: true},
		{name: "explicit bot not followed", user: 5, target: "99", want: false},
		{name: "bad target", user: 5, target: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(context.Background(), tt.user, model.Condition{Target: tt.target})
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrInvalidCondition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type mockCounter struct {
	counts map[int64]int
	err    error
	from   time.Time
	to     time.Time
}

func (m *mockCounter) CountUserMessages(_ context.Context, _ int64, chatID int64, from, to time.Time) (int, error) {
	m.from, m.to = from, to
	return m.counts[chatID], m.err
}

func TestSpeechCount(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &model.Activity{StartTime: start, EndTime: start.Add(time.Hour)}

	tests := []struct {
		name    string
		counts  map[int64]int
		cond    model.Condition
		want    bool
		wantErr error
	}{
		{
			name:   "every chat meets threshold",
			counts: map[int64]int{-1001: 5, -1002: 7},
			cond:   model.Condition{Target: "-1001,-1002", Link: "5"},
			want:   true,
		},
		{
			name:   "one chat short",
			counts: map[int64]int{-1001: 5, -1002: 4},
			cond:   model.Condition{Target: "-1001,-1002", Link: "5"},
			want:   false,
		},
		{
			name:   "zero threshold",
			counts: map[int64]int{},
			cond:   model.Condition{Target: "-1001", Link: "0"},
			want:   true,
		},
		{
			name:    "bad threshold",
			cond:    model.Condition{Target: "-1001", Link: "many"},
			wantErr: model.ErrInvalidCondition,
		},
		{
			name:    "no chats",
			cond:    model.Condition{Target: " , ", Link: "1"},
			wantErr: model.ErrInvalidCondition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := &mockCounter{counts: tt.counts}
			got, err := NewSpeechCount(counter).Validate(context.Background(), 5, a, tt.cond)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if len(tt.counts) > 0 {
				assert.Equal(t, a.StartTime, counter.from)
				assert.Equal(t, a.EndTime, counter.to)
			}
		})
	}
}

func TestSpeechCountCounts(t *testing.T) {
	counter := &mockCounter{counts: map[int64]int{-1001: 2, -1002: 9}}
	counts, threshold, err := NewSpeechCount(counter).Counts(context.Background(), 5, &model.Activity{},
		model.Condition{Target: "-1001,-1002", Link: "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, threshold)
	assert.Equal(t, []ChatCount{{ChatID: -1001, Count: 2}, {ChatID: -1002, Count: 9}}, counts)
}

func TestSpeechCountStoreError(t *testing.T) {
	boom := errors.New("db closed")
	_, err := NewSpeechCount(&mockCounter{err: boom}).Validate(context.Background(), 5, &model.Activity{},
		model.Condition{Target: "-1001", Link: "1"})
	assert.ErrorIs(t, err, boom)
}
