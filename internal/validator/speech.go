package validator

import (
	"context"
	"fmt"
	"time"

	"lottery_bot/internal/model"
)

// MessageCounter counts a user's messages in a chat within an open interval.
type MessageCounter interface {
	CountUserMessages(ctx context.Context, userID, chatID int64, from, to time.Time) (int, error)
}

// ChatCount is a user's message count in one chat.
type ChatCount struct {
	ChatID int64
	Count  int
}

// SpeechCount validates speech-count conditions over the activity window.
type SpeechCount struct {
	counter MessageCounter
}

// NewSpeechCount creates a SpeechCount validator.
func NewSpeechCount(counter MessageCounter) *SpeechCount {
	return &SpeechCount{counter: counter}
}

// Validate passes when the user reached the threshold in every listed chat.
func (s *SpeechCount) Validate(ctx context.Context, userID int64, a *model.Activity, c model.Condition) (bool, error) {
	counts, threshold, err := s.Counts(ctx, userID, a, c)
	if err != nil {
		return false, err
	}
	for _, cc := range counts {
		if cc.Count < threshold {
			return false, nil
		}
	}
	return true, nil
}

// Counts returns the per-chat counts for the condition and its threshold.
func (s *SpeechCount) Counts(ctx context.Context, userID int64, a *model.Activity, c model.Condition) ([]ChatCount, int, error) {
	chats, err := c.TargetChats()
	if err != nil {
		return nil, 0, err
	}
	threshold, err := c.Threshold()
	if err != nil {
		return nil, 0, err
	}

	counts := make([]ChatCount, 0, len(chats))
	for _, chatID := range chats {
		n, err := s.counter.CountUserMessages(ctx, userID, chatID, a.StartTime, a.EndTime)
		if err != nil {
			return nil, 0, fmt.Errorf("count messages in %d: %w", chatID, err)
		}
		counts = append(counts, ChatCount{ChatID: chatID, Count: n})
	}
	return counts, threshold, nil
}
