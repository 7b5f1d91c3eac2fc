// Package prize draws winners for an activity's prize tiers.
package prize

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"lottery_bot/internal/model"
	"lottery_bot/internal/random"
)

// Writer persists a single prize assignment.
type Writer interface {
	SetUserPrize(ctx context.Context, rowID int64, content string, level int) error
}

// Assignment is one participant awarded one tier.
type Assignment struct {
	User    model.ActivityUser
	Level   int
	Content string
}

// Allocator samples winners tier by tier without replacement.
type Allocator struct {
	store Writer
	intn  func(int) (int, error)
	log   zerolog.Logger
}

// NewAllocator creates an Allocator backed by a crypto-uniform source.
func NewAllocator(store Writer, log zerolog.Logger) *Allocator {
	return &Allocator{
		store: store,
		intn:  random.Intn,
		log:   log.With().Str("component", "prize").Logger(),
	}
}

// NewAllocatorWithSource creates an Allocator with a custom random source (for testing).
func NewAllocatorWithSource(store Writer, log zerolog.Logger, intn func(int) (int, error)) *Allocator {
	a := NewAllocator(store, log)
	a.intn = intn
	return a
}

// Allocate assigns tiers in order to participants drawn from pool.
// A participant wins at most once. Tiers beyond the exhausted pool award nobody.
// Every drawn assignment is returned; persistence failures are joined into the error.
func (a *Allocator) Allocate(ctx context.Context, activityID int64, tiers []model.PrizeTier, pool []model.ActivityUser) ([]Assignment, error) {
	if len(tiers) == 0 || len(pool) == 0 {
		a.log.Info().Int64("activity_id", activityID).
			Int("tiers", len(tiers)).Int("pool", len(pool)).
			Msg("nothing to allocate")
		return nil, nil
	}

	remaining := make([]model.ActivityUser, len(pool))
	copy(remaining, pool)

	var assignments []Assignment
	var errs []error
	for i, tier := range tiers {
		if len(remaining) == 0 {
			break
		}
		if tier.Count <= 0 {
			continue
		}
		drawn, err := random.Sample(remaining, tier.Count, a.intn)
		if err != nil {
			return assignments, fmt.Errorf("draw tier %d: %w", i+1, err)
		}

		level := i + 1
		content := tier.WinningContent()
		for _, u := range drawn {
			assignments = append(assignments, Assignment{User: u, Level: level, Content: content})
			if err := a.store.SetUserPrize(ctx, u.ID, content, level); err != nil {
				a.log.Error().Err(err).
					Int64("activity_id", activityID).Int64("user_id", u.UserID).Int("prize_level", level).
					Msg("failed to record prize")
				errs = append(errs, fmt.Errorf("record prize for user %d: %w", u.UserID, err))
			}
		}
		remaining = remaining[len(drawn):]
	}

	a.log.Info().Int64("activity_id", activityID).
		Int("winners", len(assignments)).Int("pool", len(pool)).
		Msg("prizes allocated")
	return assignments, errors.Join(errs...)
}
