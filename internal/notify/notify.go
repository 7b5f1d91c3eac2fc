// Package notify broadcasts activity notifications to the chats in an activity's scope.
package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lottery_bot/internal/model"
)

const (
	defaultConcurrency = 5
	defaultTimeout     = 10 * time.Second
)

// ScopeResolver resolves a tag scope to the owner's tagged chats.
type ScopeResolver interface {
	ResolveScopeTargets(ctx context.Context, tag string, ownerID int64) ([]int64, error)
}

// SendFunc delivers one notification about a to chatID.
type SendFunc func(ctx context.Context, a *model.Activity, chatID int64) error

// Report summarizes a broadcast.
type Report struct {
	Targets int
	Failed  int
}

// Fanout resolves scopes and sends with bounded concurrency.
// Sends are best-effort: failures are logged and never retried.
type Fanout struct {
	resolver    ScopeResolver
	log         zerolog.Logger
	concurrency int
	timeout     time.Duration
}

// NewFanout creates a Fanout with default concurrency and per-send timeout.
func NewFanout(resolver ScopeResolver, log zerolog.Logger) *Fanout {
	return &Fanout{
		resolver:    resolver,
		log:         log.With().Str("component", "notify").Logger(),
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
	}
}

// SetConcurrency sets the number of concurrent sends per broadcast.
func (f *Fanout) SetConcurrency(n int) {
	if n > 0 {
		f.concurrency = n
	}
}

// SetTimeout sets the deadline applied to each send.
func (f *Fanout) SetTimeout(d time.Duration) {
	f.timeout = d
}

// Targets returns the chat ids a's scope addresses.
func (f *Fanout) Targets(ctx context.Context, a *model.Activity) ([]int64, error) {
	if id, ok := a.Scope.ChatID(); ok {
		return []int64{id}, nil
	}
	ids, err := f.resolver.ResolveScopeTargets(ctx, a.Scope.Tag(), a.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("resolve scope %q: %w", a.Scope, err)
	}
	return ids, nil
}

// Notify sends to every target of a's scope. The error is non-nil only when
// the scope could not be resolved; per-target failures are counted in the report.
func (f *Fanout) Notify(ctx context.Context, a *model.Activity, send SendFunc) (Report, error) {
	targets, err := f.Targets(ctx, a)
	if err != nil {
		return Report{}, err
	}
	if len(targets) == 0 {
		f.log.Info().Int64("activity_id", a.ID).Str("scope", string(a.Scope)).Msg("scope has no targets")
		return Report{}, nil
	}

	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)
	for _, chatID := range targets {
		g.Go(func() error {
			if err := f.sendOne(ctx, a, chatID, send); err != nil {
				failed.Add(1)
				f.log.Error().Err(err).Int64("activity_id", a.ID).Int64("chat_id", chatID).Msg("notification failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Targets: len(targets), Failed: int(failed.Load())}
	f.log.Info().Int64("activity_id", a.ID).
		Int("targets", report.Targets).Int("failed", report.Failed).
		Msg("notification sent")
	return report, nil
}

func (f *Fanout) sendOne(ctx context.Context, a *model.Activity, chatID int64, send SendFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panic: %v", r)
		}
	}()
	sctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return send(sctx, a, chatID)
}
