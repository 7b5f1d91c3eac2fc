// Package scheduler drives activities through their lifecycle on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"lottery_bot/internal/lifecycle"
	"lottery_bot/internal/lock"
	"lottery_bot/internal/model"
	"lottery_bot/internal/notify"
	"lottery_bot/internal/prize"
	"lottery_bot/internal/validator"
)

const (
	defaultTick          = time.Minute
	defaultMisfireGrace  = 5 * time.Minute
	defaultConcurrency   = 10
	defaultCheckInterval = 10 * time.Minute
	defaultEndLockTTL    = 5 * time.Minute
)

// Store is the persistence the scheduler reads and mutates.
type Store interface {
	ListNonTerminalActivities(ctx context.Context) ([]model.Activity, error)
	GetActivity(ctx context.Context, id int64) (*model.Activity, error)
	SetStatus(ctx context.Context, id int64, status model.Status) error
	MarkChecked(ctx context.Context, id int64) error
}

// Evaluator refreshes the condition flags of every participant.
type Evaluator interface {
	EvaluateRoster(ctx context.Context, a *model.Activity) validator.RosterSummary
}

// Allocator draws winners from the eligible pool.
type Allocator interface {
	Allocate(ctx context.Context, activityID int64, tiers []model.PrizeTier, pool []model.ActivityUser) ([]prize.Assignment, error)
}

// Broadcaster sends a notification to every target of an activity's scope.
type Broadcaster interface {
	Notify(ctx context.Context, a *model.Activity, send notify.SendFunc) (notify.Report, error)
}

// Notifier renders and sends start and end announcements to one chat.
type Notifier interface {
	SendStart(ctx context.Context, a *model.Activity, chatID int64) error
	SendEnd(ctx context.Context, a *model.Activity, chatID int64) error
}

// Scheduler periodically loads non-terminal activities and applies due transitions.
type Scheduler struct {
	store    Store
	eval     Evaluator
	alloc    Allocator
	fanout   Broadcaster
	notifier Notifier
	locker   lock.Locker
	log      zerolog.Logger

	tick          time.Duration
	grace         time.Duration
	concurrency   int
	checkInterval time.Duration
	lockTTL       time.Duration
	now           func() time.Time

	running  atomic.Bool
	inFlight sync.Map
	wg       sync.WaitGroup

	checkMu  sync.Mutex
	checkLim map[int64]*rate.Limiter
}

// New creates a Scheduler with a one-minute tick and an in-memory End lock.
func New(store Store, eval Evaluator, alloc Allocator, fanout Broadcaster, notifier Notifier, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:         store,
		eval:          eval,
		alloc:         alloc,
		fanout:        fanout,
		notifier:      notifier,
		locker:        lock.NewMemory(),
		log:           log.With().Str("component", "scheduler").Logger(),
		tick:          defaultTick,
		grace:         defaultMisfireGrace,
		concurrency:   defaultConcurrency,
		checkInterval: defaultCheckInterval,
		lockTTL:       defaultEndLockTTL,
		now:           time.Now,
		checkLim:      make(map[int64]*rate.Limiter),
	}
}

// SetTickInterval overrides the default 1-minute poll interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetMisfireGrace sets how late a tick may fire before it is dropped.
func (s *Scheduler) SetMisfireGrace(d time.Duration) {
	s.grace = d
}

// SetConcurrency sets how many activities one tick processes at once.
func (s *Scheduler) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// SetCheckInterval sets the minimum spacing between two Check runs of one activity.
func (s *Scheduler) SetCheckInterval(d time.Duration) {
	s.checkInterval = d
}

// SetLocker replaces the End-handler lock and its lifetime.
func (s *Scheduler) SetLocker(l lock.Locker, ttl time.Duration) {
	s.locker = l
	s.lockTTL = ttl
}

// Run starts the scheduler loop, blocking until ctx is cancelled and the
// in-flight tick has finished. Ticks run detached from ctx cancellation.
//
// Lateness is measured against the planned slot, so a slot that arrives more
// than the misfire grace after it was due (process stall, suspended host) is
// dropped and the plan resumes at the next slot after now.
func (s *Scheduler) Run(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	s.dispatch(work)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	due := s.now().Add(s.tick)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			slot := due
			due = s.nextSlot(slot)
			if s.late(slot) {
				s.log.Warn().Time("scheduled", slot).Msg("tick missed its grace period, dropping")
				continue
			}
			s.dispatch(work)
		}
	}
}

func (s *Scheduler) late(scheduled time.Time) bool {
	return s.now().Sub(scheduled) > s.grace
}

// nextSlot returns the slot following slot on the tick grid, skipping slots
// that are already behind now.
func (s *Scheduler) nextSlot(slot time.Time) time.Time {
	next := slot.Add(s.tick)
	if now := s.now(); next.Before(now) {
		missed := now.Sub(next)/s.tick + 1
		next = next.Add(missed * s.tick)
	}
	return next
}

// dispatch starts a tick unless one is still running.
func (s *Scheduler) dispatch(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Msg("previous tick still running, skipping")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.Tick(ctx)
	}()
}

// Tick runs one poll synchronously.
func (s *Scheduler) Tick(ctx context.Context) {
	activities, err := s.store.ListNonTerminalActivities(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("list activities")
		return
	}
	now := s.now()
	s.log.Debug().Int("activities", len(activities)).Msg("tick")
	s.pruneChecks(activities)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i := range activities {
		a := &activities[i]
		g.Go(func() error {
			s.processActivity(ctx, now, a)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) processActivity(ctx context.Context, now time.Time, a *model.Activity) {
	if _, busy := s.inFlight.LoadOrStore(a.ID, struct{}{}); busy {
		s.log.Debug().Int64("activity_id", a.ID).Msg("activity already in progress")
		return
	}
	defer s.inFlight.Delete(a.ID)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Int64("activity_id", a.ID).Str("panic", fmt.Sprint(r)).Msg("activity handler panicked")
		}
	}()

	switch lifecycle.Decide(now, a) {
	case lifecycle.Start:
		s.handleStart(ctx, a)
	case lifecycle.Check:
		s.handleCheck(ctx, a)
	case lifecycle.End:
		s.handleEnd(ctx, a)
	}
}

func (s *Scheduler) handleStart(ctx context.Context, a *model.Activity) {
	if a.Checked {
		s.log.Debug().Int64("activity_id", a.ID).Msg("start already notified")
		return
	}
	if err := s.store.SetStatus(ctx, a.ID, model.StatusActive); err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("set status active")
		return
	}
	a.Status = model.StatusActive

	report, err := s.fanout.Notify(ctx, a, s.notifier.SendStart)
	if err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("start notification")
	}

	if err := s.store.MarkChecked(ctx, a.ID); err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("mark checked")
		return
	}
	s.log.Info().Int64("activity_id", a.ID).Str("name", a.Name).
		Int("targets", report.Targets).Int("failed", report.Failed).
		Msg("activity started")
}

func (s *Scheduler) handleCheck(ctx context.Context, a *model.Activity) {
	if !a.Checked {
		return
	}
	if !s.allowCheck(a.ID) {
		s.log.Debug().Int64("activity_id", a.ID).Msg("check rate limited")
		return
	}
	summary := s.eval.EvaluateRoster(ctx, a)
	s.log.Info().Int64("activity_id", a.ID).
		Int("participants", len(a.Users)).Int("passed", summary.Passed).
		Msg("activity checked")
}

func (s *Scheduler) handleEnd(ctx context.Context, a *model.Activity) {
	if !a.Checked {
		s.log.Debug().Int64("activity_id", a.ID).Msg("end skipped, start never notified")
		return
	}

	release, ok, err := s.locker.TryLock(ctx, endLockKey(a.ID), s.lockTTL)
	if err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("acquire end lock")
		return
	}
	if !ok {
		s.log.Info().Int64("activity_id", a.ID).Msg("end already in progress elsewhere")
		return
	}
	defer release()

	s.eval.EvaluateRoster(ctx, a)

	fresh, err := s.store.GetActivity(ctx, a.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("reload activity")
		return
	}
	if fresh.Status != model.StatusActive || !fresh.Checked {
		s.log.Info().Int64("activity_id", a.ID).Stringer("status", fresh.Status).Msg("activity changed before end, skipping")
		return
	}

	if hasWinners(fresh.Users) {
		s.log.Warn().Int64("activity_id", a.ID).Msg("winners already recorded, not drawing again")
	} else if _, err := s.alloc.Allocate(ctx, fresh.ID, fresh.Prizes, fresh.Eligible()); err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("allocate prizes")
	}

	if err := s.store.SetStatus(ctx, fresh.ID, model.StatusEnded); err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("set status ended")
		return
	}
	s.forgetCheck(a.ID)

	final, err := s.store.GetActivity(ctx, fresh.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("reload ended activity")
		return
	}
	report, err := s.fanout.Notify(ctx, final, s.notifier.SendEnd)
	if err != nil {
		s.log.Error().Err(err).Int64("activity_id", a.ID).Msg("end notification")
	}
	s.log.Info().Int64("activity_id", a.ID).Str("name", final.Name).
		Int("targets", report.Targets).Int("failed", report.Failed).
		Msg("activity ended")
}

func (s *Scheduler) allowCheck(id int64) bool {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()
	lim, ok := s.checkLim[id]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.checkInterval), 1)
		s.checkLim[id] = lim
	}
	return lim.Allow()
}

func (s *Scheduler) forgetCheck(id int64) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()
	delete(s.checkLim, id)
}

// pruneChecks drops limiters of activities that left the non-terminal set,
// such as ones killed while in their check window.
func (s *Scheduler) pruneChecks(activities []model.Activity) {
	live := make(map[int64]struct{}, len(activities))
	for _, a := range activities {
		live[a.ID] = struct{}{}
	}
	s.checkMu.Lock()
	defer s.checkMu.Unlock()
	for id := range s.checkLim {
		if _, ok := live[id]; !ok {
			delete(s.checkLim, id)
		}
	}
}

func endLockKey(id int64) string {
	return fmt.Sprintf("activity:end:%d", id)
}

func hasWinners(users []model.ActivityUser) bool {
	for _, u := range users {
		if u.Winner {
			return true
		}
	}
	return false
}
