package validator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lottery_bot/internal/model"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 20
)

// FlagWriter persists the aggregate condition result of a participant.
type FlagWriter interface {
	SetUserConditionFlag(ctx context.Context, activityID, userID int64, passed bool) error
}

// ConditionResult is the outcome of one condition for one user.
type ConditionResult struct {
	Condition model.Condition
	Passed    bool
	Err       error
}

// Result is the outcome of evaluating every condition of an activity for one user.
type Result struct {
	Conditions []ConditionResult
	AllPassed  bool
}

// Unmet returns the conditions that did not pass, in declaration order.
func (r Result) Unmet() []model.Condition {
	var out []model.Condition
	for _, c := range r.Conditions {
		if !c.Passed {
			out = append(out, c.Condition)
		}
	}
	return out
}

// RosterSummary counts the outcomes of a whole-roster evaluation.
type RosterSummary struct {
	Evaluated int
	Passed    int
}

// Pipeline evaluates conditions and persists the aggregate flag.
// Validator errors, timeouts and panics count as failed conditions.
type Pipeline struct {
	validators  Validators
	store       FlagWriter
	log         zerolog.Logger
	timeout     time.Duration
	concurrency int
}

// NewPipeline creates a Pipeline with default timeout and roster concurrency.
func NewPipeline(v Validators, store FlagWriter, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		validators:  v,
		store:       store,
		log:         log.With().Str("component", "validator").Logger(),
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
	}
}

// SetTimeout sets the deadline applied to each condition check.
func (p *Pipeline) SetTimeout(d time.Duration) {
	p.timeout = d
}

// SetConcurrency sets how many users a roster evaluation checks at once.
func (p *Pipeline) SetConcurrency(n int) {
	if n > 0 {
		p.concurrency = n
	}
}

// Evaluate runs every condition of a for userID concurrently and overwrites
// the stored flag with the result. The returned error reports only a failed write.
func (p *Pipeline) Evaluate(ctx context.Context, userID int64, a *model.Activity) (Result, error) {
	results := make([]ConditionResult, len(a.Conditions))

	var wg sync.WaitGroup
	for i, c := range a.Conditions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.check(ctx, userID, a, c)
		}()
	}
	wg.Wait()

	res := Result{Conditions: results, AllPassed: true}
	for _, r := range results {
		if !r.Passed {
			res.AllPassed = false
			break
		}
	}

	if err := p.store.SetUserConditionFlag(ctx, a.ID, userID, res.AllPassed); err != nil {
		return res, fmt.Errorf("save condition flag: %w", err)
	}
	return res, nil
}

func (p *Pipeline) check(ctx context.Context, userID int64, a *model.Activity, c model.Condition) (r ConditionResult) {
	r.Condition = c
	defer func() {
		if rec := recover(); rec != nil {
			r.Passed = false
			r.Err = fmt.Errorf("validator panic: %v", rec)
		}
		if r.Err != nil {
			p.log.Warn().Err(r.Err).
				Int64("activity_id", a.ID).Int64("user_id", userID).Str("kind", string(c.Kind)).
				Msg("condition check failed")
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ok, err := p.validators.validate(cctx, userID, a, c)
	r.Passed = ok && err == nil
	r.Err = err
	return r
}

// EvaluateRoster re-evaluates every participant of a with bounded concurrency.
// Per-user failures are logged and never abort the roster.
func (p *Pipeline) EvaluateRoster(ctx context.Context, a *model.Activity) RosterSummary {
	var evaluated, passed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for _, u := range a.Users {
		g.Go(func() error {
			res, err := p.Evaluate(ctx, u.UserID, a)
			if err != nil {
				p.log.Error().Err(err).
					Int64("activity_id", a.ID).Int64("user_id", u.UserID).
					Msg("failed to evaluate participant")
				return nil
			}
			evaluated.Add(1)
			if res.AllPassed {
				passed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := RosterSummary{Evaluated: int(evaluated.Load()), Passed: int(passed.Load())}
	p.log.Debug().Int64("activity_id", a.ID).
		Int("participants", len(a.Users)).Int("evaluated", summary.Evaluated).Int("passed", summary.Passed).
		Msg("roster evaluated")
	return summary
}
