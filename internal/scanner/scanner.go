// Package scanner wakes on a fixed interval, walks the enabled schedules, and
// dispatches compilation runs for every schedule whose trigger instant has
// passed. Trigger bookkeeping lives in the store so a restart never loses or
// duplicates an occurrence.
package scanner

import (
	"context"
	"time"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/coordinator"
	"clipforge/internal/logging"
	"clipforge/internal/recurrence"
	"clipforge/internal/store"
)

// Dispatcher starts one compilation run for a recipe. The coordinator
// satisfies it.
type Dispatcher interface {
	Run(ctx context.Context, recipeID int64) (*coordinator.Result, error)
}

// Summary reports one scan pass.
type Summary struct {
	Examined  int
	Triggered int
}

// Scanner is the due-task loop.
type Scanner struct {
	store      *store.Store
	dispatcher Dispatcher
	logger     *slog.Logger
	interval   time.Duration
	now        func() time.Time
}

// Option adjusts scanner construction.
type Option func(*Scanner)

// WithClock overrides the scanner's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New builds a scanner over the store and run dispatcher.
func New(st *store.Store, dispatcher Dispatcher, cfg *config.Config, logger *slog.Logger, opts ...Option) *Scanner {
	interval := time.Duration(cfg.Scheduler.ScanInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s := &Scanner{
		store:      st,
		dispatcher: dispatcher,
		logger:     logging.NewComponentLogger(logger, "scanner"),
		interval:   interval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loops scan passes until the context is cancelled. The first pass runs
// immediately.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		summary, err := s.ScanOnce(ctx)
		if err != nil {
			s.logger.Error("scan pass failed", logging.Error(err))
		} else if summary.Triggered > 0 {
			s.logger.Info("scan pass complete",
				logging.Int("examined", summary.Examined),
				logging.Int("triggered", summary.Triggered))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScanOnce walks every enabled schedule once. A schedule whose next trigger
// has not been computed yet gets one persisted without firing; due schedules
// fire at most once even with concurrent scanners. Failures are isolated per
// schedule so one broken recipe cannot starve the rest.
func (s *Scanner) ScanOnce(ctx context.Context) (Summary, error) {
	schedules, err := s.store.EnabledSchedules(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Examined: len(schedules)}
	now := s.now().UTC()
	for _, sched := range schedules {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		fired, err := s.examine(ctx, sched, now)
		if err != nil {
			s.logger.Warn("schedule pass failed",
				logging.Int64(logging.FieldScheduleID, sched.ID),
				logging.Error(err))
			continue
		}
		if fired {
			summary.Triggered++
		}
	}
	return summary, nil
}

func (s *Scanner) examine(ctx context.Context, sched *store.Schedule, now time.Time) (bool, error) {
	if sched.NextTriggerAt == nil {
		next := recurrence.Next(sched, now)
		if next == nil {
			// A one-shot whose instant already passed has nothing left to do.
			return false, s.store.SetScheduleEnabled(ctx, sched.ID, false)
		}
		sched.NextTriggerAt = next
		return false, s.store.UpdateSchedule(ctx, sched)
	}
	if sched.NextTriggerAt.After(now) {
		return false, nil
	}

	// Recompute from now so a scanner that was down across several
	// occurrences fires once, not once per missed slot.
	next := recurrence.Next(sched, now)
	claimed, err := s.store.ClaimScheduleTrigger(ctx, sched.ID, *sched.NextTriggerAt, next, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		// Another scanner took this occurrence.
		return false, nil
	}
	if sched.Type == store.ScheduleOnce {
		if err := s.store.SetScheduleEnabled(ctx, sched.ID, false); err != nil {
			return false, err
		}
	}

	result, err := s.dispatcher.Run(ctx, sched.RecipeID)
	if err != nil {
		return true, err
	}
	s.logger.Info("schedule fired",
		logging.Int64(logging.FieldScheduleID, sched.ID),
		logging.Int64(logging.FieldRecipeID, sched.RecipeID),
		logging.String("result", string(result.Status)))
	return true, nil
}
