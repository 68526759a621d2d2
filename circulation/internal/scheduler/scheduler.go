package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bookwise/circulation-service/circulation/internal/model"
)

type SweepFunc func(ctx context.Context) (model.SweepResult, error)

type Clock interface {
	Now() time.Time
}

// Scheduler fires the billing sweep once a day at a fixed local hour.
// Overlap protection lives in the sweep itself, so a manual HTTP trigger
// and the timer can never run two sweeps at once.
type Scheduler struct {
	sweep SweepFunc
	hour  int
	clock Clock
	log   *zap.Logger
}

func New(sweep SweepFunc, hour int, clock Clock, log *zap.Logger) *Scheduler {
	return &Scheduler{
		sweep: sweep,
		hour:  hour,
		clock: clock,
		log:   log.Named("scheduler"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.clock.Now().Local()
		next := NextRun(now, s.hour)
		s.log.Info("next sweep scheduled", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		result, err := s.sweep(ctx)
		if err != nil {
			s.log.Error("sweep run", zap.Error(err))
			continue
		}
		s.log.Info("sweep run finished",
			zap.Int("loansPromoted", result.LoansPromoted),
			zap.Int("feesCreated", result.FeesCreated),
			zap.Int("remindersCreated", result.RemindersCreated))
	}
}

// NextRun returns the next occurrence of hour after now.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
