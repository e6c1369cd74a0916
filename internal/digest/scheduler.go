package digest

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives the two cron cadences: the hourly flush at minute 0 and
// the daily candidate scan every 5 minutes. The cadence lives here; the
// per-admin local-time predicate lives in the accumulator so the two stay
// separately testable.
type Scheduler struct {
	c      *cron.Cron
	logger *zap.Logger
}

func NewScheduler(acc *Accumulator, logger *zap.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))

	if _, err := c.AddFunc("0 * * * *", func() {
		acc.FlushHourly(context.Background())
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc("*/5 * * * *", func() {
		acc.FlushDaily(context.Background())
	}); err != nil {
		return nil, err
	}

	return &Scheduler{c: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("digest scheduler started")
	s.c.Start()
}

// Stop halts scheduling and returns a context that is done once any running
// flush has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("digest scheduler stopping")
	return s.c.Stop()
}
