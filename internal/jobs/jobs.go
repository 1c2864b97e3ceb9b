package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Func is a unit of scheduled work.
type Func func(ctx context.Context) error

// Scheduler runs the daily batch jobs. A run that is still going when its
// next tick fires is skipped rather than overlapped.
type Scheduler struct {
	cron    *cron.Cron
	log     *logrus.Logger
	timeout time.Duration
}

// NewScheduler creates a scheduler evaluating cron expressions in loc.
// timeout bounds a single run; zero means no limit.
func NewScheduler(loc *time.Location, log *logrus.Logger, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cronLog := cron.PrintfLogger(log.WithField("component", "cron"))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	return &Scheduler{cron: c, log: log, timeout: timeout}
}

// Register schedules fn under a standard five-field cron spec.
func (s *Scheduler) Register(spec, name string, fn Func) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.log.Infof("Job %s scheduled at %q", name, spec)
	return nil
}

func (s *Scheduler) run(name string, fn Func) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	started := time.Now()
	log := s.log.WithField("job", name)
	if err := fn(ctx); err != nil {
		log.Errorf("Job failed after %s: %v", time.Since(started), err)
		return
	}
	log.Infof("Job finished in %s", time.Since(started))
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("Timed out waiting for running jobs")
	}
}
