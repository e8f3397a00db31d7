package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a periodic task run by the Scheduler.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron specs in the studio's timezone.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *zerolog.Logger
	ctx     context.Context
}

func NewScheduler(loc *time.Location, logger *zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		timeout: 5 * time.Minute,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Add registers job under a standard five-field cron spec.
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
			return
		}
		s.logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	return nil
}

// Start runs the scheduler until ctx is done and waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}
