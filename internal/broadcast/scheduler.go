package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-inbox/internal/logger"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// Scheduler polls for due broadcasts on a fixed interval.
type Scheduler struct {
	scheduler gocron.Scheduler
	service   *Service
	interval  time.Duration
}

func NewScheduler(service *Service, interval time.Duration, loc *time.Location) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("broadcast interval must be positive")
	}
	if loc == nil {
		loc = time.UTC
	}
	s, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithLogger(logger.Gocron{}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, service: service, interval: interval}, nil
}

// Run starts polling and blocks until ctx is done, then waits for a running
// pass to complete.
func (s *Scheduler) Run(ctx context.Context) error {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			n, err := s.service.SendDue(ctx)
			if err != nil {
				log.Error().Err(err).Msg("broadcast poll failed")
				return
			}
			if n > 0 {
				log.Info().Int("broadcasts", n).Msg("scheduled broadcasts processed")
			}
		}),
		gocron.WithName("send-due-broadcasts"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule broadcast job: %w", err)
	}

	s.scheduler.Start()
	log.Info().Str("job", job.Name()).Dur("interval", s.interval).Msg("broadcast scheduler started")

	<-ctx.Done()

	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	log.Info().Msg("broadcast scheduler stopped")
	return nil
}
