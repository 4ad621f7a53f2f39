package ical

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs SyncAllFeeds on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	logger *zerolog.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(engine *Engine, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), engine: engine, logger: logger}
}

// Start registers the sync job and starts the cron loop.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		results, err := s.engine.SyncAllFeeds(context.Background(), nil)
		if err != nil {
			s.logger.Error().Err(err).Msg("scheduled feed sync failed")
			return
		}
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		s.logger.Info().
			Int("feeds", len(results)).
			Int("failed", failed).
			Msg("scheduled feed sync completed")
	})
	if err != nil {
		return fmt.Errorf("register sync job: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", spec).Msg("feed sync scheduler started")
	return nil
}

// Stop halts the cron loop; running jobs finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
