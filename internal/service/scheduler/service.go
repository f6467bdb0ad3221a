// Package scheduler runs the periodic reconciliation of user totals and list
// consistency.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/levellist/internal/config"
	prommetrics "github.com/aimd54/levellist/internal/metrics"
	"github.com/aimd54/levellist/pkg/logger"
)

// Reconciler is the engine surface the reconcile job drives.
type Reconciler interface {
	RecomputeAllUsers(ctx context.Context) (int, error)
	VerifyLists(ctx context.Context) error
}

// Result summarizes one reconcile run.
type Result struct {
	Users    int
	Duration time.Duration
}

// Service schedules the reconcile job.
type Service struct {
	config     *config.SchedulerConfig
	reconciler Reconciler
	log        *logger.Logger
	cron       *cron.Cron
	timeout    time.Duration
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, reconciler Reconciler, log *logger.Logger) *Service {
	return &Service{
		config:     cfg,
		reconciler: reconciler,
		log:        log.Component("scheduler"),
		timeout:    30 * time.Minute,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	// Overlapping runs are skipped; a full recompute can outlast a tight schedule.
	s.cron = cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err = s.cron.AddFunc(s.config.ReconcileSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", s.config.ReconcileSchedule).
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running job.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// RunOnce recomputes every user total and then verifies both lists.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()

	s.log.Info().Msg("Running reconcile job")

	users, err := s.reconciler.RecomputeAllUsers(ctx)
	if err == nil {
		err = s.reconciler.VerifyLists(ctx)
	}

	result := Result{Users: users, Duration: time.Since(start)}
	prommetrics.RecordReconcileRun(err, result.Duration)

	if err != nil {
		s.log.Error().
			Err(err).
			Int("users", users).
			Dur("duration", result.Duration).
			Msg("Reconcile job failed")
		return result, err
	}

	s.log.Info().
		Int("users", users).
		Dur("duration", result.Duration).
		Msg("Reconcile job completed successfully")

	return result, nil
}
