package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
	"github.com/ternarybob/scribo/internal/queue"
)

// Scheduler runs the periodic stale-job sweep. Records left in processing
// past the staleness threshold are re-enqueued so a worker picks them up
// again.
type Scheduler struct {
	jobs       interfaces.JobStorage
	manager    *queue.Manager
	staleAfter time.Duration
	cron       *cron.Cron
	logger     arbor.ILogger
}

// NewScheduler creates a sweep scheduler
func NewScheduler(jobs interfaces.JobStorage, manager *queue.Manager, staleAfter time.Duration, logger arbor.ILogger) *Scheduler {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}

	return &Scheduler{
		jobs:       jobs,
		manager:    manager,
		staleAfter: staleAfter,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Start begins the scheduled sweep
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		// Default: every 10 minutes
		schedule = "*/10 * * * *"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.runSweep()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Str("stale_after", s.staleAfter.String()).
		Msg("Stale job sweep scheduler started")

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Stale job sweep scheduler stopped")
}

// RunNow triggers an immediate sweep
func (s *Scheduler) RunNow() {
	s.logger.Info().Msg("Triggering immediate stale job sweep")
	go s.runSweep()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.staleAfter)

	stuck, err := s.jobs.ListStuck(ctx, cutoff)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("Stale job sweep failed")
		return
	}

	if len(stuck) == 0 {
		s.logger.Debug().Msg("Stale job sweep found nothing")
		return
	}

	requeued := 0
	for _, record := range stuck {
		if err := s.requeue(ctx, record); err != nil {
			s.logger.Warn().
				Err(err).
				Str("job_id", record.JobID).
				Msg("Failed to re-enqueue stale job")
			continue
		}
		requeued++
	}

	s.logger.Info().
		Int("stuck", len(stuck)).
		Int("requeued", requeued).
		Msg("Stale job sweep completed")
}

// requeue rebuilds the original message from the stored record and puts it
// back on the queue. The timestamp is preserved so redelivery accounting
// still counts it against the same submission.
func (s *Scheduler) requeue(ctx context.Context, record *models.JobRecord) error {
	msg := &models.JobMessage{
		JobID:     record.JobID,
		Action:    record.Action,
		Timestamp: record.Timestamp,
		Payload:   record.Payload,
	}

	body, err := msg.ToJSON()
	if err != nil {
		return err
	}

	messageID, err := s.manager.Enqueue(ctx, body)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", record.JobID).
		Str("message_id", messageID).
		Msg("Re-enqueued stale job")

	return nil
}
