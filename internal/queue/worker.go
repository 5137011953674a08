package queue

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/models"
)

// WorkerPool manages a pool of workers that pull raw messages from the queue
// and hand them to the message processor.
type WorkerPool struct {
	manager      *Manager
	processor    interfaces.MessageProcessor
	logger       arbor.ILogger
	pollInterval time.Duration
	concurrency  int
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(manager *Manager, processor interfaces.MessageProcessor, pollInterval time.Duration, concurrency int, logger arbor.ILogger) *WorkerPool {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		manager:      manager,
		processor:    processor,
		logger:       logger,
		pollInterval: pollInterval,
		concurrency:  concurrency,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}

	return nil
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

// worker is the main worker loop that processes messages
func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to reduce database lock contention
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil && err != ErrNoMessage {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

// processMessage receives and processes a single message. Ack discipline:
// delete on success; delete on malformed input since redelivering the same
// bytes can never succeed; leave retryable failures for the visibility
// timeout to redeliver.
func (wp *WorkerPool) processMessage(workerID int) error {
	msg, err := wp.manager.Receive(wp.ctx)
	if err != nil {
		return err
	}

	wp.logger.Debug().
		Str("message_id", msg.ID).
		Int("receive_count", msg.ReceiveCount).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	jobID, procErr := wp.processor.Process(wp.ctx, msg.Body)
	duration := time.Since(startTime)

	if procErr != nil {
		if models.IsMalformedInput(procErr) {
			wp.logger.Error().
				Err(procErr).
				Str("message_id", msg.ID).
				Int("worker_id", workerID).
				Msg("Dropping malformed message")
			if delErr := wp.manager.Delete(wp.ctx, msg.ID); delErr != nil {
				wp.logger.Warn().Err(delErr).Msg("Failed to delete malformed message")
			}
			return procErr
		}

		wp.logger.Error().
			Err(procErr).
			Str("message_id", msg.ID).
			Str("job_id", jobID).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Message processing failed, leaving for redelivery")
		return procErr
	}

	wp.logger.Info().
		Str("message_id", msg.ID).
		Str("job_id", jobID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Message processed successfully")

	if err := wp.manager.Delete(wp.ctx, msg.ID); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("Failed to delete message after successful processing")
		return err
	}

	return nil
}
