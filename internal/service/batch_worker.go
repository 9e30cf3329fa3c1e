package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/observability"
	"github.com/kursadbilgin/slab-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// BatchWorker runs batch commands consumed from the broker through the orchestrator.
type BatchWorker struct {
	consumer     queue.Consumer
	orchestrator *Orchestrator
	logger       *zap.Logger
	concurrency  int
}

func NewBatchWorker(consumer queue.Consumer, orchestrator *Orchestrator, concurrency int, logger *zap.Logger) *BatchWorker {
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchWorker{
		consumer:     consumer,
		orchestrator: orchestrator,
		logger:       logger,
		concurrency:  concurrency,
	}
}

// Start consumes the batch queue until ctx is cancelled.
func (w *BatchWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("batch worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.BatchQueue),
			)

			err := w.consumer.Consume(groupCtx, queue.BatchQueue, w.processMessage)
			if err != nil {
				w.logger.Error("batch worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("batch worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// processMessage submits the command and waits for the run. Invalid commands are
// acknowledged and dropped since redelivery cannot fix them.
func (w *BatchWorker) processMessage(ctx context.Context, msg queue.BatchMessage) error {
	payload, err := msg.Payload()
	if err != nil {
		w.logger.Warn("dropping batch command with invalid payload",
			zap.String("commandId", msg.CommandID),
			zap.Error(err),
		)
		return nil
	}

	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}

	run, err := w.orchestrator.Submit(ctx, BatchRequest{
		Title:     msg.Title,
		TargetIDs: msg.TargetIDs,
		Payload:   payload,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			w.logger.Warn("dropping rejected batch command",
				zap.String("commandId", msg.CommandID),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("failed to submit batch command: %w", err)
	}

	result, err := run.Wait(ctx)
	if err != nil {
		// The run keeps going after shutdown; the command was accepted.
		w.logger.Info("stopped waiting for batch run",
			zap.String("commandId", msg.CommandID),
			zap.String("operationId", run.ID),
		)
		return nil
	}

	w.logger.Info("batch command finished",
		zap.String("commandId", msg.CommandID),
		zap.String("operationId", result.OperationID),
		zap.String("status", result.Status.String()),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
	)
	return nil
}
