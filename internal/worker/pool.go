package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/transfer-market/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool", slog.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started", slog.String("worker_name", workerName))

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed", slog.String("worker_name", workerName))
			return

		case msg, ok := <-w.eventsChan:
			if !ok {
				w.logger.Debug("Worker goroutine stopping - eventsChan closed", slog.String("worker_name", workerName))
				return
			}
			// in-flight events finish even after shutdown starts
			w.settle(msg, w.processEvent(context.WithoutCancel(ctx), msg))
		}
	}
}

// settle ACKs or NACKs the delivery based on the processing result
func (w *Worker) settle(msg *domain.EventMessage, err error) {
	eventID := msg.Event.ID

	if err == nil {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("event_id", eventID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	requeue := shouldRequeue(err, msg.Redelivered)
	w.logger.Error("Event processing failed",
		slog.String("event_id", eventID),
		slog.String("type", string(msg.Event.Type)),
		slog.Bool("requeue", requeue),
		slog.String("error", err.Error()),
	)

	if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("event_id", eventID),
			slog.String("error", nackErr.Error()),
		)
	}
}

// shouldRequeue requeues transient failures once; a second failure goes to
// the dead letter exchange instead of looping.
func shouldRequeue(err error, redelivered bool) bool {
	if errors.Is(err, domain.ErrInvalidEvent) {
		return false
	}

	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return !redelivered
	}

	return false
}
