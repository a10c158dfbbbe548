package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/metrics"
	"github.com/cuongbtq/transfer-market/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the consuming side of the RabbitMQ client
type Broker interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// EventStore records events in the activity feed
type EventStore interface {
	RecordEvent(ctx context.Context, e *events.Event) (bool, error)
}

// Reconciler checks a user's balance against the ledger
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) (*ledger.Reconciliation, error)
}

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Broker       Broker
	Store        EventStore
	Reconciler   Reconciler
	Metrics      *metrics.Marketplace
	Concurrency  int
	QueueSize    int
	EventTimeout time.Duration
	ConsumerTag  string
}

// Worker consumes marketplace events: it records each one once in the
// activity feed and reconciles balances touched by money-moving events.
type Worker struct {
	logger       *slog.Logger
	broker       Broker
	store        EventStore
	reconciler   Reconciler
	metrics      *metrics.Marketplace
	concurrency  int
	eventTimeout time.Duration
	workerID     string
	consumerTag  string
	eventsChan   chan *domain.EventMessage
	wg           sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])

	consumerTag := cfg.ConsumerTag
	if consumerTag == "" {
		consumerTag = workerID
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:       cfg.Logger.With(slog.String("worker_id", workerID)),
		broker:       cfg.Broker,
		store:        cfg.Store,
		reconciler:   cfg.Reconciler,
		metrics:      cfg.Metrics,
		concurrency:  concurrency,
		eventTimeout: cfg.EventTimeout,
		workerID:     workerID,
		consumerTag:  consumerTag,
		eventsChan:   make(chan *domain.EventMessage, max(cfg.QueueSize, 1)),
		stopChan:     make(chan struct{}),
	}
}

// Start consumes until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("event_timeout", w.eventTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	w.logger.Info("Worker dispatcher exited")
	return nil
}

// Stop waits for in-flight events to settle
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
