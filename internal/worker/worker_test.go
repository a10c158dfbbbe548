package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	recorded map[string]events.Event
	err      error
}

func (f *fakeStore) RecordEvent(_ context.Context, e *events.Event) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.recorded[e.ID]; ok {
		return false, nil
	}
	f.recorded[e.ID] = *e
	return true, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorded)
}

type fakeReconciler struct {
	mu       sync.Mutex
	users    []string
	err      error
	balanced bool
}

func (f *fakeReconciler) Reconcile(_ context.Context, userID string) (*ledger.Reconciliation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	if f.err != nil {
		return nil, f.err
	}
	return &ledger.Reconciliation{UserID: userID, Balanced: f.balanced, Expected: decimal.Zero, Actual: decimal.Zero}, nil
}

// fakeAck records settlements by delivery tag
type fakeAck struct {
	mu    sync.Mutex
	acked map[uint64]bool
	nacks map[uint64]bool // tag -> requeue
}

func newFakeAck() *fakeAck {
	return &fakeAck{acked: map[uint64]bool{}, nacks: map[uint64]bool{}}
}

func (f *fakeAck) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked[tag] = true
	return nil
}

func (f *fakeAck) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks[tag] = requeue
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAck) settled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked) + len(f.nacks)
}

type fakeBroker struct {
	deliveries chan amqp.Delivery
	err        error
}

func (f *fakeBroker) Consume(string) (<-chan amqp.Delivery, error) {
	return f.deliveries, f.err
}

func newTestWorker(store EventStore, rec Reconciler, broker Broker) *Worker {
	return NewWorker(&Config{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Broker:       broker,
		Store:        store,
		Reconciler:   rec,
		Concurrency:  3,
		QueueSize:    8,
		EventTimeout: time.Second,
	})
}

func approvedEvent(userID string) events.Event {
	e := events.New(events.JobApproved)
	e.JobID = "8a4c9b2e-7f15-4d0c-a2f7-3e1f5c6d7b80"
	e.Status = "approved"
	e.UserID = userID
	e.Amount = "150.00"
	return e
}

func TestProcessEvent(t *testing.T) {
	tests := []struct {
		name          string
		event         events.Event
		reconcileErr  error
		storeErr      error
		wantErr       bool
		wantRetryable bool
		wantRecorded  int
		wantReconcile []string
	}{
		{
			name:         "non money event is only recorded",
			event:        events.New(events.JobPurchased),
			wantRecorded: 1,
		},
		{
			name:          "approval reconciles the buyer",
			event:         approvedEvent("buyer-1"),
			wantRecorded:  1,
			wantReconcile: []string{"buyer-1"},
		},
		{
			name:          "transient reconcile failure is retried and not recorded",
			event:         approvedEvent("buyer-1"),
			reconcileErr:  apperr.Transient(errors.New("db down"), "failed"),
			wantErr:       true,
			wantRetryable: true,
			wantReconcile: []string{"buyer-1"},
		},
		{
			name:          "unknown user is logged and recorded",
			event:         approvedEvent("ghost"),
			reconcileErr:  apperr.NotFound("no balance"),
			wantRecorded:  1,
			wantReconcile: []string{"ghost"},
		},
		{
			name:          "store failure is retryable",
			event:         events.New(events.TopupRequested),
			storeErr:      errors.New("connection reset"),
			wantErr:       true,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{recorded: map[string]events.Event{}, err: tt.storeErr}
			rec := &fakeReconciler{err: tt.reconcileErr, balanced: true}
			w := newTestWorker(store, rec, nil)

			err := w.processEvent(context.Background(), &domain.EventMessage{Event: tt.event})
			if tt.wantErr {
				require.Error(t, err)
				var retryable *domain.RetryableError
				assert.Equal(t, tt.wantRetryable, errors.As(err, &retryable))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRecorded, store.count())
			assert.Equal(t, tt.wantReconcile, rec.users)
		})
	}
}

func TestProcessEvent_DuplicateIsAcknowledged(t *testing.T) {
	store := &fakeStore{recorded: map[string]events.Event{}}
	w := newTestWorker(store, &fakeReconciler{balanced: true}, nil)

	msg := &domain.EventMessage{Event: events.New(events.JobCompleted)}
	require.NoError(t, w.processEvent(context.Background(), msg))
	require.NoError(t, w.processEvent(context.Background(), msg))
	assert.Equal(t, 1, store.count())
}

func TestShouldRequeue(t *testing.T) {
	retryable := domain.NewRetryableError(errors.New("timeout"))

	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        bool
	}{
		{name: "retryable first delivery", err: retryable, want: true},
		{name: "retryable redelivery goes to dead letter", err: retryable, redelivered: true, want: false},
		{name: "invalid event", err: fmt.Errorf("%w: bad json", domain.ErrInvalidEvent), want: false},
		{name: "unknown error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err, tt.redelivered))
		})
	}
}

func TestWorker_ConsumesAndSettles(t *testing.T) {
	store := &fakeStore{recorded: map[string]events.Event{}}
	broker := &fakeBroker{deliveries: make(chan amqp.Delivery, 16)}
	ack := newFakeAck()
	w := newTestWorker(store, &fakeReconciler{balanced: true}, broker)

	for i := 0; i < 5; i++ {
		body, err := events.Encode(approvedEvent(fmt.Sprintf("buyer-%d", i)))
		require.NoError(t, err)
		broker.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: uint64(i + 1), Body: body, RoutingKey: "job.approved"}
	}
	broker.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 99, Body: []byte("{not json"), RoutingKey: "job.approved"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return ack.settled() == 6 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	w.Stop()

	assert.Equal(t, 5, store.count())
	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Len(t, ack.acked, 5)
	requeue, nacked := ack.nacks[99]
	assert.True(t, nacked)
	assert.False(t, requeue)
}

func TestWorker_StartFailsWhenConsumeFails(t *testing.T) {
	broker := &fakeBroker{err: errors.New("not connected")}
	w := newTestWorker(&fakeStore{recorded: map[string]events.Event{}}, &fakeReconciler{}, broker)

	assert.Error(t, w.Start(context.Background()))
}
