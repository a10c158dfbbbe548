package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle change
type Type string

const (
	JobCreated    Type = "job.created"
	JobPurchased  Type = "job.purchased"
	JobApproved   Type = "job.approved"
	JobRejected   Type = "job.rejected"
	JobCancelled  Type = "job.cancelled"
	JobIBANShared Type = "job.iban_shared"
	JobCompleted  Type = "job.completed"
	JobWithdrawn  Type = "job.withdrawn"

	TopupRequested Type = "topup.requested"
	TopupApproved  Type = "topup.approved"
	TopupRejected  Type = "topup.rejected"
)

// Event is what viewers and the worker see. It carries no contact or banking data.
type Event struct {
	ID         string    `json:"event_id"`
	Type       Type      `json:"type"`
	JobID      string    `json:"job_id,omitempty"`
	TopupID    string    `json:"topup_id,omitempty"`
	Status     string    `json:"status"`
	ActorID    string    `json:"actor_id"`
	SellerID   string    `json:"seller_id,omitempty"`
	BuyerID    string    `json:"buyer_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New stamps an event id and time
func New(t Type) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
	}
}

// Encode serializes an event for the wire
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return body, nil
}

// Decode parses an event from the wire
func Decode(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return Event{}, fmt.Errorf("event is missing id or type")
	}
	return e, nil
}

// Publisher delivers events after the state change is committed. Delivery is
// best effort: a failed publish never undoes a committed transition.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes to every publisher and logs failures
type Fanout struct {
	publishers []Publisher
	logger     *slog.Logger
}

func NewFanout(logger *slog.Logger, publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers, logger: logger}
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	var firstErr error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, e); err != nil {
			f.logger.Error("Failed to publish event",
				slog.String("event_id", e.ID),
				slog.String("type", string(e.Type)),
				slog.Any("error", err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
