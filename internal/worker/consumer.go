package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer starts consuming the worker queue. QoS and bindings are
// declared by the RabbitMQ client when it connects.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.broker.Consume(w.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.consumerTag),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the pool. It
// closes eventsChan on return so the pool drains and exits.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(w.eventsChan)

	w.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg, err := decodeDelivery(delivery.Body, delivery.Redelivered, &delivery)
			if err != nil {
				w.logger.Error("Dropping malformed message",
					slog.String("routing_key", delivery.RoutingKey),
					slog.String("error", err.Error()),
				)
				w.metrics.ObserveEvent(delivery.RoutingKey, "malformed")
				// malformed messages go to the dead letter exchange, if any
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message", slog.String("error", nackErr.Error()))
				}
				continue
			}

			select {
			case w.eventsChan <- msg:
				w.logger.Debug("Event dispatched to worker pool",
					slog.String("event_id", msg.Event.ID),
					slog.String("type", string(msg.Event.Type)),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching event")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown", slog.String("error", nackErr.Error()))
				}
				return
			}
		}
	}
}

func decodeDelivery(body []byte, redelivered bool, ack domain.Acknowledger) (*domain.EventMessage, error) {
	e, err := events.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	return &domain.EventMessage{Event: e, Redelivered: redelivered, Delivery: ack}, nil
}
