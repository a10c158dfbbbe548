package domain

import "github.com/cuongbtq/transfer-market/internal/events"

// Acknowledger settles a broker delivery; amqp.Delivery satisfies it
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// EventMessage is a decoded event plus the delivery it arrived on
type EventMessage struct {
	Event       events.Event
	Redelivered bool
	Delivery    Acknowledger
}
