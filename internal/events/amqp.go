package events

import (
	"context"
)

// BrokerClient is the slice of the RabbitMQ client the publisher needs
type BrokerClient interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AMQPPublisher sends events to the job events exchange, routed by event type
type AMQPPublisher struct {
	client BrokerClient
}

func NewAMQPPublisher(client BrokerClient) *AMQPPublisher {
	return &AMQPPublisher{client: client}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := Encode(e)
	if err != nil {
		return err
	}
	return p.client.PublishWithRetry(ctx, string(e.Type), body, "application/json")
}
