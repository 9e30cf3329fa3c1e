package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

var _ Publisher = (*RabbitMQPublisher)(nil)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) PublishTransition(ctx context.Context, t domain.Transition) error {
	msg := NewTransitionMessage(t)
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid transition message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal transition message: %w", err)
	}

	return p.publish(ctx, EventsExchange, TransitionRoutingKey(msg.ToStatus.String()), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    msg.TransitionID,
		Type:         "slab.transition",
		Body:         payload,
	})
}

func (p *RabbitMQPublisher) PublishBatch(ctx context.Context, msg BatchMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid batch message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal batch message: %w", err)
	}

	return p.publish(ctx, "", BatchQueue, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     msg.CommandID,
		CorrelationId: msg.CorrelationID,
		Type:          "slab.batch",
		Body:          payload,
	})
}

// publish sends to exchange with routingKey. The default exchange routes by queue name.
func (p *RabbitMQPublisher) publish(ctx context.Context, exchange, routingKey string, publishing amqp.Publishing) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish %s message: %w", routingKey, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
