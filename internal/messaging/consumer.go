package messaging

import (
	"context"
	"errors"
	"fmt"

	"tokopaya-be/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one delivery body. A nil return acknowledges the
// message; an error requeues it once.
type Handler func(ctx context.Context, body []byte) error

// DropFunc is called when a redelivered message fails again, just before
// it is dropped from the queue.
type DropFunc func(ctx context.Context, body []byte, cause error)

// Consumer reads from a durable queue with manual acknowledgements and a
// prefetch of one. Retry policy: first failure requeues the delivery,
// a second failure hands it to onDrop and drops it.
type Consumer struct {
	url     string
	queue   string
	handler Handler
	onDrop  DropFunc
}

func NewConsumer(url, queue string, handler Handler, onDrop DropFunc) *Consumer {
	return &Consumer{url: url, queue: queue, handler: handler, onDrop: onDrop}
}

// Run blocks consuming deliveries until ctx is cancelled or the broker
// connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	log := logger.L().With(zap.String("queue", c.queue))
	log.Info("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, log, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, log *zap.Logger, d amqp.Delivery) {
	err := c.handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack delivery", zap.Error(ackErr))
		}
		return
	}

	if d.Redelivered {
		log.Error("delivery failed twice, dropping", zap.Error(err))
		if c.onDrop != nil {
			c.onDrop(ctx, d.Body, err)
		}
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack dropped delivery", zap.Error(ackErr))
		}
		return
	}

	log.Warn("delivery failed, requeueing once", zap.Error(err))
	if nackErr := d.Nack(false, true); nackErr != nil {
		log.Error("failed to nack delivery", zap.Error(nackErr))
	}
}
