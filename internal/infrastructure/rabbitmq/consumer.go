package rabbitmq

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/logging"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	conn   *amqp091.Connection
	queue  string
	logger zerolog.Logger
}

func NewConsumer(url, exchange, queue string) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(
		queue,
		"",
		exchange,
		false,
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &Consumer{
		conn:   conn,
		queue:  queue,
		logger: logging.Component("rabbitmq_consumer").With().Str("queue", queue).Logger(),
	}, nil
}

// Consume runs until ctx is done or the broker closes the channel.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(32, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ch.Cancel("", false)
		ch.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info().Msg("consumer channel closed")
				return nil
			}
			c.handle(ctx, msg, handler)
		}
	}
}

// handle acks handled messages and messages that can never succeed, and
// requeues the rest once.
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery, handler MessageHandler) {
	err := handler(ctx, []byte(msg.MessageId), msg.Body)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error().Err(ackErr).Msg("ack failed")
		}
		return
	}

	requeue := !msg.Redelivered
	c.logger.Error().Err(err).
		Str("key", msg.MessageId).
		Bool("requeue", requeue).
		Msg("error handling message")
	if nackErr := msg.Nack(false, requeue); nackErr != nil {
		c.logger.Error().Err(nackErr).Msg("nack failed")
	}
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}
