package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface abstracts the queue client so consumers and publishers can
// be tested against a mock.
type ClientInterface interface {
	// Push publishes data and blocks until the broker confirms delivery.
	// The context is used for cancellation and timeout.
	Push(ctx context.Context, data []byte) error

	// UnsafePush publishes without waiting for a confirmation. No delivery
	// guarantee is provided.
	UnsafePush(ctx context.Context, data []byte) error

	// Consume returns the queue's delivery channel. Each delivery must be
	// Acked after successful processing or Nacked on failure.
	Consume() (<-chan amqp.Delivery, error)

	// Close cleanly shuts down the channel and connection.
	Close() error
}

var _ ClientInterface = (*Client)(nil)
