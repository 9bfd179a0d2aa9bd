package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shelfsense/shelfd/internal/inventory"
	"github.com/shelfsense/shelfd/pkg/metrics"
	"github.com/shelfsense/shelfd/pkg/mq"
)

// Consumer drains movement payloads from RabbitMQ into the weight ledger.
// Malformed and invalid payloads are acked and dropped, because requeueing
// them could never succeed. Only storage failures nack with requeue.
type Consumer struct {
	logger   *slog.Logger
	ledger   *inventory.Ledger
	mqClient mq.ClientInterface
	metrics  *metrics.BackendMetrics // Optional metrics
	done     chan struct{}
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger      *slog.Logger
	Ledger      *inventory.Ledger
	RabbitMQURL string
	QueueName   string

	// MQClient overrides the client built from RabbitMQURL. Used by tests.
	MQClient mq.ClientInterface
	// Metrics is optional.
	Metrics *metrics.BackendMetrics
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("ledger cannot be nil")
	}

	client := cfg.MQClient
	if client == nil {
		if cfg.RabbitMQURL == "" {
			return nil, errors.New("rabbitmq URL cannot be empty")
		}
		if cfg.QueueName == "" {
			return nil, errors.New("queue name cannot be empty")
		}
		client = mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger)
	}

	return &Consumer{
		logger:   cfg.Logger,
		ledger:   cfg.Ledger,
		mqClient: client,
		metrics:  cfg.Metrics,
		done:     make(chan struct{}),
	}, nil
}

// Start begins consuming messages from RabbitMQ.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting movement consumer")

	// Wait for the MQ client to finish its initial connection
	time.Sleep(2 * time.Second)

	deliveries, err := c.mqClient.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started, waiting for movements")

	go c.processMessages(ctx, deliveries)

	return nil
}

// processMessages drains the deliveries channel until it closes or the
// context is canceled.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			close(c.done)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				close(c.done)
				return
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery normalizes one payload and appends its movements.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	movements, err := inventory.NormalizeMovementPayload(delivery.Body)
	if err != nil {
		c.rejectPayload(delivery, err)
		return
	}

	result, err := c.ledger.RecordBatch(ctx, movements)
	if err != nil {
		var persistence *inventory.PersistenceError
		if errors.As(err, &persistence) {
			c.logger.Error("failed to persist movements, requeueing",
				"error", err,
			)
			c.observeMessage("requeued")
			c.observeError("persistence")
			if nackErr := delivery.Nack(false, true); nackErr != nil {
				c.logger.Error("failed to nack message", "error", nackErr)
			}
			return
		}
		c.rejectPayload(delivery, err)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
		return
	}

	outcome := "recorded"
	if len(result.Errors) > 0 {
		outcome = "partial"
	}
	c.observeMessage(outcome)
	c.logger.Debug("movement payload processed",
		"recorded", len(result.Recorded),
		"failed", len(result.Errors),
	)
}

// rejectPayload acks a payload that can never be processed successfully so
// the broker does not redeliver it.
func (c *Consumer) rejectPayload(delivery amqp.Delivery, cause error) {
	c.logger.Error("dropping unprocessable movement payload",
		"error", cause,
	)

	reason := "validation"
	if errors.Is(cause, inventory.ErrUnrecognizedFormat) {
		reason = "unrecognized_format"
	}
	c.observeMessage("dropped")
	c.observeError(reason)

	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack message", "error", ackErr)
	}
}

func (c *Consumer) observeMessage(result string) {
	if c.metrics != nil {
		c.metrics.ConsumerMessagesTotal.WithLabelValues(result).Inc()
	}
}

func (c *Consumer) observeError(reason string) {
	if c.metrics != nil {
		c.metrics.ConsumerErrors.WithLabelValues(reason).Inc()
	}
}

// Stop stops the consumer and closes the MQ client.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	if err := c.mqClient.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	<-c.done

	c.logger.Info("consumer stopped")
	return nil
}
