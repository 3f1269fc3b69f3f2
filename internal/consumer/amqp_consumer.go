package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/giobyte8/imgversions/internal/config"
	"github.com/giobyte8/imgversions/internal/models"
	"github.com/giobyte8/imgversions/internal/telemetry"
	"github.com/giobyte8/imgversions/internal/telemetry/metrics"
)

type requestHandler func(ctx context.Context, req models.VersionsRequest) error

type AMQPConsumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	config    config.AMQPConfig
	processor VersionsProcessor
	telemetry *telemetry.TelemetrySvc
}

// Creates a new AMQPConsumer instance ready to connect to broker
func NewAMQPConsumer(
	config config.AMQPConfig,
	processor VersionsProcessor,
	telemetry *telemetry.TelemetrySvc,
) (*AMQPConsumer, error) {

	if config.AMQPUri == "" {
		return nil, fmt.Errorf("AMQP URI cannot be empty in config")
	}
	if config.Exchange == "" {
		return nil, fmt.Errorf("AMQP exchange cannot be empty in config")
	}
	if config.VersionsGenQueueName == "" {
		return nil, fmt.Errorf(
			"AMQP versions generation queue name cannot be empty in config",
		)
	}
	if config.VersionsDelQueueName == "" {
		return nil, fmt.Errorf(
			"AMQP versions delete queue name cannot be empty in config",
		)
	}

	return &AMQPConsumer{
		config:    config,
		processor: processor,
		telemetry: telemetry,
	}, nil
}

// Connects to AMQP broker, declares exchange and queues and
// starts consuming messages
func (c *AMQPConsumer) Start(ctx context.Context) error {
	slog.Debug("AMQP - Initializing AMQP Consumer")

	var err error
	c.conn, err = amqp.Dial(c.config.AMQPUri)
	if err != nil {
		return fmt.Errorf("AMQP - Connection to broker failed: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("AMQP - Failed to open channel: %w", err)
	}

	err = c.channel.ExchangeDeclare(
		c.config.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		c.closeAll()
		return fmt.Errorf("AMQP - Failed to declare exchange: %w", err)
	}

	for _, queueName := range []string{
		c.config.VersionsGenQueueName,
		c.config.VersionsDelQueueName,
	} {
		if err := c.declareAndBind(queueName); err != nil {
			c.closeAll()
			return fmt.Errorf(
				"AMQP - Failed to declare/bind queue %s: %w",
				queueName,
				err,
			)
		}
	}

	// Generation is CPU bound, one message at a time per consumer
	if err := c.channel.Qos(1, 0, false); err != nil {
		c.closeAll()
		return fmt.Errorf("AMQP - Failed to set QoS: %w", err)
	}

	go c.consume(
		ctx,
		c.config.VersionsGenQueueName,
		"imgversions-gen",
		metrics.VersionsGenRequestReceived,
		c.processor.GenerateVersions,
	)
	go c.consume(
		ctx,
		c.config.VersionsDelQueueName,
		"imgversions-del",
		metrics.VersionsDelRequestReceived,
		c.processor.DeleteVersions,
	)
	return nil
}

// Gracefully stops the AMQP consumer
func (c *AMQPConsumer) Stop() {
	slog.Info("AMQP - Stopping AMQP Consumer...")
	c.closeAll()
	slog.Info("AMQP - AMQP Consumer stopped")
}

func (c *AMQPConsumer) closeAll() {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			slog.Error("AMQP - Failed to close channel", "error", err)
		} else {
			slog.Debug("AMQP - Channel closed")
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			slog.Error("AMQP - Failed to close connection", "error", err)
		} else {
			slog.Debug("AMQP - Connection closed")
		}
	}
}

func (c *AMQPConsumer) declareAndBind(queueName string) error {
	_, err := c.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	return c.channel.QueueBind(
		queueName,         // Queue
		queueName,         // Routing key
		c.config.Exchange, // Exchange
		false,             // No-wait
		nil,               // Arguments
	)
}

func (c *AMQPConsumer) consume(
	ctx context.Context,
	queueName string,
	consumerTag string,
	metric metrics.MetricName,
	handler requestHandler,
) {
	msgs, err := c.channel.Consume(
		queueName,
		consumerTag,
		false, // Auto-acknowledge
		false, // Exclusive
		false, // No-local
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		slog.Error(
			"AMQP - Failed to create queue consumer",
			"queue", queueName,
			"error", err,
		)
		return
	}

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				slog.Info(
					"AMQP - Message channel closed. goroutine exiting",
					"queue", queueName,
				)
				return
			}

			c.handleDelivery(ctx, msg, metric, handler)

		case <-ctx.Done():
			slog.Info(
				"AMQP - Context done signal received, "+
					"stopping consumption goroutine...",
				"queue", queueName,
			)
			return
		}
	}
}

// handleDelivery decodes msg, runs handler on it and settles the message.
// Messages that cannot be decoded or processed are dropped, not requeued.
func (c *AMQPConsumer) handleDelivery(
	ctx context.Context,
	msg amqp.Delivery,
	metric metrics.MetricName,
	handler requestHandler,
) {
	var req models.VersionsRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		slog.Error(
			"AMQP - Failed to unmarshal message",
			"routingKey", msg.RoutingKey,
			"error", err,
			"message", string(msg.Body),
		)
		nack(msg)
		return
	}

	c.telemetry.Metrics().Increment(metric)

	if err := handler(ctx, req); err != nil {
		slog.Error(
			"AMQP - Failed to process versions request",
			"routingKey", msg.RoutingKey,
			"error", err,
			"filePath", req.FilePath,
		)
		nack(msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("AMQP - Failed to acknowledge message", "error", err)
	}
}

func nack(msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		slog.Error("AMQP - Failed to nack message", "error", err)
	}
}
