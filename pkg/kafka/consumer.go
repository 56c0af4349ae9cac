package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	apperrors "github.com/quayside/commerce/pkg/errors"
)

// maxHandlerRetries is the maximum number of times a message handler is
// attempted before the message is dead-lettered or skipped.
const maxHandlerRetries = 3

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// EnableDLQ routes messages that exhaust their retries (or fail with a
	// permanent error) to a dead-letter topic instead of silently skipping them.
	EnableDLQ bool
}

// Consumer wraps the kafka-go reader for consuming events. Offsets are
// committed only after the handler (or DLQ publish) succeeds, giving
// at-least-once delivery.
type Consumer struct {
	reader    *kafka.Reader
	dlq       *DLQProducer
	logger    *slog.Logger
	handler   Handler
	closeOnce sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})

	var dlq *DLQProducer
	if cfg.EnableDLQ {
		dlq = NewDLQProducer(cfg.Brokers, logger)
	}

	return &Consumer{
		reader:  r,
		dlq:     dlq,
		logger:  logger,
		handler: handler,
	}
}

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	topic := c.reader.Config().Topic
	group := c.reader.Config().GroupID

	c.logger.Info("consumer started",
		slog.String("topic", topic),
		slog.String("group", group),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", slog.String("topic", topic))
			return c.Close()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
				continue
			}

			ConsumerMessagesReceived.WithLabelValues(topic, group).Inc()
			c.processMessage(ctx, msg, topic, group)
		}
	}
}

// processMessage runs the handler with bounded retries, dead-letters messages
// that cannot be processed, and commits the offset.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message, topic, group string) {
	msgCtx := ExtractTraceContext(ctx, msg.Headers)

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal event",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
		)
		c.deadLetterAndCommit(msgCtx, msg, fmt.Errorf("unmarshal event: %w", err), topic, group)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		start := time.Now()
		err := c.handler(msgCtx, event)
		ConsumerProcessingDuration.WithLabelValues(topic, group).Observe(time.Since(start).Seconds())

		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err

		// Business rejections fail identically on every redelivery, so
		// retrying them only delays the dead letter.
		if apperrors.IsPermanent(err) {
			c.logger.Warn("handler rejected event permanently",
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
				slog.String("error", err.Error()),
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
			)
			break
		}

		c.logger.Warn("handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxHandlerRetries),
		)

		if attempt < maxHandlerRetries {
			backoff := time.Duration(attempt) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}

	if lastErr != nil {
		c.logger.Error("handler failed, dead-lettering message",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)
		c.deadLetterAndCommit(msgCtx, msg, lastErr, topic, group)
		return
	}

	ConsumerMessagesProcessed.WithLabelValues(topic, group).Inc()
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message", slog.String("error", err.Error()))
	}
}

// deadLetterAndCommit publishes the failed message to the DLQ (when enabled)
// and commits the offset so the partition is not blocked. If the DLQ publish
// itself fails, the offset is NOT committed and the message is redelivered.
func (c *Consumer) deadLetterAndCommit(ctx context.Context, msg kafka.Message, cause error, topic, group string) {
	ConsumerMessagesFailed.WithLabelValues(topic, group).Inc()

	if c.dlq != nil {
		if err := c.dlq.Publish(ctx, msg, cause, group); err != nil {
			c.logger.Error("DLQ publish failed, leaving message uncommitted for redelivery",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			return
		}
		ConsumerDLQPublished.WithLabelValues(topic, group).Inc()
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit dead-lettered message", slog.String("error", err.Error()))
	}
}

// Close closes the consumer and its DLQ producer. Safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
		if c.dlq != nil {
			if dlqErr := c.dlq.Close(); dlqErr != nil && err == nil {
				err = dlqErr
			}
		}
	})
	return err
}

// TopicPrefix is the standard prefix for all commerce Kafka topics.
const TopicPrefix = "commerce"

// Topic constructs a fully-qualified topic name, e.g. Topic("order", "paid")
// returns "commerce.order.paid".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
