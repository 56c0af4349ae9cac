// Package outbox publishes committed order events to Kafka. Rows written in
// the same transaction as the order change are picked up here, so an event is
// only ever visible after its order state is.
package outbox

import (
	"context"
	"log/slog"
	"time"

	pkgkafka "github.com/quayside/commerce/pkg/kafka"
	"github.com/quayside/commerce/services/order/internal/event"
	"github.com/quayside/commerce/services/order/internal/repository"
)

// Publisher is the slice of the Kafka producer the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Dispatcher drains unprocessed outbox rows on an interval. Rows that fail to
// publish stay unprocessed and are retried on the next tick, giving
// at-least-once delivery; consumers deduplicate on the event ID sealed into
// the payload.
type Dispatcher struct {
	repo      repository.OutboxRepository
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewDispatcher creates an outbox dispatcher.
func NewDispatcher(repo repository.OutboxRepository, publisher Publisher, interval time.Duration, batchSize int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run dispatches until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher started",
		slog.Duration("interval", d.interval),
		slog.Int("batch_size", d.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if n, err := d.DispatchPending(ctx); err != nil {
				d.logger.Error("outbox dispatch pass failed", slog.String("error", err.Error()))
			} else if n > 0 {
				d.logger.Info("outbox events published", slog.Int("count", n))
			}
		}
	}
}

// DispatchPending publishes one batch of unprocessed rows and returns how
// many were published. A row that fails to publish or mark is skipped and
// retried next pass; later rows still get their attempt.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	messages, err := d.repo.FetchUnprocessed(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range messages {
		msg := &messages[i]

		topic, ok := event.TopicForEventType(msg.EventType)
		if !ok {
			// Unknown rows would wedge the queue if left unprocessed.
			d.logger.Error("unknown outbox event type, marking processed",
				slog.String("outbox_id", msg.ID),
				slog.String("event_type", msg.EventType),
			)
			if err := d.repo.MarkProcessed(ctx, msg.ID); err != nil {
				d.logger.Error("failed to mark outbox row processed",
					slog.String("outbox_id", msg.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		evt, err := pkgkafka.UnmarshalEvent([]byte(msg.Payload))
		if err != nil {
			d.logger.Error("malformed outbox payload, marking processed",
				slog.String("outbox_id", msg.ID),
				slog.String("error", err.Error()),
			)
			if err := d.repo.MarkProcessed(ctx, msg.ID); err != nil {
				d.logger.Error("failed to mark outbox row processed",
					slog.String("outbox_id", msg.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		if err := d.publisher.Publish(ctx, topic, evt); err != nil {
			d.logger.Error("failed to publish outbox event",
				slog.String("outbox_id", msg.ID),
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := d.repo.MarkProcessed(ctx, msg.ID); err != nil {
			// The event went out but the row stays pending; the next pass
			// republishes and consumers drop the duplicate by event ID.
			d.logger.Error("published but failed to mark outbox row processed",
				slog.String("outbox_id", msg.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		published++
	}

	return published, nil
}
