package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/quayside/commerce/pkg/errors"
	pkgkafka "github.com/quayside/commerce/pkg/kafka"
)

// Kafka topics consumed by the inventory service.
var (
	TopicOrderCancelled = pkgkafka.Topic("order", "cancelled")
)

// ReservationService defines the interface required by the event consumer.
type ReservationService interface {
	CancelReservation(ctx context.Context, reservationID string) error
}

// OrderCancelledData is the expected payload of an order.cancelled event.
type OrderCancelledData struct {
	OrderID       string `json:"order_id"`
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason,omitempty"`
}

// Consumer processes incoming Kafka events for the inventory service.
type Consumer struct {
	logger  *slog.Logger
	service ReservationService
}

// NewConsumer creates a new event consumer for the inventory service.
func NewConsumer(service ReservationService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleOrderCancelled processes order.cancelled events by releasing the
// stock reservation held for the order. A reservation that already left the
// active state is treated as done; the release was applied by an earlier
// delivery or by the expiry sweep.
func (c *Consumer) HandleOrderCancelled(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCancelledData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		// Malformed payloads fail identically on every redelivery; classify
		// them permanent so they dead-letter instead of burning retries.
		return apperrors.InvalidInput(fmt.Sprintf("malformed order.cancelled payload: %v", err))
	}

	if data.ReservationID == "" {
		c.logger.InfoContext(ctx, "order cancelled without reservation, nothing to release",
			slog.String("order_id", data.OrderID),
		)
		return nil
	}

	c.logger.InfoContext(ctx, "processing order.cancelled event",
		slog.String("order_id", data.OrderID),
		slog.String("reservation_id", data.ReservationID),
	)

	if err := c.service.CancelReservation(ctx, data.ReservationID); err != nil {
		// A conflicting state means the hold was already released, either by
		// an earlier delivery of this event or by the expiry sweep.
		if errors.Is(err, apperrors.ErrConflict) || errors.Is(err, apperrors.ErrGone) {
			c.logger.InfoContext(ctx, "reservation already released",
				slog.String("reservation_id", data.ReservationID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("cancel reservation %s for order %s: %w", data.ReservationID, data.OrderID, err)
	}

	c.logger.InfoContext(ctx, "reservation released for cancelled order",
		slog.String("order_id", data.OrderID),
		slog.String("reservation_id", data.ReservationID),
	)

	return nil
}
