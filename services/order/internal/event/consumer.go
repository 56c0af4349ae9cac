package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/quayside/commerce/pkg/errors"
	pkgkafka "github.com/quayside/commerce/pkg/kafka"
	"github.com/quayside/commerce/services/order/internal/domain"
)

// Kafka topics consumed by the order service.
var (
	TopicPaymentCompleted = pkgkafka.Topic("payment", "completed")
	TopicPaymentFailed    = pkgkafka.Topic("payment", "failed")
	TopicPaymentRefunded  = pkgkafka.Topic("payment", "refunded")
)

// OrderStateService defines the interface required by the event consumer.
type OrderStateService interface {
	MarkPaid(ctx context.Context, orderID, paymentID string) (*domain.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID, reason string) (*domain.Order, error)
	MarkRefunded(ctx context.Context, orderID string) (*domain.Order, error)
}

// paymentEventData is the slice of the payment event payloads the order
// service cares about.
type paymentEventData struct {
	PaymentID     string `json:"payment_id"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Consumer processes incoming Kafka events for the order service.
type Consumer struct {
	logger  *slog.Logger
	service OrderStateService
}

// NewConsumer creates a new event consumer for the order service.
func NewConsumer(service OrderStateService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandlePaymentCompleted moves the order to paid. An order that already left
// the payable states is treated as done; the transition was applied by an
// earlier delivery.
func (c *Consumer) HandlePaymentCompleted(ctx context.Context, event *pkgkafka.Event) error {
	var data paymentEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		// Malformed payloads fail identically on every redelivery; classify
		// them permanent so they dead-letter instead of burning retries.
		return apperrors.InvalidInput(fmt.Sprintf("malformed payment.completed payload: %v", err))
	}

	c.logger.InfoContext(ctx, "processing payment.completed event",
		slog.String("order_id", data.OrderID),
		slog.String("payment_id", data.PaymentID),
	)

	if _, err := c.service.MarkPaid(ctx, data.OrderID, data.PaymentID); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			c.logger.InfoContext(ctx, "order already past payment",
				slog.String("order_id", data.OrderID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("mark order %s paid: %w", data.OrderID, err)
	}

	return nil
}

// HandlePaymentFailed moves a pending order to payment_failed.
func (c *Consumer) HandlePaymentFailed(ctx context.Context, event *pkgkafka.Event) error {
	var data paymentEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("malformed payment.failed payload: %v", err))
	}

	c.logger.InfoContext(ctx, "processing payment.failed event",
		slog.String("order_id", data.OrderID),
		slog.String("payment_id", data.PaymentID),
		slog.String("failure_reason", data.FailureReason),
	)

	if _, err := c.service.MarkPaymentFailed(ctx, data.OrderID, data.FailureReason); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			c.logger.InfoContext(ctx, "order no longer pending",
				slog.String("order_id", data.OrderID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("mark order %s payment failed: %w", data.OrderID, err)
	}

	return nil
}

// HandlePaymentRefunded moves the order to refunded once the payment service
// reports a full refund. Partial refunds leave the order where it is.
func (c *Consumer) HandlePaymentRefunded(ctx context.Context, event *pkgkafka.Event) error {
	var data struct {
		PaymentID     string `json:"payment_id"`
		OrderID       string `json:"order_id"`
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("malformed payment.refunded payload: %v", err))
	}

	if data.PaymentStatus != "refunded" {
		c.logger.InfoContext(ctx, "partial refund, order status unchanged",
			slog.String("order_id", data.OrderID),
			slog.String("payment_status", data.PaymentStatus),
		)
		return nil
	}

	c.logger.InfoContext(ctx, "processing payment.refunded event",
		slog.String("order_id", data.OrderID),
		slog.String("payment_id", data.PaymentID),
	)

	if _, err := c.service.MarkRefunded(ctx, data.OrderID); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			c.logger.InfoContext(ctx, "order already refunded",
				slog.String("order_id", data.OrderID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("mark order %s refunded: %w", data.OrderID, err)
	}

	return nil
}
