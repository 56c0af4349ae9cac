package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/quayside/commerce/pkg/kafka"
	"github.com/quayside/commerce/services/payment/internal/domain"
)

// Kafka topics published by the payment service.
var (
	TopicPaymentCompleted = pkgkafka.Topic("payment", "completed")
	TopicPaymentFailed    = pkgkafka.Topic("payment", "failed")
	TopicPaymentRefunded  = pkgkafka.Topic("payment", "refunded")
)

// Aggregate type constant.
const AggregateTypePayment = "payment"

// Source identifier for events originating from the payment service.
const SourcePaymentService = "payment-service"

// PaymentEventData is the payload for a payment.completed event. The
// transaction reference is the provider's payment identifier, carried so
// consumers can reconcile against the provider without a lookup.
type PaymentEventData struct {
	PaymentID            string `json:"payment_id"`
	OrderID              string `json:"order_id"`
	UserID               string `json:"user_id"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	Status               string `json:"status"`
	Method               string `json:"method"`
	Provider             string `json:"provider"`
	TransactionReference string `json:"transaction_reference,omitempty"`
}

// PaymentFailedData is the payload for a payment.failed event. CanRetry
// tells consumers whether a new capture attempt may succeed.
type PaymentFailedData struct {
	PaymentID     string `json:"payment_id"`
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Method        string `json:"method"`
	Provider      string `json:"provider"`
	FailureReason string `json:"failure_reason,omitempty"`
	CanRetry      bool   `json:"can_retry"`
}

// PaymentRefundedData is the payload for a payment.refunded event.
type PaymentRefundedData struct {
	PaymentID      string `json:"payment_id"`
	OrderID        string `json:"order_id"`
	RefundID       string `json:"refund_id"`
	RefundedAmount int64  `json:"refunded_amount"`
	TotalRefunded  int64  `json:"total_refunded"`
	Currency       string `json:"currency"`
	PaymentStatus  string `json:"payment_status"`
}

// Producer publishes payment domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the payment service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func completedData(p *domain.Payment) PaymentEventData {
	return PaymentEventData{
		PaymentID:            p.ID,
		OrderID:              p.OrderID,
		UserID:               p.UserID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Status:               p.Status,
		Method:               p.Method,
		Provider:             p.ProviderName,
		TransactionReference: p.ProviderPayID,
	}
}

func failedData(p *domain.Payment, canRetry bool) PaymentFailedData {
	return PaymentFailedData{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        p.Status,
		Method:        p.Method,
		Provider:      p.ProviderName,
		FailureReason: p.FailureReason,
		CanRetry:      canRetry,
	}
}

func (pr *Producer) publishPaymentEvent(ctx context.Context, topic string, p *domain.Payment, data any) error {
	event, err := pkgkafka.NewEvent(topic, p.OrderID, AggregateTypePayment, SourcePaymentService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := pr.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	pr.logger.DebugContext(ctx, "published payment event",
		slog.String("topic", topic),
		slog.String("payment_id", p.ID),
		slog.String("order_id", p.OrderID),
		slog.String("status", p.Status),
	)

	return nil
}

// PublishPaymentCompleted publishes a payment.completed event.
func (pr *Producer) PublishPaymentCompleted(ctx context.Context, p *domain.Payment) error {
	return pr.publishPaymentEvent(ctx, TopicPaymentCompleted, p, completedData(p))
}

// PublishPaymentFailed publishes a payment.failed event.
func (pr *Producer) PublishPaymentFailed(ctx context.Context, p *domain.Payment, canRetry bool) error {
	return pr.publishPaymentEvent(ctx, TopicPaymentFailed, p, failedData(p, canRetry))
}

// PublishPaymentRefunded publishes a payment.refunded event.
func (pr *Producer) PublishPaymentRefunded(ctx context.Context, p *domain.Payment, refund *domain.Refund, totalRefunded int64) error {
	data := PaymentRefundedData{
		PaymentID:      p.ID,
		OrderID:        p.OrderID,
		RefundID:       refund.ID,
		RefundedAmount: refund.Amount,
		TotalRefunded:  totalRefunded,
		Currency:       refund.Currency,
		PaymentStatus:  p.Status,
	}

	event, err := pkgkafka.NewEvent(TopicPaymentRefunded, p.OrderID, AggregateTypePayment, SourcePaymentService, data)
	if err != nil {
		return fmt.Errorf("create payment.refunded event: %w", err)
	}

	if err := pr.kafka.Publish(ctx, TopicPaymentRefunded, event); err != nil {
		return fmt.Errorf("publish payment.refunded event: %w", err)
	}

	pr.logger.DebugContext(ctx, "published payment.refunded event",
		slog.String("payment_id", p.ID),
		slog.String("refund_id", refund.ID),
		slog.Int64("refunded_amount", refund.Amount),
		slog.Int64("total_refunded", totalRefunded),
	)

	return nil
}
