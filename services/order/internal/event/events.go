package event

import (
	"fmt"

	pkgkafka "github.com/quayside/commerce/pkg/kafka"
	"github.com/quayside/commerce/services/order/internal/domain"
)

// Kafka topics published by the order service (via the outbox dispatcher).
var (
	TopicOrderCreated       = pkgkafka.Topic("order", "created")
	TopicOrderPaid          = pkgkafka.Topic("order", "paid")
	TopicOrderCancelled     = pkgkafka.Topic("order", "cancelled")
	TopicOrderPaymentFailed = pkgkafka.Topic("order", "payment_failed")
)

// Outbox event type identifiers, stored on order_events rows.
const (
	EventTypeOrderCreated       = "order_created"
	EventTypeOrderPaid          = "order_paid"
	EventTypeOrderCancelled     = "order_cancelled"
	EventTypeOrderPaymentFailed = "order_payment_failed"
)

// Aggregate type constant.
const AggregateTypeOrder = "order"

// Source identifier for events originating from the order service.
const SourceOrderService = "order-service"

var topicsByEventType = map[string]string{
	EventTypeOrderCreated:       TopicOrderCreated,
	EventTypeOrderPaid:          TopicOrderPaid,
	EventTypeOrderCancelled:     TopicOrderCancelled,
	EventTypeOrderPaymentFailed: TopicOrderPaymentFailed,
}

// TopicForEventType resolves the Kafka topic for an outbox event type.
func TopicForEventType(eventType string) (string, bool) {
	topic, ok := topicsByEventType[eventType]
	return topic, ok
}

// OrderEventData is the payload shape for order lifecycle events. The
// reservation_id lets the inventory service act on cancellations.
type OrderEventData struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        string          `json:"user_id"`
	Status        string          `json:"status"`
	TotalAmount   int64           `json:"total_amount"`
	Currency      string          `json:"currency"`
	ReservationID string          `json:"reservation_id"`
	Reason        string          `json:"reason,omitempty"`
	Items         []OrderItemData `json:"items,omitempty"`
}

// OrderItemData is one line item within an order event payload.
type OrderItemData struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

func orderData(o *domain.Order, reason string) OrderEventData {
	items := make([]OrderItemData, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemData{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return OrderEventData{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		ReservationID: o.ReservationID,
		Reason:        reason,
		Items:         items,
	}
}

// NewOutboxMessage builds an outbox row carrying a fully formed event
// envelope. The envelope is sealed at write time so the event ID consumers
// deduplicate on is fixed when the transaction commits, not when the
// dispatcher happens to publish.
func NewOutboxMessage(eventType string, o *domain.Order, reason string) (*domain.OutboxMessage, error) {
	topic, ok := TopicForEventType(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown outbox event type: %s", eventType)
	}

	evt, err := pkgkafka.NewEvent(topic, o.ID, AggregateTypeOrder, SourceOrderService, orderData(o, reason))
	if err != nil {
		return nil, fmt.Errorf("create %s event: %w", eventType, err)
	}

	payload, err := evt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return &domain.OutboxMessage{
		OrderID:   o.ID,
		EventType: eventType,
		Payload:   payload,
	}, nil
}
