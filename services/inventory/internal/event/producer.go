package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/quayside/commerce/pkg/kafka"
	"github.com/quayside/commerce/services/inventory/internal/domain"
)

// Kafka topics published by the inventory service.
var (
	TopicStockAdjusted        = pkgkafka.Topic("inventory", "stock_adjusted")
	TopicReservationCreated   = pkgkafka.Topic("inventory", "reservation_created")
	TopicReservationConfirmed = pkgkafka.Topic("inventory", "reservation_confirmed")
	TopicReservationReleased  = pkgkafka.Topic("inventory", "reservation_released")
	TopicAlertRaised          = pkgkafka.Topic("inventory", "alert_raised")
)

// Aggregate type constant.
const AggregateTypeInventory = "inventory"

// Source identifier for events originating from the inventory service.
const SourceInventoryService = "inventory-service"

// StockAdjustedData is the payload for an inventory.stock_adjusted event.
type StockAdjustedData struct {
	ProductID        string  `json:"product_id"`
	VariantID        string  `json:"variant_id"`
	MovementType     string  `json:"movement_type"`
	QuantityChange   int     `json:"quantity_change"`
	PreviousQuantity int     `json:"previous_quantity"`
	NewQuantity      int     `json:"new_quantity"`
	Available        int     `json:"available"`
	Reason           string  `json:"reason"`
	ReferenceID      *string `json:"reference_id,omitempty"`
}

// ReservationEventData is the shared payload shape for reservation lifecycle
// events. ExpiresAt lets consumers track the hold deadline without a lookup.
type ReservationEventData struct {
	ReservationID string                `json:"reservation_id"`
	OwnerID       string                `json:"owner_id"`
	OwnerType     string                `json:"owner_type"`
	SessionID     string                `json:"session_id"`
	Status        string                `json:"status"`
	ExpiresAt     time.Time             `json:"expires_at"`
	ReferenceID   *string               `json:"reference_id,omitempty"`
	Items         []ReservationItemData `json:"items"`
}

// ReservationItemData is one held item within a reservation event payload.
type ReservationItemData struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// AlertRaisedData is the payload for an inventory.alert_raised event.
type AlertRaisedData struct {
	AlertID      string `json:"alert_id"`
	ProductID    string `json:"product_id"`
	VariantID    string `json:"variant_id"`
	AlertType    string `json:"alert_type"`
	Severity     string `json:"severity"`
	CurrentStock int    `json:"current_stock"`
	Threshold    int    `json:"threshold"`
}

// Producer publishes inventory domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the inventory service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishStockAdjusted publishes an inventory.stock_adjusted event.
func (p *Producer) PublishStockAdjusted(ctx context.Context, stock *domain.Stock, movement *domain.StockMovement) error {
	data := StockAdjustedData{
		ProductID:        stock.ProductID,
		VariantID:        stock.VariantID,
		MovementType:     movement.MovementType,
		QuantityChange:   movement.QuantityChange,
		PreviousQuantity: movement.PreviousQuantity,
		NewQuantity:      movement.NewQuantity,
		Available:        stock.Available(),
		Reason:           movement.Reason,
		ReferenceID:      movement.ReferenceID,
	}

	event, err := pkgkafka.NewEvent(TopicStockAdjusted, stock.ProductID, AggregateTypeInventory, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create stock_adjusted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicStockAdjusted, event); err != nil {
		return fmt.Errorf("publish stock_adjusted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published stock_adjusted event",
		slog.String("product_id", stock.ProductID),
		slog.String("variant_id", stock.VariantID),
	)

	return nil
}

func reservationData(res *domain.Reservation) ReservationEventData {
	items := make([]ReservationItemData, 0, len(res.Items))
	for _, item := range res.Items {
		items = append(items, ReservationItemData{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return ReservationEventData{
		ReservationID: res.ID,
		OwnerID:       res.OwnerID,
		OwnerType:     res.OwnerType,
		SessionID:     res.SessionID,
		Status:        res.Status,
		ExpiresAt:     res.ExpiresAt,
		ReferenceID:   res.ReferenceID,
		Items:         items,
	}
}

func (p *Producer) publishReservationEvent(ctx context.Context, topic string, res *domain.Reservation) error {
	event, err := pkgkafka.NewEvent(topic, res.ID, AggregateTypeInventory, SourceInventoryService, reservationData(res))
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published reservation event",
		slog.String("topic", topic),
		slog.String("reservation_id", res.ID),
		slog.String("status", res.Status),
	)

	return nil
}

// PublishReservationCreated publishes an inventory.reservation_created event.
func (p *Producer) PublishReservationCreated(ctx context.Context, res *domain.Reservation) error {
	return p.publishReservationEvent(ctx, TopicReservationCreated, res)
}

// PublishReservationConfirmed publishes an inventory.reservation_confirmed event.
func (p *Producer) PublishReservationConfirmed(ctx context.Context, res *domain.Reservation) error {
	return p.publishReservationEvent(ctx, TopicReservationConfirmed, res)
}

// PublishReservationReleased publishes an inventory.reservation_released event.
func (p *Producer) PublishReservationReleased(ctx context.Context, res *domain.Reservation) error {
	return p.publishReservationEvent(ctx, TopicReservationReleased, res)
}

// PublishAlertRaised publishes an inventory.alert_raised event.
func (p *Producer) PublishAlertRaised(ctx context.Context, alert *domain.InventoryAlert) error {
	data := AlertRaisedData{
		AlertID:      alert.ID,
		ProductID:    alert.ProductID,
		VariantID:    alert.VariantID,
		AlertType:    alert.AlertType,
		Severity:     alert.Severity,
		CurrentStock: alert.CurrentStock,
		Threshold:    alert.Threshold,
	}

	event, err := pkgkafka.NewEvent(TopicAlertRaised, alert.ID, AggregateTypeInventory, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create alert_raised event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAlertRaised, event); err != nil {
		return fmt.Errorf("publish alert_raised event: %w", err)
	}

	p.logger.DebugContext(ctx, "published alert_raised event",
		slog.String("alert_id", alert.ID),
		slog.String("alert_type", alert.AlertType),
		slog.String("severity", alert.Severity),
	)

	return nil
}
