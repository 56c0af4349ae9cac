package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/services/order/internal/domain"
	"github.com/quayside/commerce/services/order/internal/event"
	"github.com/quayside/commerce/services/order/internal/repository"
)

// InventoryClient is the slice of the inventory service the saga needs.
type InventoryClient interface {
	ConfirmReservation(ctx context.Context, reservationID, orderID string) error
	ReturnStock(ctx context.Context, productID, variantID string, quantity int, reason, referenceID string) error
}

// OrderService coordinates order creation against the inventory service and
// drives the order state machine from payment events.
type OrderService struct {
	repo      repository.OrderRepository
	inventory InventoryClient
	logger    *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(repo repository.OrderRepository, inventory InventoryClient, logger *slog.Logger) *OrderService {
	return &OrderService{
		repo:      repo,
		inventory: inventory,
		logger:    logger,
	}
}

// CreateOrderItemInput is one line item of a new order.
type CreateOrderItemInput struct {
	ProductID   string
	VariantID   string
	ProductName string
	UnitPrice   int64
	Quantity    int
}

// CreateOrderInput carries the parameters for creating an order.
type CreateOrderInput struct {
	UserID          string
	ReservationID   string
	SessionID       string
	Currency        string
	ShippingAddress domain.Address
	Items           []CreateOrderItemInput
}

func (in CreateOrderInput) validate() error {
	if in.UserID == "" {
		return apperrors.InvalidInput("user_id is required")
	}
	if in.ReservationID == "" {
		return apperrors.InvalidInput("reservation_id is required")
	}
	if in.SessionID == "" {
		return apperrors.InvalidInput("session_id is required")
	}
	if len(in.Currency) != 3 {
		return apperrors.InvalidInput("currency must be a 3-letter ISO code")
	}
	if len(in.Items) == 0 {
		return apperrors.InvalidInput("order must contain at least one item")
	}
	for i, item := range in.Items {
		if item.ProductID == "" || item.VariantID == "" {
			return apperrors.InvalidInput(fmt.Sprintf("item %d: product_id and variant_id are required", i))
		}
		if item.Quantity <= 0 {
			return apperrors.InvalidInput(fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if item.UnitPrice <= 0 {
			return apperrors.InvalidInput(fmt.Sprintf("item %d: unit_price must be positive", i))
		}
	}
	if in.ShippingAddress.Line1 == "" || in.ShippingAddress.City == "" ||
		in.ShippingAddress.PostalCode == "" || in.ShippingAddress.Country == "" {
		return apperrors.InvalidInput("shipping address is incomplete")
	}
	return nil
}

// CreateOrder runs the order creation saga. The reservation is confirmed at
// the inventory service with the new order ID as reference, then the order,
// its items, the history row and the order_created outbox row commit in one
// local transaction. If that transaction fails after the reservation was
// confirmed, the held stock is returned per item, keyed by the same order ID
// so a replay of the compensation is deduplicated downstream.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(now),
		UserID:          input.UserID,
		Status:          domain.OrderStatusPending,
		Currency:        strings.ToUpper(input.Currency),
		ShippingAddress: input.ShippingAddress,
		ReservationID:   input.ReservationID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, in := range input.Items {
		item := domain.OrderItem{
			ID:          uuid.New().String(),
			OrderID:     order.ID,
			ProductID:   in.ProductID,
			VariantID:   in.VariantID,
			ProductName: in.ProductName,
			UnitPrice:   in.UnitPrice,
			Quantity:    in.Quantity,
		}
		order.Items = append(order.Items, item)
		order.TotalAmount += item.Subtotal()
	}

	if err := s.inventory.ConfirmReservation(ctx, input.ReservationID, order.ID); err != nil {
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}

	outbox, err := event.NewOutboxMessage(event.EventTypeOrderCreated, order, "")
	if err != nil {
		s.compensateReservation(ctx, order)
		return nil, err
	}

	if err := s.repo.CreateWithOutbox(ctx, order, outbox); err != nil {
		s.compensateReservation(ctx, order)
		return nil, err
	}

	s.logger.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", order.UserID,
		"total_amount", order.TotalAmount,
	)

	return order, nil
}

// compensateReservation returns confirmed stock after a failed order write.
// Best effort: failures are logged, the movement reference keeps a retried
// compensation idempotent.
func (s *OrderService) compensateReservation(ctx context.Context, order *domain.Order) {
	for _, item := range order.Items {
		err := s.inventory.ReturnStock(ctx, item.ProductID, item.VariantID, item.Quantity,
			"order creation failed", order.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to return stock after aborted order",
				"order_id", order.ID,
				"product_id", item.ProductID,
				"variant_id", item.VariantID,
				"quantity", item.Quantity,
				"error", err,
			)
		}
	}
}

// MarkPaid records a successful payment against the order. Idempotent for
// consumers: an order already paid yields Conflict, which callers treat as
// done.
func (s *OrderService) MarkPaid(ctx context.Context, orderID, paymentID string) (*domain.Order, error) {
	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	current.Status = domain.OrderStatusPaid
	current.PaymentID = paymentID

	outbox, err := event.NewOutboxMessage(event.EventTypeOrderPaid, current, "")
	if err != nil {
		return nil, err
	}

	order, _, err := s.repo.TransitionStatus(ctx, orderID,
		domain.SourcesFor(domain.OrderStatusPaid), domain.OrderStatusPaid,
		repository.StatusUpdate{
			PaymentID: &paymentID,
			Reason:    "payment captured",
			Outbox:    outbox,
		})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order paid", "order_id", orderID, "payment_id", paymentID)
	return order, nil
}

// MarkPaymentFailed moves a pending order to payment_failed. The order stays
// recoverable: a later successful payment can still move it to paid.
func (s *OrderService) MarkPaymentFailed(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	if reason == "" {
		reason = "payment failed"
	}
	order, _, err := s.repo.TransitionStatus(ctx, orderID,
		[]string{domain.OrderStatusPending}, domain.OrderStatusPaymentFailed,
		repository.StatusUpdate{Reason: reason})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order payment failed", "order_id", orderID, "reason", reason)
	return order, nil
}

// MarkRefunded moves a paid, processing or shipped order to refunded.
func (s *OrderService) MarkRefunded(ctx context.Context, orderID string) (*domain.Order, error) {
	order, _, err := s.repo.TransitionStatus(ctx, orderID,
		domain.SourcesFor(domain.OrderStatusRefunded), domain.OrderStatusRefunded,
		repository.StatusUpdate{Reason: "payment refunded"})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order refunded", "order_id", orderID)
	return order, nil
}

// UpdateOrderStatus applies a manual fulfilment transition. Only forward
// fulfilment states are reachable this way; payment-driven and cancellation
// transitions go through their dedicated operations.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, to string) (*domain.Order, error) {
	switch to {
	case domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered:
	default:
		if !domain.IsValidOrderStatus(to) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid order status: %s", to))
		}
		return nil, apperrors.InvalidInput(fmt.Sprintf("status %s cannot be set directly", to))
	}

	order, prev, err := s.repo.TransitionStatus(ctx, orderID,
		domain.SourcesFor(to), to,
		repository.StatusUpdate{Reason: "status updated"})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order status updated",
		"order_id", orderID, "from", prev, "to", to)
	return order, nil
}

// CancelOrder cancels an order that has not been paid yet. The cancellation
// event carries the reservation so the inventory service can release the held
// stock.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	if reason == "" {
		reason = "cancelled by user"
	}

	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	current.Status = domain.OrderStatusCancelled
	current.CancelReason = reason

	outbox, err := event.NewOutboxMessage(event.EventTypeOrderCancelled, current, reason)
	if err != nil {
		return nil, err
	}

	order, _, err := s.repo.TransitionStatus(ctx, orderID,
		[]string{domain.OrderStatusPending, domain.OrderStatusPaymentFailed},
		domain.OrderStatusCancelled,
		repository.StatusUpdate{
			CancelReason: &reason,
			Reason:       reason,
			Outbox:       outbox,
		})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order cancelled", "order_id", orderID, "reason", reason)
	return order, nil
}

// GetOrder retrieves an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("order id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// ListOrders returns a page of a user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string, page, perPage int) ([]domain.Order, int, error) {
	if userID == "" {
		return nil, 0, apperrors.InvalidInput("user id is required")
	}
	offset := (page - 1) * perPage
	return s.repo.ListByUserID(ctx, userID, offset, perPage)
}

// GetHistory returns the status trail for an order, oldest first.
func (s *OrderService) GetHistory(ctx context.Context, orderID string) ([]domain.StatusHistory, error) {
	if _, err := s.repo.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, orderID)
}

// newOrderNumber builds a human-readable order number, unique enough for
// support lookups. The UUID primary key remains the real identity.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
