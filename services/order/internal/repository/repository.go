package repository

import (
	"context"

	"github.com/quayside/commerce/services/order/internal/domain"
)

// StatusUpdate carries the optional fields written alongside a status
// transition. Reason is recorded on the history row. Outbox, when set, is
// inserted in the same transaction as the transition.
type StatusUpdate struct {
	PaymentID    *string
	CancelReason *string
	Reason       string
	Outbox       *domain.OutboxMessage
}

// OrderRepository defines the persistence interface for orders and their
// outbox. All multi-row writes happen in a single transaction.
type OrderRepository interface {
	// CreateWithOutbox inserts the order, its items, the initial history row
	// and the order_created outbox row in one transaction.
	CreateWithOutbox(ctx context.Context, order *domain.Order, outbox *domain.OutboxMessage) error

	// GetByID returns the order with its items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ListByUserID returns orders for a user, newest first, with the total count.
	ListByUserID(ctx context.Context, userID string, offset, limit int) ([]domain.Order, int, error)

	// TransitionStatus moves the order to `to` when its current status is in
	// `from`, appending the history row and any outbox row in the same
	// transaction. It returns the updated order and the pre-transition
	// status. Zero rows matched yields NotFound for a missing order and
	// Conflict otherwise.
	TransitionStatus(ctx context.Context, id string, from []string, to string, update StatusUpdate) (*domain.Order, string, error)

	// ListHistory returns the status trail for an order, oldest first.
	ListHistory(ctx context.Context, orderID string) ([]domain.StatusHistory, error)
}

// OutboxRepository is the dispatcher's view of the order_events table.
type OutboxRepository interface {
	// FetchUnprocessed returns up to limit unpublished outbox rows, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]domain.OutboxMessage, error)

	// MarkProcessed flags an outbox row as published.
	MarkProcessed(ctx context.Context, id string) error
}
