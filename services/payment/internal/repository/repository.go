package repository

import (
	"context"

	"github.com/quayside/commerce/services/payment/internal/domain"
)

// StatusUpdate carries the optional payment fields written alongside a
// status transition.
type StatusUpdate struct {
	ProviderPayID *string
	FailureReason *string
	// Reason is recorded on the status history row.
	Reason string
}

// PaymentRepository defines the interface for payment persistence operations.
type PaymentRepository interface {
	// Create inserts a new payment and its initial status history row in
	// one transaction.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByOrderID retrieves a payment by the associated order ID.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)

	// ListByUserID returns payments for a given user with pagination support.
	ListByUserID(ctx context.Context, userID string, offset, limit int) ([]domain.Payment, int, error)

	// TransitionStatus moves the payment to status `to` if and only if its
	// current status is one of `from`, appending a history row in the same
	// transaction. Returns the updated payment and the status the payment
	// held before the transition. Zero rows matched yields NotFound for a
	// missing payment and Conflict otherwise.
	TransitionStatus(ctx context.Context, id string, from []string, to string, update StatusUpdate) (*domain.Payment, string, error)

	// ListHistory returns the append-only status trail for a payment,
	// oldest first.
	ListHistory(ctx context.Context, paymentID string) ([]domain.StatusHistory, error)

	// CreateRefund inserts a new refund into the store.
	CreateRefund(ctx context.Context, refund *domain.Refund) error

	// GetRefundByID retrieves a refund by its unique identifier.
	GetRefundByID(ctx context.Context, id string) (*domain.Refund, error)

	// ListRefundsByPaymentID returns all refunds for a given payment.
	ListRefundsByPaymentID(ctx context.Context, paymentID string) ([]domain.Refund, error)

	// UpdateRefund modifies an existing refund in the store.
	UpdateRefund(ctx context.Context, refund *domain.Refund) error

	// SumCompletedRefunds returns the total completed refund amount for a
	// payment in minor units.
	SumCompletedRefunds(ctx context.Context, paymentID string) (int64, error)
}
