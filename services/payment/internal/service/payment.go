package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/services/payment/internal/domain"
	"github.com/quayside/commerce/services/payment/internal/provider"
	"github.com/quayside/commerce/services/payment/internal/repository"
)

// EventPublisher publishes payment lifecycle events.
type EventPublisher interface {
	PublishPaymentCompleted(ctx context.Context, p *domain.Payment) error
	PublishPaymentFailed(ctx context.Context, p *domain.Payment, canRetry bool) error
	PublishPaymentRefunded(ctx context.Context, p *domain.Payment, refund *domain.Refund, totalRefunded int64) error
}

// PaymentService coordinates payment capture, cancellation and refunds.
type PaymentService struct {
	repo      repository.PaymentRepository
	provider  provider.Provider
	publisher EventPublisher
	logger    *slog.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(repo repository.PaymentRepository, prov provider.Provider, publisher EventPublisher, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		repo:      repo,
		provider:  prov,
		publisher: publisher,
		logger:    logger,
	}
}

// CreatePaymentInput carries the fields needed to create a payment.
type CreatePaymentInput struct {
	OrderID  string
	UserID   string
	Amount   int64
	Currency string
	Method   string
}

func (in CreatePaymentInput) validate() error {
	if in.OrderID == "" {
		return apperrors.InvalidInput("order id is required")
	}
	if in.UserID == "" {
		return apperrors.InvalidInput("user id is required")
	}
	if in.Amount <= 0 {
		return apperrors.InvalidInput("amount must be positive")
	}
	if len(in.Currency) != 3 {
		return apperrors.InvalidInput("currency must be a 3-letter code")
	}
	if !domain.IsValidPaymentMethod(in.Method) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid payment method: %s", in.Method))
	}
	return nil
}

// CreatePayment registers a pending payment for an order. Each order has at
// most one payment.
func (s *PaymentService) CreatePayment(ctx context.Context, input CreatePaymentInput) (*domain.Payment, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByOrderID(ctx, input.OrderID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing payment: %w", err)
	}
	if existing != nil {
		return nil, apperrors.Conflict(fmt.Sprintf("payment already exists for order %s", input.OrderID))
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:           uuid.New().String(),
		OrderID:      input.OrderID,
		UserID:       input.UserID,
		Amount:       input.Amount,
		Currency:     input.Currency,
		Status:       domain.PaymentStatusPending,
		Method:       input.Method,
		ProviderName: s.provider.Name(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.logger.InfoContext(ctx, "payment created",
		slog.String("payment_id", payment.ID),
		slog.String("order_id", payment.OrderID),
		slog.Int64("amount", payment.Amount),
	)

	return payment, nil
}

// CapturePayment charges the payment through the provider and records the
// outcome. The payment is moved to processing for the duration of the
// provider call so concurrent captures of the same payment lose the guarded
// CAS before any money moves. A declined charge moves the payment to failed
// and surfaces a payment error; a provider outage reverts it to its prior
// state so the capture can be retried.
func (s *PaymentService) CapturePayment(ctx context.Context, id string) (*domain.Payment, error) {
	payment, prevStatus, err := s.repo.TransitionStatus(ctx, id,
		domain.CaptureableStatuses(), domain.PaymentStatusProcessing,
		repository.StatusUpdate{Reason: "capture started"})
	if err != nil {
		return nil, err
	}

	result, err := s.provider.Charge(ctx, &provider.ChargeInput{
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Method:      payment.Method,
		Description: fmt.Sprintf("payment for order %s", payment.OrderID),
	})
	if err != nil {
		s.revertTransient(ctx, id, domain.PaymentStatusProcessing, prevStatus, "capture aborted")
		return nil, fmt.Errorf("charge payment %s: %w", id, err)
	}

	if result.Status == provider.ResultFailed {
		return nil, s.recordCaptureFailure(ctx, id, result.FailureReason, result.CanRetry)
	}

	updated, _, err := s.repo.TransitionStatus(ctx, id,
		[]string{domain.PaymentStatusProcessing}, domain.PaymentStatusCompleted,
		repository.StatusUpdate{ProviderPayID: &result.ProviderPaymentID, Reason: "payment captured"})
	if err != nil {
		return nil, fmt.Errorf("complete payment %s: %w", id, err)
	}

	if err := s.publisher.PublishPaymentCompleted(ctx, updated); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish payment.completed event",
			slog.String("payment_id", id), slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "payment captured",
		slog.String("payment_id", id),
		slog.String("provider_payment_id", result.ProviderPaymentID),
	)

	return updated, nil
}

func (s *PaymentService) recordCaptureFailure(ctx context.Context, id, reason string, canRetry bool) error {
	failed, _, err := s.repo.TransitionStatus(ctx, id,
		[]string{domain.PaymentStatusProcessing}, domain.PaymentStatusFailed,
		repository.StatusUpdate{FailureReason: &reason, Reason: "provider declined"})
	if err != nil {
		return fmt.Errorf("record capture failure for payment %s: %w", id, err)
	}

	if err := s.publisher.PublishPaymentFailed(ctx, failed, canRetry); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish payment.failed event",
			slog.String("payment_id", id), slog.String("error", err.Error()))
	}

	s.logger.WarnContext(ctx, "payment declined",
		slog.String("payment_id", id),
		slog.String("failure_reason", reason),
	)

	return apperrors.PaymentFailed(reason)
}

// CancelPayment cancels a payment that has not been captured yet.
func (s *PaymentService) CancelPayment(ctx context.Context, id, reason string) (*domain.Payment, error) {
	if reason == "" {
		reason = "cancelled by user"
	}

	cancelled, _, err := s.repo.TransitionStatus(ctx, id,
		domain.CancellableStatuses(), domain.PaymentStatusCancelled,
		repository.StatusUpdate{Reason: reason})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment cancelled",
		slog.String("payment_id", id),
		slog.String("reason", reason),
	)

	return cancelled, nil
}

// CreateRefundInput carries the fields needed to start a refund.
type CreateRefundInput struct {
	Amount int64
	Reason string
}

func (in CreateRefundInput) validate() error {
	if in.Amount <= 0 {
		return apperrors.InvalidInput("refund amount must be positive")
	}
	if in.Reason == "" {
		return apperrors.InvalidInput("refund reason is required")
	}
	return nil
}

// CreateRefund refunds part or all of a captured payment. The payment is
// moved to refunding for the duration of the provider call so concurrent
// refunds against the same payment are rejected with a conflict. The sum of
// completed refunds never exceeds the captured amount.
func (s *PaymentService) CreateRefund(ctx context.Context, paymentID string, input CreateRefundInput) (*domain.Refund, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	payment, prevStatus, err := s.repo.TransitionStatus(ctx, paymentID,
		domain.RefundableStatuses(), domain.PaymentStatusRefunding,
		repository.StatusUpdate{Reason: "refund started"})
	if err != nil {
		return nil, err
	}

	refunded, err := s.repo.SumCompletedRefunds(ctx, paymentID)
	if err != nil {
		s.revertTransient(ctx, paymentID, domain.PaymentStatusRefunding, prevStatus, "refund aborted")
		return nil, fmt.Errorf("sum refunds for payment %s: %w", paymentID, err)
	}

	if refunded+input.Amount > payment.Amount {
		s.revertTransient(ctx, paymentID, domain.PaymentStatusRefunding, prevStatus, "refund aborted")
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"refund amount %d exceeds remaining refundable balance %d", input.Amount, payment.Amount-refunded))
	}

	now := time.Now().UTC()
	refund := &domain.Refund{
		ID:        uuid.New().String(),
		PaymentID: paymentID,
		Amount:    input.Amount,
		Currency:  payment.Currency,
		Status:    domain.RefundStatusPending,
		Reason:    input.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateRefund(ctx, refund); err != nil {
		s.revertTransient(ctx, paymentID, domain.PaymentStatusRefunding, prevStatus, "refund aborted")
		return nil, fmt.Errorf("create refund: %w", err)
	}

	result, err := s.provider.Refund(ctx, &provider.RefundInput{
		ProviderPaymentID: payment.ProviderPayID,
		Amount:            input.Amount,
		Currency:          payment.Currency,
		Reason:            input.Reason,
	})
	if err != nil {
		s.markRefundFailed(ctx, refund)
		s.revertTransient(ctx, paymentID, domain.PaymentStatusRefunding, prevStatus, "refund failed")
		return nil, fmt.Errorf("refund payment %s: %w", paymentID, err)
	}

	if result.Status == provider.ResultFailed {
		s.markRefundFailed(ctx, refund)
		s.revertTransient(ctx, paymentID, domain.PaymentStatusRefunding, prevStatus, "refund declined")
		return nil, apperrors.PaymentFailed(result.FailureReason)
	}

	refund.Status = domain.RefundStatusCompleted
	refund.ProviderRefID = result.ProviderRefundID
	if err := s.repo.UpdateRefund(ctx, refund); err != nil {
		return nil, fmt.Errorf("complete refund %s: %w", refund.ID, err)
	}

	total := refunded + input.Amount
	finalStatus := domain.PaymentStatusPartiallyRefunded
	if total == payment.Amount {
		finalStatus = domain.PaymentStatusRefunded
	}

	updated, _, err := s.repo.TransitionStatus(ctx, paymentID,
		[]string{domain.PaymentStatusRefunding}, finalStatus,
		repository.StatusUpdate{Reason: "refund completed"})
	if err != nil {
		return nil, fmt.Errorf("finish refund for payment %s: %w", paymentID, err)
	}

	if err := s.publisher.PublishPaymentRefunded(ctx, updated, refund, total); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish payment.refunded event",
			slog.String("payment_id", paymentID), slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "refund completed",
		slog.String("payment_id", paymentID),
		slog.String("refund_id", refund.ID),
		slog.Int64("amount", refund.Amount),
		slog.String("payment_status", finalStatus),
	)

	return refund, nil
}

func (s *PaymentService) markRefundFailed(ctx context.Context, refund *domain.Refund) {
	refund.Status = domain.RefundStatusFailed
	if err := s.repo.UpdateRefund(ctx, refund); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark refund as failed",
			slog.String("refund_id", refund.ID), slog.String("error", err.Error()))
	}
}

// revertTransient moves a payment out of a transient in-flight state
// (processing, refunding) back to where it was before the provider call.
func (s *PaymentService) revertTransient(ctx context.Context, paymentID, transient, prevStatus, reason string) {
	if _, _, err := s.repo.TransitionStatus(ctx, paymentID,
		[]string{transient}, prevStatus,
		repository.StatusUpdate{Reason: reason}); err != nil {
		s.logger.ErrorContext(ctx, "failed to revert in-flight payment",
			slog.String("payment_id", paymentID),
			slog.String("transient_status", transient),
			slog.String("previous_status", prevStatus),
			slog.String("error", err.Error()),
		)
	}
}

// GetPayment retrieves a payment by ID.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPaymentByOrder retrieves the payment for an order.
func (s *PaymentService) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// ListPaymentsByUser returns a page of payments for a user.
func (s *PaymentService) ListPaymentsByUser(ctx context.Context, userID string, page, perPage int) ([]domain.Payment, int, error) {
	if userID == "" {
		return nil, 0, apperrors.InvalidInput("user id is required")
	}
	offset := (page - 1) * perPage
	return s.repo.ListByUserID(ctx, userID, offset, perPage)
}

// ListRefunds returns all refunds for a payment.
func (s *PaymentService) ListRefunds(ctx context.Context, paymentID string) ([]domain.Refund, error) {
	if _, err := s.repo.GetByID(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListRefundsByPaymentID(ctx, paymentID)
}

// GetHistory returns the status trail for a payment, oldest first.
func (s *PaymentService) GetHistory(ctx context.Context, paymentID string) ([]domain.StatusHistory, error) {
	if _, err := s.repo.GetByID(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, paymentID)
}
