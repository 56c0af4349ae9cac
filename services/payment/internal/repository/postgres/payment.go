package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quayside/commerce/pkg/database"
	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/services/payment/internal/domain"
	"github.com/quayside/commerce/services/payment/internal/repository"
)

// PaymentRepository implements repository.PaymentRepository using PostgreSQL.
type PaymentRepository struct {
	pool database.DBTX
}

// NewPaymentRepository creates a new PostgreSQL-backed payment repository.
func NewPaymentRepository(pool database.DBTX) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

const paymentColumns = `id, order_id, user_id, amount, currency, status, method,
			 provider_name, provider_payment_id, failure_reason, created_at, updated_at`

// Create inserts a new payment and its initial history row in one transaction.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create payment tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO payments (id, order_id, user_id, amount, currency, status, method, provider_name, provider_payment_id, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = tx.Exec(ctx, query,
		p.ID,
		p.OrderID,
		p.UserID,
		p.Amount,
		p.Currency,
		p.Status,
		p.Method,
		p.ProviderName,
		p.ProviderPayID,
		p.FailureReason,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := insertHistory(ctx, tx, p.ID, "", p.Status, "payment created"); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create payment tx: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment", id)
		}
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// GetByOrderID retrieves a payment by its order ID.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment for order", orderID)
		}
		return nil, fmt.Errorf("get payment by order id: %w", err)
	}
	return p, nil
}

// ListByUserID returns payments for a given user with pagination.
func (r *PaymentRepository) ListByUserID(ctx context.Context, userID string, offset, limit int) ([]domain.Payment, int, error) {
	query := `
		SELECT ` + paymentColumns + `, count(*) OVER() AS total_count
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments by user: %w", err)
	}
	defer rows.Close()

	var (
		payments   []domain.Payment
		totalCount int
	)

	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID,
			&p.OrderID,
			&p.UserID,
			&p.Amount,
			&p.Currency,
			&p.Status,
			&p.Method,
			&p.ProviderName,
			&p.ProviderPayID,
			&p.FailureReason,
			&p.CreatedAt,
			&p.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}

	if payments == nil {
		payments = []domain.Payment{}
	}

	return payments, totalCount, nil
}

// TransitionStatus moves the payment to `to` under a guarded CAS on the
// current status and appends the history row in the same transaction. The
// self-join surfaces the pre-transition status for the history trail and
// for callers that need to revert.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, from []string, to string, update repository.StatusUpdate) (*domain.Payment, string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE payments p
		SET status = $2,
		    provider_payment_id = COALESCE($3, p.provider_payment_id),
		    failure_reason = COALESCE($4, p.failure_reason),
		    updated_at = NOW()
		FROM payments old
		WHERE p.id = $1 AND old.id = p.id AND p.status = ANY($5)
		RETURNING p.id, p.order_id, p.user_id, p.amount, p.currency, p.status, p.method,
		          p.provider_name, p.provider_payment_id, p.failure_reason, p.created_at, p.updated_at,
		          old.status`

	var (
		p          domain.Payment
		prevStatus string
	)
	err = tx.QueryRow(ctx, query, id, to, update.ProviderPayID, update.FailureReason, from).Scan(
		&p.ID,
		&p.OrderID,
		&p.UserID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.Method,
		&p.ProviderName,
		&p.ProviderPayID,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
		&prevStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", r.classifyTransitionFailure(ctx, id, to)
		}
		return nil, "", fmt.Errorf("transition payment status: %w", err)
	}

	if err := insertHistory(ctx, tx, id, prevStatus, to, update.Reason); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit transition tx: %w", err)
	}

	return &p, prevStatus, nil
}

// classifyTransitionFailure distinguishes a missing payment from a guarded
// CAS losing to the current state.
func (r *PaymentRepository) classifyTransitionFailure(ctx context.Context, id, to string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM payments WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("payment", id)
		}
		return fmt.Errorf("classify transition failure: %w", err)
	}
	return apperrors.Conflict(fmt.Sprintf("payment %s is %s, cannot transition to %s", id, status, to))
}

// ListHistory returns the status trail for a payment, oldest first.
func (r *PaymentRepository) ListHistory(ctx context.Context, paymentID string) ([]domain.StatusHistory, error) {
	query := `
		SELECT id, payment_id, previous_status, new_status, reason, created_at
		FROM payment_status_history
		WHERE payment_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list payment history: %w", err)
	}
	defer rows.Close()

	var history []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		if err := rows.Scan(&h.ID, &h.PaymentID, &h.PreviousStatus, &h.NewStatus, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	if history == nil {
		history = []domain.StatusHistory{}
	}

	return history, nil
}

// CreateRefund inserts a new refund into the database.
func (r *PaymentRepository) CreateRefund(ctx context.Context, ref *domain.Refund) error {
	query := `
		INSERT INTO refunds (id, payment_id, amount, currency, status, reason, provider_refund_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		ref.ID,
		ref.PaymentID,
		ref.Amount,
		ref.Currency,
		ref.Status,
		ref.Reason,
		ref.ProviderRefID,
		ref.CreatedAt,
		ref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}

	return nil
}

// GetRefundByID retrieves a refund by its ID.
func (r *PaymentRepository) GetRefundByID(ctx context.Context, id string) (*domain.Refund, error) {
	query := `
		SELECT id, payment_id, amount, currency, status, reason, provider_refund_id, created_at, updated_at
		FROM refunds
		WHERE id = $1`

	ref, err := scanRefund(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("refund", id)
		}
		return nil, fmt.Errorf("get refund by id: %w", err)
	}
	return ref, nil
}

// ListRefundsByPaymentID returns all refunds for a given payment.
func (r *PaymentRepository) ListRefundsByPaymentID(ctx context.Context, paymentID string) ([]domain.Refund, error) {
	query := `
		SELECT id, payment_id, amount, currency, status, reason, provider_refund_id, created_at, updated_at
		FROM refunds
		WHERE payment_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list refunds by payment: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		var ref domain.Refund
		if err := rows.Scan(
			&ref.ID,
			&ref.PaymentID,
			&ref.Amount,
			&ref.Currency,
			&ref.Status,
			&ref.Reason,
			&ref.ProviderRefID,
			&ref.CreatedAt,
			&ref.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan refund row: %w", err)
		}
		refunds = append(refunds, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund rows: %w", err)
	}

	if refunds == nil {
		refunds = []domain.Refund{}
	}

	return refunds, nil
}

// UpdateRefund modifies an existing refund in the database.
func (r *PaymentRepository) UpdateRefund(ctx context.Context, ref *domain.Refund) error {
	ref.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE refunds
		SET status = $1, provider_refund_id = $2, updated_at = $3
		WHERE id = $4`

	ct, err := r.pool.Exec(ctx, query,
		ref.Status,
		ref.ProviderRefID,
		ref.UpdatedAt,
		ref.ID,
	)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("refund", ref.ID)
	}

	return nil
}

// SumCompletedRefunds returns the total completed refund amount for a payment.
func (r *PaymentRepository) SumCompletedRefunds(ctx context.Context, paymentID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE payment_id = $1 AND status = 'completed'`

	var total int64
	if err := r.pool.QueryRow(ctx, query, paymentID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum completed refunds: %w", err)
	}
	return total, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, paymentID, prevStatus, newStatus, reason string) error {
	query := `
		INSERT INTO payment_status_history (id, payment_id, previous_status, new_status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	_, err := tx.Exec(ctx, query, uuid.New().String(), paymentID, prevStatus, newStatus, reason)
	if err != nil {
		return fmt.Errorf("insert payment status history: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.UserID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.Method,
		&p.ProviderName,
		&p.ProviderPayID,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanRefund(row pgx.Row) (*domain.Refund, error) {
	var ref domain.Refund
	err := row.Scan(
		&ref.ID,
		&ref.PaymentID,
		&ref.Amount,
		&ref.Currency,
		&ref.Status,
		&ref.Reason,
		&ref.ProviderRefID,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
