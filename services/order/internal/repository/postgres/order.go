package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quayside/commerce/pkg/database"
	apperrors "github.com/quayside/commerce/pkg/errors"
	"github.com/quayside/commerce/services/order/internal/domain"
	"github.com/quayside/commerce/services/order/internal/repository"
)

// OrderRepository implements repository.OrderRepository and
// repository.OutboxRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, order_number, user_id, status, total_amount, currency,
			 shipping_address, payment_id, reservation_id, cancel_reason, created_at, updated_at`

// CreateWithOutbox inserts the order, its items, the initial history row and
// the outbox row in one transaction. Publishing is left to the dispatcher so
// nothing is announced unless the order committed.
func (r *OrderRepository) CreateWithOutbox(ctx context.Context, o *domain.Order, outbox *domain.OutboxMessage) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO orders (id, order_number, user_id, status, total_amount, currency, shipping_address, payment_id, reservation_id, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = tx.Exec(ctx, query,
		o.ID,
		o.OrderNumber,
		o.UserID,
		o.Status,
		o.TotalAmount,
		o.Currency,
		addr,
		o.PaymentID,
		o.ReservationID,
		o.CancelReason,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, variant_id, product_name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.OrderID = o.ID
		if _, err := tx.Exec(ctx, itemQuery,
			item.ID, item.OrderID, item.ProductID, item.VariantID,
			item.ProductName, item.UnitPrice, item.Quantity,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := insertHistory(ctx, tx, o.ID, "", o.Status, "order created"); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, outbox); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create order tx: %w", err)
	}

	return nil
}

// GetByID retrieves an order and its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return o, nil
}

func (r *OrderRepository) listItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, variant_id, product_name, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID,
			&item.ProductName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

// ListByUserID returns orders for a user, newest first. Items are not loaded
// for listings.
func (r *OrderRepository) ListByUserID(ctx context.Context, userID string, offset, limit int) ([]domain.Order, int, error) {
	query := `
		SELECT ` + orderColumns + `, count(*) OVER() AS total_count
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders by user: %w", err)
	}
	defer rows.Close()

	var (
		orders     []domain.Order
		totalCount int
	)

	for rows.Next() {
		var (
			o    domain.Order
			addr []byte
		)
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.TotalAmount, &o.Currency,
			&addr, &o.PaymentID, &o.ReservationID, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
			return nil, 0, fmt.Errorf("unmarshal shipping address: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if orders == nil {
		orders = []domain.Order{}
	}

	return orders, totalCount, nil
}

// TransitionStatus moves the order to `to` under a guarded CAS on the current
// status and appends the history row, plus any outbox row, in the same
// transaction. The self-join surfaces the pre-transition status.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from []string, to string, update repository.StatusUpdate) (*domain.Order, string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE orders o
		SET status = $2,
		    payment_id = COALESCE($3, o.payment_id),
		    cancel_reason = COALESCE($4, o.cancel_reason),
		    updated_at = NOW()
		FROM orders old
		WHERE o.id = $1 AND old.id = o.id AND o.status = ANY($5)
		RETURNING o.id, o.order_number, o.user_id, o.status, o.total_amount, o.currency,
		          o.shipping_address, o.payment_id, o.reservation_id, o.cancel_reason, o.created_at, o.updated_at,
		          old.status`

	var (
		o          domain.Order
		addr       []byte
		prevStatus string
	)
	err = tx.QueryRow(ctx, query, id, to, update.PaymentID, update.CancelReason, from).Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.TotalAmount, &o.Currency,
		&addr, &o.PaymentID, &o.ReservationID, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
		&prevStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", r.classifyTransitionFailure(ctx, id, to)
		}
		return nil, "", fmt.Errorf("transition order status: %w", err)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, "", fmt.Errorf("unmarshal shipping address: %w", err)
	}

	if err := insertHistory(ctx, tx, id, prevStatus, to, update.Reason); err != nil {
		return nil, "", err
	}

	if update.Outbox != nil {
		if err := insertOutbox(ctx, tx, update.Outbox); err != nil {
			return nil, "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit transition tx: %w", err)
	}

	return &o, prevStatus, nil
}

// classifyTransitionFailure distinguishes a missing order from a guarded CAS
// losing to the current state.
func (r *OrderRepository) classifyTransitionFailure(ctx context.Context, id, to string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("order", id)
		}
		return fmt.Errorf("classify transition failure: %w", err)
	}
	return apperrors.Conflict(fmt.Sprintf("order %s is %s, cannot transition to %s", id, status, to))
}

// ListHistory returns the status trail for an order, oldest first.
func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.StatusHistory, error) {
	query := `
		SELECT id, order_id, previous_status, new_status, reason, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	defer rows.Close()

	var history []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.PreviousStatus, &h.NewStatus, &h.Reason, &h.CreatedAt); err != nil {
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

// FetchUnprocessed returns up to limit unpublished outbox rows, oldest first.
func (r *OrderRepository) FetchUnprocessed(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	query := `
		SELECT id, order_id, event_type, payload, processed, processed_at, created_at
		FROM order_events
		WHERE processed = FALSE
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed outbox rows: %w", err)
	}
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.OrderID, &m.EventType, &m.Payload,
			&m.Processed, &m.ProcessedAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return messages, nil
}

// MarkProcessed flags an outbox row as published.
func (r *OrderRepository) MarkProcessed(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE order_events SET processed = TRUE, processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox row processed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("outbox message", id)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID, prevStatus, newStatus, reason string) error {
	query := `
		INSERT INTO order_status_history (id, order_id, previous_status, new_status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	_, err := tx.Exec(ctx, query, uuid.New().String(), orderID, prevStatus, newStatus, reason)
	if err != nil {
		return fmt.Errorf("insert order status history: %w", err)
	}
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, m *domain.OutboxMessage) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO order_events (id, order_id, event_type, payload, processed, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())`

	_, err := tx.Exec(ctx, query, m.ID, m.OrderID, m.EventType, []byte(m.Payload))
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o    domain.Order
		addr []byte
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.TotalAmount, &o.Currency,
		&addr, &o.PaymentID, &o.ReservationID, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return &o, nil
}
