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
	"github.com/quayside/commerce/services/inventory/internal/domain"
	"github.com/quayside/commerce/services/inventory/internal/repository"
)

// InventoryRepository implements StockRepository and ReservationRepository
// using PostgreSQL.
type InventoryRepository struct {
	pool database.DBTX
}

// NewInventoryRepository creates a new PostgreSQL-backed inventory repository.
func NewInventoryRepository(pool database.DBTX) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// ---------------------------------------------------------------------------
// StockRepository implementation
// ---------------------------------------------------------------------------

// GetByProductVariant retrieves stock for a specific product variant.
func (r *InventoryRepository) GetByProductVariant(ctx context.Context, productID, variantID string) (*domain.Stock, error) {
	query := `
		SELECT id, product_id, variant_id, quantity, reserved, low_stock_threshold, updated_at
		FROM stock
		WHERE product_id = $1 AND variant_id = $2`

	var s domain.Stock
	err := r.pool.QueryRow(ctx, query, productID, variantID).Scan(
		&s.ID,
		&s.ProductID,
		&s.VariantID,
		&s.Quantity,
		&s.Reserved,
		&s.LowStockThreshold,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("stock", productID+"/"+variantID)
		}
		return nil, fmt.Errorf("get stock by product variant: %w", err)
	}

	return &s, nil
}

// CreateStock inserts a new stock record or updates it if it already exists
// (idempotent). The update is guarded so re-initializing below the current
// reserved holds cannot drive quantity under reserved; a guarded zero-row
// upsert is reported as a conflict. It returns the resulting stock row.
func (r *InventoryRepository) CreateStock(ctx context.Context, stock *domain.Stock) (*domain.Stock, error) {
	query := `
		INSERT INTO stock (id, product_id, variant_id, quantity, reserved, low_stock_threshold, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id, variant_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			updated_at = EXCLUDED.updated_at
		WHERE stock.reserved <= EXCLUDED.quantity
		RETURNING id, product_id, variant_id, quantity, reserved, low_stock_threshold, updated_at`

	var result domain.Stock
	err := r.pool.QueryRow(ctx, query,
		stock.ID,
		stock.ProductID,
		stock.VariantID,
		stock.Quantity,
		stock.Reserved,
		stock.LowStockThreshold,
		stock.UpdatedAt,
	).Scan(
		&result.ID,
		&result.ProductID,
		&result.VariantID,
		&result.Quantity,
		&result.Reserved,
		&result.LowStockThreshold,
		&result.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Conflict(fmt.Sprintf(
				"cannot set stock for %s/%s below its reserved holds", stock.ProductID, stock.VariantID))
		}
		return nil, fmt.Errorf("create stock: %w", err)
	}

	return &result, nil
}

// AdjustQuantity applies delta to the stock quantity and appends one ledger
// movement, all in one transaction. The update is a single conditional UPDATE
// whose WHERE clause enforces quantity+delta >= reserved and >= 0, so two
// concurrent decrements can never both consume the last unit. When the
// (referenceID, movementType) pair is already in the ledger for this variant,
// the transaction is rolled back and the adjustment reported as a duplicate.
func (r *InventoryRepository) AdjustQuantity(ctx context.Context, productID, variantID string, delta int, movementType, reason string, referenceID *string) (*repository.AdjustResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin adjust transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updateQuery := `
		UPDATE stock
		SET quantity = quantity + $1, updated_at = NOW()
		WHERE product_id = $2 AND variant_id = $3
		  AND quantity + $1 >= reserved
		  AND quantity + $1 >= 0
		RETURNING id, quantity, reserved, low_stock_threshold, updated_at`

	var s domain.Stock
	s.ProductID = productID
	s.VariantID = variantID
	err = tx.QueryRow(ctx, updateQuery, delta, productID, variantID).Scan(
		&s.ID,
		&s.Quantity,
		&s.Reserved,
		&s.LowStockThreshold,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyAdjustFailure(ctx, productID, variantID, delta)
		}
		return nil, fmt.Errorf("adjust stock quantity: %w", err)
	}

	movement := &domain.StockMovement{
		ID:               uuid.New().String(),
		ProductID:        productID,
		VariantID:        variantID,
		MovementType:     movementType,
		QuantityChange:   delta,
		Reason:           reason,
		ReferenceID:      referenceID,
		PreviousQuantity: s.Quantity - delta,
		NewQuantity:      s.Quantity,
	}

	movementQuery := `
		INSERT INTO stock_movements
			(id, product_id, variant_id, movement_type, quantity_change, reason, reference_id, previous_quantity, new_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (product_id, variant_id, reference_id, movement_type) WHERE reference_id IS NOT NULL DO NOTHING
		RETURNING created_at`

	err = tx.QueryRow(ctx, movementQuery,
		movement.ID,
		movement.ProductID,
		movement.VariantID,
		movement.MovementType,
		movement.QuantityChange,
		movement.Reason,
		movement.ReferenceID,
		movement.PreviousQuantity,
		movement.NewQuantity,
	).Scan(&movement.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Ledger already holds this (reference, type) pair. Roll back
			// the quantity change and report the current counters untouched.
			_ = tx.Rollback(ctx)
			stock, getErr := r.GetByProductVariant(ctx, productID, variantID)
			if getErr != nil {
				return nil, getErr
			}
			return &repository.AdjustResult{Stock: stock, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("insert stock movement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit adjust transaction: %w", err)
	}

	return &repository.AdjustResult{Stock: &s, Movement: movement}, nil
}

// classifyAdjustFailure distinguishes a missing stock row from a conditional
// update rejected for insufficient stock.
func (r *InventoryRepository) classifyAdjustFailure(ctx context.Context, productID, variantID string, delta int) error {
	var quantity, reserved int
	query := `SELECT quantity, reserved FROM stock WHERE product_id = $1 AND variant_id = $2`
	err := r.pool.QueryRow(ctx, query, productID, variantID).Scan(&quantity, &reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("stock", productID+"/"+variantID)
		}
		return fmt.Errorf("classify adjust failure: %w", err)
	}
	return apperrors.InsufficientStock(fmt.Sprintf(
		"cannot adjust product %s variant %s by %d: quantity %d, reserved %d",
		productID, variantID, delta, quantity, reserved,
	))
}

// ListLowStock returns stock items where available quantity is at or below
// the low stock threshold.
func (r *InventoryRepository) ListLowStock(ctx context.Context, page, perPage int) ([]domain.Stock, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	offset := (page - 1) * perPage

	query := `
		SELECT id, product_id, variant_id, quantity, reserved, low_stock_threshold, updated_at,
			   count(*) OVER() AS total_count
		FROM stock
		WHERE (quantity - reserved) <= low_stock_threshold
		ORDER BY (quantity - reserved) ASC, updated_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	var (
		stocks     []domain.Stock
		totalCount int
	)

	for rows.Next() {
		var s domain.Stock
		if err := rows.Scan(
			&s.ID,
			&s.ProductID,
			&s.VariantID,
			&s.Quantity,
			&s.Reserved,
			&s.LowStockThreshold,
			&s.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan low stock row: %w", err)
		}
		stocks = append(stocks, s)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate low stock rows: %w", err)
	}

	if stocks == nil {
		stocks = []domain.Stock{}
	}

	return stocks, totalCount, nil
}

// ListMovements returns the ledger entries for a product variant, newest first.
func (r *InventoryRepository) ListMovements(ctx context.Context, productID, variantID string, page, perPage int) ([]domain.StockMovement, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	offset := (page - 1) * perPage

	query := `
		SELECT id, product_id, variant_id, movement_type, quantity_change, reason, reference_id,
			   previous_quantity, new_quantity, created_at,
			   count(*) OVER() AS total_count
		FROM stock_movements
		WHERE product_id = $1 AND variant_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, productID, variantID, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	var (
		movements  []domain.StockMovement
		totalCount int
	)

	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(
			&m.ID,
			&m.ProductID,
			&m.VariantID,
			&m.MovementType,
			&m.QuantityChange,
			&m.Reason,
			&m.ReferenceID,
			&m.PreviousQuantity,
			&m.NewQuantity,
			&m.CreatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan stock movement row: %w", err)
		}
		movements = append(movements, m)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate stock movement rows: %w", err)
	}

	if movements == nil {
		movements = []domain.StockMovement{}
	}

	return movements, totalCount, nil
}

// ---------------------------------------------------------------------------
// ReservationRepository implementation
// ---------------------------------------------------------------------------

// CreateWithHolds inserts the reservation and its items, incrementing the
// reserved count per item. Each increment is a conditional UPDATE guarded by
// quantity - reserved >= wanted, so when the last unit races only one
// transaction gets it; the loser rolls back entirely.
func (r *InventoryRepository) CreateWithHolds(ctx context.Context, reservation *domain.Reservation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reservation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	holdQuery := `
		UPDATE stock
		SET reserved = reserved + $1, updated_at = NOW()
		WHERE product_id = $2 AND variant_id = $3
		  AND quantity - reserved >= $1`

	for _, item := range reservation.Items {
		ct, err := tx.Exec(ctx, holdQuery, item.Quantity, item.ProductID, item.VariantID)
		if err != nil {
			return fmt.Errorf("hold stock for product %s variant %s: %w", item.ProductID, item.VariantID, err)
		}
		if ct.RowsAffected() == 0 {
			return r.classifyHoldFailure(ctx, item)
		}
	}

	insertQuery := `
		INSERT INTO reservations (id, owner_id, owner_type, session_id, status, reference_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.Exec(ctx, insertQuery,
		reservation.ID,
		reservation.OwnerID,
		reservation.OwnerType,
		reservation.SessionID,
		reservation.Status,
		reservation.ReferenceID,
		reservation.ExpiresAt,
		reservation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}

	itemQuery := `
		INSERT INTO reservation_items (id, reservation_id, product_id, variant_id, quantity)
		VALUES ($1, $2, $3, $4, $5)`

	for i := range reservation.Items {
		item := &reservation.Items[i]
		_, err = tx.Exec(ctx, itemQuery,
			item.ID,
			reservation.ID,
			item.ProductID,
			item.VariantID,
			item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("create reservation item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reservation transaction: %w", err)
	}

	return nil
}

// classifyHoldFailure distinguishes a missing stock row from insufficient
// available quantity.
func (r *InventoryRepository) classifyHoldFailure(ctx context.Context, item domain.ReservationItem) error {
	var quantity, reserved int
	query := `SELECT quantity, reserved FROM stock WHERE product_id = $1 AND variant_id = $2`
	err := r.pool.QueryRow(ctx, query, item.ProductID, item.VariantID).Scan(&quantity, &reserved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("stock", item.ProductID+"/"+item.VariantID)
		}
		return fmt.Errorf("classify hold failure: %w", err)
	}
	return apperrors.InsufficientStock(fmt.Sprintf(
		"insufficient stock for product %s variant %s: requested %d, available %d",
		item.ProductID, item.VariantID, item.Quantity, quantity-reserved,
	))
}

// GetByID retrieves a reservation with its items.
func (r *InventoryRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	query := `
		SELECT id, owner_id, owner_type, session_id, status, reference_id, expires_at, created_at
		FROM reservations
		WHERE id = $1`

	var res domain.Reservation
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&res.ID,
		&res.OwnerID,
		&res.OwnerType,
		&res.SessionID,
		&res.Status,
		&res.ReferenceID,
		&res.ExpiresAt,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reservation", id)
		}
		return nil, fmt.Errorf("get reservation by id: %w", err)
	}

	items, err := r.getReservationItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	res.Items = items

	return &res, nil
}

// itemQuerier is satisfied by both the pool and an open transaction.
type itemQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *InventoryRepository) getReservationItems(ctx context.Context, q itemQuerier, reservationID string) ([]domain.ReservationItem, error) {
	query := `
		SELECT id, reservation_id, product_id, variant_id, quantity
		FROM reservation_items
		WHERE reservation_id = $1
		ORDER BY product_id, variant_id`

	rows, err := q.Query(ctx, query, reservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation items: %w", err)
	}
	defer rows.Close()

	var items []domain.ReservationItem
	for rows.Next() {
		var item domain.ReservationItem
		if err := rows.Scan(
			&item.ID,
			&item.ReservationID,
			&item.ProductID,
			&item.VariantID,
			&item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan reservation item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation item rows: %w", err)
	}

	if items == nil {
		items = []domain.ReservationItem{}
	}

	return items, nil
}

// Confirm transitions the reservation from active to used and converts each
// hold into a permanent decrement. The status flip is a guarded CAS, so the
// loser of a concurrent confirm/cancel race sees zero rows and gets Conflict.
func (r *InventoryRepository) Confirm(ctx context.Context, id string, referenceID string) (*domain.Reservation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin confirm transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	casQuery := `
		UPDATE reservations
		SET status = $2, reference_id = $3
		WHERE id = $1 AND status = $4 AND expires_at > NOW()
		RETURNING owner_id, owner_type, session_id, expires_at, created_at`

	res := domain.Reservation{
		ID:          id,
		Status:      domain.ReservationStatusUsed,
		ReferenceID: &referenceID,
	}
	err = tx.QueryRow(ctx, casQuery, id, domain.ReservationStatusUsed, referenceID, domain.ReservationStatusActive).Scan(
		&res.OwnerID,
		&res.OwnerType,
		&res.SessionID,
		&res.ExpiresAt,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyConfirmFailure(ctx, id)
		}
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}

	items, err := r.getReservationItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	res.Items = items

	decrementQuery := `
		UPDATE stock
		SET quantity = quantity - $1, reserved = reserved - $1, updated_at = NOW()
		WHERE product_id = $2 AND variant_id = $3
		  AND quantity >= $1 AND reserved >= $1
		RETURNING quantity`

	movementQuery := `
		INSERT INTO stock_movements
			(id, product_id, variant_id, movement_type, quantity_change, reason, reference_id, previous_quantity, new_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (product_id, variant_id, reference_id, movement_type) WHERE reference_id IS NOT NULL DO NOTHING`

	for _, item := range items {
		var newQuantity int
		err := tx.QueryRow(ctx, decrementQuery, item.Quantity, item.ProductID, item.VariantID).Scan(&newQuantity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("stock counters out of sync for product %s variant %s", item.ProductID, item.VariantID)
			}
			return nil, fmt.Errorf("decrement stock for confirmation: %w", err)
		}

		_, err = tx.Exec(ctx, movementQuery,
			uuid.New().String(),
			item.ProductID,
			item.VariantID,
			domain.MovementTypeDecrement,
			-item.Quantity,
			domain.MovementReasonReservationConfirm,
			referenceID,
			newQuantity+item.Quantity,
			newQuantity,
		)
		if err != nil {
			return nil, fmt.Errorf("insert confirmation movement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm transaction: %w", err)
	}

	return &res, nil
}

// Release transitions the reservation from active to the given terminal
// status (expired or cancelled) and releases the held quantities.
func (r *InventoryRepository) Release(ctx context.Context, id string, status string) (*domain.Reservation, error) {
	if status != domain.ReservationStatusExpired && status != domain.ReservationStatusCancelled {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid release status %q", status))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin release transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	casQuery := `
		UPDATE reservations
		SET status = $2
		WHERE id = $1 AND status = $3
		RETURNING owner_id, owner_type, session_id, reference_id, expires_at, created_at`

	res := domain.Reservation{
		ID:     id,
		Status: status,
	}
	err = tx.QueryRow(ctx, casQuery, id, status, domain.ReservationStatusActive).Scan(
		&res.OwnerID,
		&res.OwnerType,
		&res.SessionID,
		&res.ReferenceID,
		&res.ExpiresAt,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyStatusCASFailure(ctx, id, status)
		}
		return nil, fmt.Errorf("release reservation: %w", err)
	}

	items, err := r.getReservationItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	res.Items = items

	releaseQuery := `
		UPDATE stock
		SET reserved = GREATEST(reserved - $1, 0), updated_at = NOW()
		WHERE product_id = $2 AND variant_id = $3`

	for _, item := range items {
		_, err := tx.Exec(ctx, releaseQuery, item.Quantity, item.ProductID, item.VariantID)
		if err != nil {
			return nil, fmt.Errorf("release held stock: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release transaction: %w", err)
	}

	return &res, nil
}

// classifyConfirmFailure distinguishes a missing reservation, one whose TTL
// has lapsed, and one that already left the active state.
func (r *InventoryRepository) classifyConfirmFailure(ctx context.Context, id string) error {
	var (
		status    string
		expiresAt time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT status, expires_at FROM reservations WHERE id = $1`, id).Scan(&status, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("reservation", id)
		}
		return fmt.Errorf("classify confirm failure: %w", err)
	}
	if status == domain.ReservationStatusActive {
		return apperrors.Gone(fmt.Sprintf("reservation %s expired at %s", id, expiresAt.UTC().Format(time.RFC3339)))
	}
	return apperrors.Conflict(fmt.Sprintf("reservation %s is %s, cannot be confirmed", id, status))
}

// classifyStatusCASFailure distinguishes a missing reservation from one that
// already left the active state.
func (r *InventoryRepository) classifyStatusCASFailure(ctx context.Context, id, attempted string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM reservations WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("reservation", id)
		}
		return fmt.Errorf("classify reservation cas failure: %w", err)
	}
	return apperrors.Conflict(fmt.Sprintf("reservation %s is %s, cannot be %s", id, status, attempted))
}

// GetExpired returns active reservations whose expiry has passed, oldest
// first. Items are not loaded; Release fetches them itself.
func (r *InventoryRepository) GetExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, owner_id, owner_type, session_id, status, reference_id, expires_at, created_at
		FROM reservations
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.ReservationStatusActive, now, limit)
	if err != nil {
		return nil, fmt.Errorf("get expired reservations: %w", err)
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(
			&res.ID,
			&res.OwnerID,
			&res.OwnerType,
			&res.SessionID,
			&res.Status,
			&res.ReferenceID,
			&res.ExpiresAt,
			&res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan expired reservation row: %w", err)
		}
		reservations = append(reservations, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired reservation rows: %w", err)
	}

	if reservations == nil {
		reservations = []domain.Reservation{}
	}

	return reservations, nil
}
